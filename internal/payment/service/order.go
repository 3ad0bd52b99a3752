package service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/payment/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/response"
)

type OrderService struct {
	reconciler *biz.Reconciler
	logger     *zap.Logger
}

func NewOrderService(reconciler *biz.Reconciler, logger *zap.Logger) *OrderService {
	return &OrderService{
		reconciler: reconciler,
		logger:     logger,
	}
}

func (s *OrderService) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", s.CreateOrder)
		orders.GET("/:id", s.GetOrder)
		orders.GET("/:id/qr", s.DepositQR)
	}
}

type createOrderRequest struct {
	FileID        string `json:"fileId" binding:"required"`
	Payer         string `json:"payer" binding:"required"`
	DepositAsset  string `json:"depositAsset" binding:"required"`
	DepositAmount string `json:"depositAmount" binding:"required"`
}

// OrderResponse is the outward view of a payment order.
type OrderResponse struct {
	OrderID        string `json:"orderId"`
	FileID         string `json:"fileId"`
	Status         string `json:"status"`
	DepositAsset   string `json:"depositAsset"`
	DepositAddress string `json:"depositAddress"`
	DepositAmount  string `json:"depositAmount"`
	SettleAsset    string `json:"settleAsset"`
	SettleNetwork  string `json:"settleNetwork"`
	SettleAmount   string `json:"settleAmount"`
	PaymentTxHash  string `json:"paymentTxHash,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
	CreatedAt      string `json:"createdAt"`
	CompletedAt    string `json:"completedAt,omitempty"`
}

func toOrderResponse(order *biz.PaymentOrder) *OrderResponse {
	resp := &OrderResponse{
		OrderID:        order.OrderID,
		FileID:         order.FileID,
		Status:         string(order.Status),
		DepositAsset:   order.DepositAsset,
		DepositAddress: order.DepositAddress,
		DepositAmount:  order.DepositAmount,
		SettleAsset:    order.SettleAsset,
		SettleNetwork:  order.SettleNetwork,
		SettleAmount:   order.SettleAmount,
		PaymentTxHash:  order.PaymentTxHash,
		ExpiresAt:      order.ExpiresAt,
		CreatedAt:      order.CreatedAt.Format(time.RFC3339),
	}
	if order.CompletedAt != nil {
		resp.CompletedAt = order.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// CreateOrder opens a cross-chain swap paying for a file.
func (s *OrderService) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "fileId, payer, depositAsset and depositAmount required")
		return
	}

	order, err := s.reconciler.CreateOrder(c.Request.Context(), req.FileID, req.Payer, req.DepositAsset, req.DepositAmount)
	if err != nil {
		s.logger.Error("order creation failed",
			zap.String("file_id", req.FileID),
			zap.String("deposit_asset", req.DepositAsset),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}

	response.Created(c, toOrderResponse(order))
}

// GetOrder polls the provider and serves the reconciled order state.
func (s *OrderService) GetOrder(c *gin.Context) {
	order, err := s.reconciler.PollStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toOrderResponse(order))
}

// DepositQR renders the order's deposit address as a QR code PNG.
func (s *OrderService) DepositQR(c *gin.Context) {
	order, err := s.reconciler.PollStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if order.DepositAddress == "" {
		response.Error(c, apperrors.New(apperrors.ErrOrderNotFound, "order has no deposit address"))
		return
	}

	png, err := qrcode.Encode(order.DepositAddress, qrcode.Medium, 256)
	if err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrInternalServer))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
