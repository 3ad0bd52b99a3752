package data

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chaindrop/chaindrop-backend/internal/payment/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
)

// OrderPO represents the database model for a cross-chain payment order.
type OrderPO struct {
	ID             uint   `gorm:"primarykey"`
	OrderID        string `gorm:"size:64;not null;uniqueIndex"`
	FileID         string `gorm:"type:uuid;not null;index"`
	Payer          string `gorm:"size:64;not null"`
	DepositAsset   string `gorm:"size:16;not null"`
	DepositAddress string `gorm:"size:128"`
	DepositAmount  string `gorm:"size:64"`
	SettleAsset    string `gorm:"size:16;not null"`
	SettleNetwork  string `gorm:"size:32;not null"`
	SettleAmount   string `gorm:"size:64"`
	SettleAddress  string `gorm:"size:64;not null"`
	Status         string `gorm:"size:16;not null;index"`
	PaymentTxHash  string `gorm:"size:80"`
	ExpiresAt      string `gorm:"size:40"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (OrderPO) TableName() string {
	return "payment_orders"
}

// OrderRepo implements biz.OrderRepo on PostgreSQL.
type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) biz.OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Create(ctx context.Context, order *biz.PaymentOrder) error {
	return r.db.WithContext(ctx).Create(toOrderPO(order)).Error
}

func (r *OrderRepo) GetByOrderID(ctx context.Context, orderID string) (*biz.PaymentOrder, error) {
	var po OrderPO
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrOrderNotFound)
		}
		return nil, err
	}
	return toPaymentOrder(&po), nil
}

func (r *OrderRepo) ListUnsettled(ctx context.Context) ([]*biz.PaymentOrder, error) {
	return r.list(ctx, "status IN ?", []string{
		string(biz.StatusPending),
		string(biz.StatusProcessing),
	})
}

func (r *OrderRepo) ListSettledUnrecorded(ctx context.Context) ([]*biz.PaymentOrder, error) {
	return r.list(ctx, "status = ? AND payment_tx_hash = ''", string(biz.StatusSettled))
}

func (r *OrderRepo) list(ctx context.Context, query string, args ...interface{}) ([]*biz.PaymentOrder, error) {
	var pos []OrderPO
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at ASC").
		Find(&pos).Error; err != nil {
		return nil, err
	}

	orders := make([]*biz.PaymentOrder, len(pos))
	for i := range pos {
		orders[i] = toPaymentOrder(&pos[i])
	}
	return orders, nil
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID string, status biz.Status) error {
	res := r.db.WithContext(ctx).Model(&OrderPO{}).
		Where("order_id = ?", orderID).
		UpdateColumn("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrOrderNotFound)
	}
	return nil
}

// TransitionToSettled is the compare-and-set into the settled state. The
// WHERE clause guarantees at most one caller per order sees true.
func (r *OrderRepo) TransitionToSettled(ctx context.Context, orderID string, completedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&OrderPO{}).
		Where("order_id = ? AND status <> ?", orderID, string(biz.StatusSettled)).
		Updates(map[string]interface{}{
			"status":       string(biz.StatusSettled),
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderRepo) SetPaymentTx(ctx context.Context, orderID, txHash string) error {
	res := r.db.WithContext(ctx).Model(&OrderPO{}).
		Where("order_id = ?", orderID).
		UpdateColumn("payment_tx_hash", txHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrOrderNotFound)
	}
	return nil
}

func toOrderPO(o *biz.PaymentOrder) *OrderPO {
	return &OrderPO{
		OrderID:        o.OrderID,
		FileID:         o.FileID,
		Payer:          o.Payer,
		DepositAsset:   o.DepositAsset,
		DepositAddress: o.DepositAddress,
		DepositAmount:  o.DepositAmount,
		SettleAsset:    o.SettleAsset,
		SettleNetwork:  o.SettleNetwork,
		SettleAmount:   o.SettleAmount,
		SettleAddress:  o.SettleAddress,
		Status:         string(o.Status),
		PaymentTxHash:  o.PaymentTxHash,
		ExpiresAt:      o.ExpiresAt,
		CreatedAt:      o.CreatedAt,
		CompletedAt:    o.CompletedAt,
	}
}

func toPaymentOrder(po *OrderPO) *biz.PaymentOrder {
	return &biz.PaymentOrder{
		OrderID:        po.OrderID,
		FileID:         po.FileID,
		Payer:          po.Payer,
		DepositAsset:   po.DepositAsset,
		DepositAddress: po.DepositAddress,
		DepositAmount:  po.DepositAmount,
		SettleAsset:    po.SettleAsset,
		SettleNetwork:  po.SettleNetwork,
		SettleAmount:   po.SettleAmount,
		SettleAddress:  po.SettleAddress,
		Status:         biz.Status(po.Status),
		PaymentTxHash:  po.PaymentTxHash,
		ExpiresAt:      po.ExpiresAt,
		CreatedAt:      po.CreatedAt,
		CompletedAt:    po.CompletedAt,
	}
}
