package biz

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/chain"
	filebiz "github.com/chaindrop/chaindrop-backend/internal/file/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/swap"
)

// Status is the local order lifecycle. Terminal states are settled,
// refunded, expired and failed; an order in a terminal state never moves.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSettled    Status = "settled"
	StatusRefunded   Status = "refunded"
	StatusExpired    Status = "expired"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusRefunded, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// settleDecimals is the fractional precision of the settlement currency
// (USDC-style six decimals).
const settleDecimals = 6

// MapProviderStatus collapses the provider's raw status strings onto the
// local enum. Unknown strings map to processing so polling continues.
func MapProviderStatus(raw string, logger *zap.Logger) Status {
	switch raw {
	case "waiting", "pending":
		return StatusPending
	case "processing", "review", "settling":
		return StatusProcessing
	case "settled", "complete":
		return StatusSettled
	case "refund", "refunding", "refunded":
		return StatusRefunded
	case "expired":
		return StatusExpired
	case "failed", "rejected":
		return StatusFailed
	default:
		logger.Warn("unknown provider order status", zap.String("status", raw))
		return StatusProcessing
	}
}

// PaymentOrder mirrors one provider-side swap locally. OrderID is the
// provider's id and doubles as the public identifier.
type PaymentOrder struct {
	OrderID        string
	FileID         string
	Payer          string
	DepositAsset   string
	DepositAddress string
	DepositAmount  string
	SettleAsset    string
	SettleNetwork  string
	SettleAmount   string
	SettleAddress  string
	Status         Status
	PaymentTxHash  string
	ExpiresAt      string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// OrderRepo is the payment order store. TransitionToSettled is the only
// path into the settled state and must be a compare-and-set: it returns
// true for exactly one caller per order.
type OrderRepo interface {
	Create(ctx context.Context, order *PaymentOrder) error
	GetByOrderID(ctx context.Context, orderID string) (*PaymentOrder, error)
	ListUnsettled(ctx context.Context) ([]*PaymentOrder, error)
	ListSettledUnrecorded(ctx context.Context) ([]*PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	TransitionToSettled(ctx context.Context, orderID string, completedAt time.Time) (bool, error)
	SetPaymentTx(ctx context.Context, orderID, txHash string) error
}

// SwapProvider is what the reconciler needs from the swap client.
type SwapProvider interface {
	Quote(ctx context.Context, depositAsset, settleAsset, settleNetwork, amount string) (*swap.Quote, error)
	CreateFixedOrder(ctx context.Context, quoteID, depositAsset, settleAsset, settleNetwork, settleAddress string) (*swap.Order, error)
	GetOrder(ctx context.Context, orderID string) (*swap.Order, error)
}

// ChainRecorder covers the settlement write to the contract.
type ChainRecorder interface {
	TryRecordCrossChainPayment(ctx context.Context, fileID, payer string, amount *big.Int) (string, bool)
}

// FileResolver exposes the part of the file registry payments need.
type FileResolver interface {
	GetByFileID(ctx context.Context, fileID string) (*filebiz.FileRecord, error)
}

// Reconciler creates swap orders and converges local order state with the
// provider, recording the settlement on-chain exactly once per order.
type Reconciler struct {
	repo          OrderRepo
	files         FileResolver
	provider      SwapProvider
	chain         ChainRecorder
	settleAsset   string
	settleNetwork string
	logger        *zap.Logger
	now           func() time.Time
}

func NewReconciler(repo OrderRepo, files FileResolver, provider SwapProvider, chainRec ChainRecorder, settleAsset, settleNetwork string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:          repo,
		files:         files,
		provider:      provider,
		chain:         chainRec,
		settleAsset:   settleAsset,
		settleNetwork: settleNetwork,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateOrder quotes and opens a fixed-rate swap paying for the given file.
// The order is persisted before it is returned, so a crash after provider
// creation can still be reconciled by polling.
func (r *Reconciler) CreateOrder(ctx context.Context, fileID, payer, depositAsset, depositAmount string) (*PaymentOrder, error) {
	file, err := r.files.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Tombstoned {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	if !file.CrossChainEnabled {
		return nil, apperrors.New(apperrors.ErrCrossChainDisabled)
	}

	quote, err := r.provider.Quote(ctx, depositAsset, r.settleAsset, r.settleNetwork, depositAmount)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSwapUnavailable)
	}

	providerOrder, err := r.provider.CreateFixedOrder(ctx, quote.ID, depositAsset, r.settleAsset, r.settleNetwork, file.Owner)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrOrderCreateFailed)
	}

	order := &PaymentOrder{
		OrderID:        providerOrder.ID,
		FileID:         fileID,
		Payer:          payer,
		DepositAsset:   depositAsset,
		DepositAddress: providerOrder.DepositAddress,
		DepositAmount:  providerOrder.DepositAmount,
		SettleAsset:    r.settleAsset,
		SettleNetwork:  r.settleNetwork,
		SettleAmount:   providerOrder.SettleAmount,
		SettleAddress:  file.Owner,
		Status:         MapProviderStatus(providerOrder.Status, r.logger),
		ExpiresAt:      providerOrder.ExpiresAt,
		CreatedAt:      r.now(),
	}
	if order.Status == "" {
		order.Status = StatusPending
	}

	if err := r.repo.Create(ctx, order); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	r.logger.Info("payment order created",
		zap.String("order_id", order.OrderID),
		zap.String("file_id", fileID),
		zap.String("deposit_asset", depositAsset),
		zap.String("deposit_address", order.DepositAddress),
	)
	return order, nil
}

// PollStatus refreshes an order from the provider. Terminal orders are
// returned as-is; when the provider is unreachable the last local state
// serves. The first poll to observe settlement wins the compare-and-set
// and makes the single on-chain recording attempt.
func (r *Reconciler) PollStatus(ctx context.Context, orderID string) (*PaymentOrder, error) {
	order, err := r.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	providerOrder, err := r.provider.GetOrder(ctx, orderID)
	if err != nil {
		r.logger.Warn("provider poll failed, serving local state",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return order, nil
	}

	next := MapProviderStatus(providerOrder.Status, r.logger)
	if providerOrder.SettleAmount != "" {
		order.SettleAmount = providerOrder.SettleAmount
	}

	if next == StatusSettled {
		return r.settle(ctx, order)
	}

	if next != order.Status {
		if err := r.repo.UpdateStatus(ctx, orderID, next); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
		}
		order.Status = next
	}
	return order, nil
}

// settle performs the settled transition. Only the CAS winner touches the
// chain; a failed chain write leaves payment_tx_hash empty for the sweeper
// to retry.
func (r *Reconciler) settle(ctx context.Context, order *PaymentOrder) (*PaymentOrder, error) {
	completedAt := r.now()
	won, err := r.repo.TransitionToSettled(ctx, order.OrderID, completedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	order.Status = StatusSettled
	order.CompletedAt = &completedAt
	if !won {
		// Another poller settled this order; it owns the chain write.
		return r.repo.GetByOrderID(ctx, order.OrderID)
	}

	if txHash, ok := r.RecordSettlement(ctx, order); ok {
		order.PaymentTxHash = txHash
	}
	return order, nil
}

// RecordSettlement makes one attempt to record a settled order on-chain
// and persists the transaction hash when it lands. The sweeper calls this
// for orders whose earlier attempt failed.
func (r *Reconciler) RecordSettlement(ctx context.Context, order *PaymentOrder) (string, bool) {
	amount, err := chain.ParseUnits(order.SettleAmount, settleDecimals)
	if err != nil {
		r.logger.Error("unparseable settle amount, cannot record payment",
			zap.String("order_id", order.OrderID),
			zap.String("settle_amount", order.SettleAmount),
			zap.Error(err),
		)
		return "", false
	}

	txHash, ok := r.chain.TryRecordCrossChainPayment(ctx, order.FileID, order.Payer, amount)
	if !ok {
		return "", false
	}

	if err := r.repo.SetPaymentTx(ctx, order.OrderID, txHash); err != nil {
		r.logger.Error("payment tx hash not persisted",
			zap.String("order_id", order.OrderID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
	}

	r.logger.Info("cross-chain payment recorded",
		zap.String("order_id", order.OrderID),
		zap.String("file_id", order.FileID),
		zap.String("tx_hash", txHash),
	)
	return txHash, true
}

// SweepOnce reconciles every non-terminal order and retries the chain
// write for settled orders that still lack a transaction hash.
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	open, err := r.repo.ListUnsettled(ctx)
	if err != nil {
		return err
	}
	for _, order := range open {
		if _, err := r.PollStatus(ctx, order.OrderID); err != nil {
			r.logger.Warn("order reconciliation failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
		}
	}

	unrecorded, err := r.repo.ListSettledUnrecorded(ctx)
	if err != nil {
		return err
	}
	for _, order := range unrecorded {
		r.RecordSettlement(ctx, order)
	}
	return nil
}
