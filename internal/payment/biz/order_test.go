package biz

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	filebiz "github.com/chaindrop/chaindrop-backend/internal/file/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/swap"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*PaymentOrder
}

func newFakeOrderRepo(orders ...*PaymentOrder) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[string]*PaymentOrder)}
	for _, o := range orders {
		r.orders[o.OrderID] = o
	}
	return r
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.OrderID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrOrderNotFound)
	}
	cp := *order
	return &cp, nil
}

func (r *fakeOrderRepo) ListUnsettled(ctx context.Context) ([]*PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PaymentOrder
	for _, o := range r.orders {
		if !o.Status.IsTerminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListSettledUnrecorded(ctx context.Context) ([]*PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PaymentOrder
	for _, o := range r.orders {
		if o.Status == StatusSettled && o.PaymentTxHash == "" {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return apperrors.New(apperrors.ErrOrderNotFound)
	}
	order.Status = status
	return nil
}

func (r *fakeOrderRepo) TransitionToSettled(ctx context.Context, orderID string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false, apperrors.New(apperrors.ErrOrderNotFound)
	}
	if order.Status == StatusSettled {
		return false, nil
	}
	order.Status = StatusSettled
	order.CompletedAt = &completedAt
	return true, nil
}

func (r *fakeOrderRepo) SetPaymentTx(ctx context.Context, orderID, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return apperrors.New(apperrors.ErrOrderNotFound)
	}
	order.PaymentTxHash = txHash
	return nil
}

type fakeProvider struct {
	mu sync.Mutex

	quote      *swap.Quote
	quoteErr   error
	order      *swap.Order
	createErr  error
	getOrder   *swap.Order
	getErr     error
	quoteCalls int
	getCalls   int
}

func (p *fakeProvider) Quote(ctx context.Context, depositAsset, settleAsset, settleNetwork, amount string) (*swap.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quoteCalls++
	return p.quote, p.quoteErr
}

func (p *fakeProvider) CreateFixedOrder(ctx context.Context, quoteID, depositAsset, settleAsset, settleNetwork, settleAddress string) (*swap.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order, p.createErr
}

func (p *fakeProvider) GetOrder(ctx context.Context, orderID string) (*swap.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	return p.getOrder, p.getErr
}

type fakeRecorder struct {
	mu     sync.Mutex
	tx     string
	ok     bool
	calls  int
	amount *big.Int
}

func (c *fakeRecorder) TryRecordCrossChainPayment(ctx context.Context, fileID, payer string, amount *big.Int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.amount = amount
	return c.tx, c.ok
}

type fakeFileResolver struct {
	files map[string]*filebiz.FileRecord
}

func (f *fakeFileResolver) GetByFileID(ctx context.Context, fileID string) (*filebiz.FileRecord, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	return file, nil
}

func newTestReconciler(repo OrderRepo, files FileResolver, provider SwapProvider, rec ChainRecorder) *Reconciler {
	return NewReconciler(repo, files, provider, rec, "USDC", "polygon", zap.NewNop())
}

func crossChainFile(fileID string) *fakeFileResolver {
	return &fakeFileResolver{files: map[string]*filebiz.FileRecord{
		fileID: {FileID: fileID, Owner: "0xowner", CrossChainEnabled: true},
	}}
}

func TestCreateOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	provider := &fakeProvider{
		quote: &swap.Quote{ID: "q1", DepositAmount: "0.001", SettleAmount: "25.000000"},
		order: &swap.Order{
			ID:             "o1",
			Status:         "waiting",
			DepositAddress: "bc1qdeposit",
			DepositAmount:  "0.001",
			SettleAmount:   "25.000000",
		},
	}
	rec := newTestReconciler(repo, crossChainFile("f1"), provider, &fakeRecorder{})

	order, err := rec.CreateOrder(context.Background(), "f1", "0xpayer", "BTC", "0.001")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.OrderID != "o1" || order.Status != StatusPending {
		t.Errorf("unexpected order: %+v", order)
	}
	if order.DepositAddress != "bc1qdeposit" {
		t.Errorf("deposit address = %q", order.DepositAddress)
	}
	if order.SettleAddress != "0xowner" {
		t.Errorf("settle address should be the file owner, got %q", order.SettleAddress)
	}
	if _, err := repo.GetByOrderID(context.Background(), "o1"); err != nil {
		t.Errorf("order not persisted: %v", err)
	}
}

func TestCreateOrderCrossChainDisabled(t *testing.T) {
	files := &fakeFileResolver{files: map[string]*filebiz.FileRecord{
		"f1": {FileID: "f1", Owner: "0xowner", CrossChainEnabled: false},
	}}
	rec := newTestReconciler(newFakeOrderRepo(), files, &fakeProvider{}, &fakeRecorder{})

	_, err := rec.CreateOrder(context.Background(), "f1", "0xpayer", "BTC", "0.001")
	if !apperrors.Is(err, apperrors.ErrCrossChainDisabled) {
		t.Fatalf("expected ErrCrossChainDisabled, got %v", err)
	}
}

func TestCreateOrderProviderFailures(t *testing.T) {
	t.Run("quote fails", func(t *testing.T) {
		provider := &fakeProvider{quoteErr: errors.New("503")}
		rec := newTestReconciler(newFakeOrderRepo(), crossChainFile("f1"), provider, &fakeRecorder{})
		_, err := rec.CreateOrder(context.Background(), "f1", "0xpayer", "BTC", "0.001")
		if !apperrors.Is(err, apperrors.ErrSwapUnavailable) {
			t.Fatalf("expected ErrSwapUnavailable, got %v", err)
		}
	})

	t.Run("order creation fails", func(t *testing.T) {
		provider := &fakeProvider{
			quote:     &swap.Quote{ID: "q1"},
			createErr: errors.New("amount too low"),
		}
		rec := newTestReconciler(newFakeOrderRepo(), crossChainFile("f1"), provider, &fakeRecorder{})
		_, err := rec.CreateOrder(context.Background(), "f1", "0xpayer", "BTC", "0.001")
		if !apperrors.Is(err, apperrors.ErrOrderCreateFailed) {
			t.Fatalf("expected ErrOrderCreateFailed, got %v", err)
		}
	})
}

func TestPollStatusSettlesOnce(t *testing.T) {
	repo := newFakeOrderRepo(&PaymentOrder{
		OrderID:      "o1",
		FileID:       "f1",
		Payer:        "0xpayer",
		SettleAmount: "25.5",
		Status:       StatusPending,
	})
	provider := &fakeProvider{getOrder: &swap.Order{ID: "o1", Status: "settled", SettleAmount: "25.5"}}
	chainRec := &fakeRecorder{tx: "0xsettle", ok: true}
	rec := newTestReconciler(repo, crossChainFile("f1"), provider, chainRec)

	order, err := rec.PollStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if order.Status != StatusSettled {
		t.Errorf("status = %s, want settled", order.Status)
	}
	if order.PaymentTxHash != "0xsettle" {
		t.Errorf("tx hash = %q", order.PaymentTxHash)
	}
	if chainRec.calls != 1 {
		t.Fatalf("expected exactly one chain write, got %d", chainRec.calls)
	}
	// 25.5 in six-decimal units.
	if chainRec.amount.Cmp(big.NewInt(25_500_000)) != 0 {
		t.Errorf("recorded amount = %s", chainRec.amount)
	}

	// Further polls are no-ops: terminal state short-circuits the provider.
	before := provider.getCalls
	for i := 0; i < 3; i++ {
		if _, err := rec.PollStatus(context.Background(), "o1"); err != nil {
			t.Fatalf("repoll failed: %v", err)
		}
	}
	if provider.getCalls != before {
		t.Errorf("provider polled after terminal state: %d extra calls", provider.getCalls-before)
	}
	if chainRec.calls != 1 {
		t.Errorf("chain written again after settlement: %d calls", chainRec.calls)
	}
}

func TestPollStatusConcurrentSettlement(t *testing.T) {
	repo := newFakeOrderRepo(&PaymentOrder{
		OrderID:      "o1",
		FileID:       "f1",
		Payer:        "0xpayer",
		SettleAmount: "10",
		Status:       StatusProcessing,
	})
	provider := &fakeProvider{getOrder: &swap.Order{ID: "o1", Status: "settled", SettleAmount: "10"}}
	chainRec := &fakeRecorder{tx: "0xsettle", ok: true}
	rec := newTestReconciler(repo, crossChainFile("f1"), provider, chainRec)

	const pollers = 8
	var wg sync.WaitGroup
	wg.Add(pollers)
	for i := 0; i < pollers; i++ {
		go func() {
			defer wg.Done()
			rec.PollStatus(context.Background(), "o1")
		}()
	}
	wg.Wait()

	if chainRec.calls != 1 {
		t.Errorf("expected exactly one chain write across %d pollers, got %d", pollers, chainRec.calls)
	}
}

func TestPollStatusProviderOutage(t *testing.T) {
	repo := newFakeOrderRepo(&PaymentOrder{OrderID: "o1", Status: StatusProcessing})
	provider := &fakeProvider{getErr: errors.New("timeout")}
	rec := newTestReconciler(repo, crossChainFile("f1"), provider, &fakeRecorder{})

	order, err := rec.PollStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("expected local fallback, got error: %v", err)
	}
	if order.Status != StatusProcessing {
		t.Errorf("status = %s, want unchanged processing", order.Status)
	}
}

func TestPollStatusTransitions(t *testing.T) {
	repo := newFakeOrderRepo(&PaymentOrder{OrderID: "o1", Status: StatusPending})
	provider := &fakeProvider{getOrder: &swap.Order{ID: "o1", Status: "processing"}}
	rec := newTestReconciler(repo, crossChainFile("f1"), provider, &fakeRecorder{})

	order, err := rec.PollStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if order.Status != StatusProcessing {
		t.Errorf("status = %s, want processing", order.Status)
	}
	stored, _ := repo.GetByOrderID(context.Background(), "o1")
	if stored.Status != StatusProcessing {
		t.Errorf("persisted status = %s, want processing", stored.Status)
	}
}

func TestSweepRetriesUnrecordedSettlement(t *testing.T) {
	settled := time.Now()
	repo := newFakeOrderRepo(&PaymentOrder{
		OrderID:      "o1",
		FileID:       "f1",
		Payer:        "0xpayer",
		SettleAmount: "10",
		Status:       StatusSettled,
		CompletedAt:  &settled,
	})
	chainRec := &fakeRecorder{tx: "0xretry", ok: true}
	rec := newTestReconciler(repo, crossChainFile("f1"), &fakeProvider{}, chainRec)

	if err := rec.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if chainRec.calls != 1 {
		t.Fatalf("expected one retry write, got %d", chainRec.calls)
	}
	order, _ := repo.GetByOrderID(context.Background(), "o1")
	if order.PaymentTxHash != "0xretry" {
		t.Errorf("tx hash not persisted: %q", order.PaymentTxHash)
	}

	// Recorded orders are not retried again.
	if err := rec.SweepOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if chainRec.calls != 1 {
		t.Errorf("recorded order retried: %d calls", chainRec.calls)
	}
}

func TestMapProviderStatus(t *testing.T) {
	logger := zap.NewNop()
	cases := map[string]Status{
		"waiting":    StatusPending,
		"pending":    StatusPending,
		"processing": StatusProcessing,
		"review":     StatusProcessing,
		"settling":   StatusProcessing,
		"settled":    StatusSettled,
		"complete":   StatusSettled,
		"refund":     StatusRefunded,
		"refunding":  StatusRefunded,
		"refunded":   StatusRefunded,
		"expired":    StatusExpired,
		"failed":     StatusFailed,
		"rejected":   StatusFailed,
		"who-knows":  StatusProcessing,
	}
	for raw, want := range cases {
		if got := MapProviderStatus(raw, logger); got != want {
			t.Errorf("MapProviderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}
