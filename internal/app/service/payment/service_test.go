package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/wallet"
	"brandotp/internal/app/service/worker"
	"brandotp/internal/app/storage"
	"brandotp/internal/app/storage/memory"
	"brandotp/pkg/pay0"
)

type fakeGateway struct {
	createFn func(ctx context.Context, orderID, mobile, amount, redirectURL, remark1, remark2 string) (*pay0.Order, error)
	statusFn func(ctx context.Context, orderID string) (*pay0.OrderStatus, error)
	checks   int
}

var _ Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) CreateOrder(ctx context.Context, orderID, mobile, amount, redirectURL, remark1, remark2 string) (*pay0.Order, error) {
	if f.createFn == nil {
		return &pay0.Order{OrderID: orderID, PaymentURL: "https://pay0.shop/pay/" + orderID}, nil
	}
	return f.createFn(ctx, orderID, mobile, amount, redirectURL, remark1, remark2)
}

func (f *fakeGateway) CheckStatus(ctx context.Context, orderID string) (*pay0.OrderStatus, error) {
	f.checks++
	if f.statusFn == nil {
		return &pay0.OrderStatus{OrderID: orderID, TxnStatus: "SUCCESS"}, nil
	}
	return f.statusFn(ctx, orderID)
}

type fixture struct {
	store   *memory.Store
	wallet  *wallet.Service
	gateway *fakeGateway
	pool    *worker.Pool
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	w := wallet.New(store.Ledger())
	gw := &fakeGateway{}
	pool := worker.New(1)
	t.Cleanup(pool.Stop)

	return &fixture{
		store:   store,
		wallet:  w,
		gateway: gw,
		pool:    pool,
		svc:     New(store.Orders(), w, gw, pool, "http://localhost:8088/payment-success"),
	}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "wallet", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if res.Order.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want pending", res.Order.Status)
	}
	if res.PaymentURL == "" {
		t.Error("PaymentURL empty")
	}
	if res.Order.OrderID[:9] != "BRANDOTP_" {
		t.Errorf("OrderID = %q, want BRANDOTP_ prefix", res.Order.OrderID)
	}

	// no money moves before the webhook settles
	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.IsZero() {
		t.Errorf("Balance = %s, want 0", balance)
	}
}

func TestCreateOrderAmountBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	for _, amount := range []int64{49, 5001, 0, -10} {
		_, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(amount), "", "")
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("CreateOrder(%d) err = %v, want ErrInvalidInput", amount, err)
		}
	}

	for _, amount := range []int64{50, 5000} {
		if _, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(amount), "", ""); err != nil {
			t.Errorf("CreateOrder(%d): %v", amount, err)
		}
	}
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	f.gateway.createFn = func(ctx context.Context, orderID, mobile, amount, redirectURL, remark1, remark2 string) (*pay0.Order, error) {
		return nil, errors.New("gateway down")
	}

	_, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestWebhookCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	orderID := res.Order.OrderID

	// the gateway delivers the same webhook twice
	if err := f.svc.ProcessWebhook(ctx, orderID, "SUCCESS"); err != nil {
		t.Fatalf("first ProcessWebhook: %v", err)
	}
	if err := f.svc.ProcessWebhook(ctx, orderID, "SUCCESS"); err != nil {
		t.Fatalf("second ProcessWebhook: %v", err)
	}

	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Balance = %s, want 200 (single credit)", balance)
	}
	if n := f.store.TransactionCount(u.ID); n != 1 {
		t.Errorf("TransactionCount = %d, want 1", n)
	}

	m, _ := f.svc.Order(ctx, orderID)
	if m.Status != model.PaymentStatusCompleted {
		t.Errorf("Status = %q, want completed", m.Status)
	}
}

func TestWebhookUnverifiedOrderNotCredited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// webhook claims success but the gateway says otherwise
	f.gateway.statusFn = func(ctx context.Context, orderID string) (*pay0.OrderStatus, error) {
		return &pay0.OrderStatus{OrderID: orderID, TxnStatus: "PENDING"}, nil
	}

	if err := f.svc.ProcessWebhook(ctx, res.Order.OrderID, "SUCCESS"); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.IsZero() {
		t.Errorf("Balance = %s, want 0", balance)
	}

	m, _ := f.svc.Order(ctx, res.Order.OrderID)
	if m.Status != model.PaymentStatusFailed {
		t.Errorf("Status = %q, want failed", m.Status)
	}
}

func TestWebhookFailedStatusSkipsVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := f.svc.ProcessWebhook(ctx, res.Order.OrderID, "FAILED"); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	if f.gateway.checks != 0 {
		t.Errorf("status checks = %d, want 0", f.gateway.checks)
	}

	m, _ := f.svc.Order(ctx, res.Order.OrderID)
	if m.Status != model.PaymentStatusFailed {
		t.Errorf("Status = %q, want failed", m.Status)
	}
}

func TestWebhookStatusCheckFailureRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	f.gateway.statusFn = func(ctx context.Context, orderID string) (*pay0.OrderStatus, error) {
		return nil, errors.New("timeout")
	}

	err = f.svc.ProcessWebhook(ctx, res.Order.OrderID, "SUCCESS")
	if !errors.Is(err, worker.ErrRetryable) {
		t.Fatalf("err = %v, want ErrRetryable", err)
	}

	// the order stays pending for the retry
	m, _ := f.svc.Order(ctx, res.Order.OrderID)
	if m.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want pending", m.Status)
	}
}

// flakyLedger fails the first n Apply calls, then delegates.
type flakyLedger struct {
	storage.LedgerRepository
	failures int
}

func (f *flakyLedger) Apply(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, m *model.Transaction) (*model.Transaction, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.LedgerRepository.Apply(ctx, userID, delta, m)
}

func TestWebhookCreditFailureReopensOrder(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	ledger := &flakyLedger{LedgerRepository: store.Ledger(), failures: 1}
	w := wallet.New(ledger)
	gw := &fakeGateway{}
	pool := worker.New(1)
	t.Cleanup(pool.Stop)
	svc := New(store.Orders(), w, gw, pool, "http://localhost:8088/payment-success")

	u := store.AddUser("user@example.com", decimal.Zero)

	res, err := svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	orderID := res.Order.OrderID

	// the first credit attempt dies after the order was claimed
	err = svc.ProcessWebhook(ctx, orderID, "SUCCESS")
	if !errors.Is(err, worker.ErrRetryable) {
		t.Fatalf("err = %v, want ErrRetryable", err)
	}

	m, _ := svc.Order(ctx, orderID)
	if m.Status != model.PaymentStatusPending {
		t.Fatalf("Status = %q, want pending after failed credit", m.Status)
	}

	// a replayed webhook settles the order
	if err := svc.ProcessWebhook(ctx, orderID, "SUCCESS"); err != nil {
		t.Fatalf("replay ProcessWebhook: %v", err)
	}

	balance, _ := w.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Balance = %s, want 200", balance)
	}
	if n := store.TransactionCount(u.ID); n != 1 {
		t.Errorf("TransactionCount = %d, want 1", n)
	}

	m, _ = svc.Order(ctx, orderID)
	if m.Status != model.PaymentStatusCompleted {
		t.Errorf("Status = %q, want completed", m.Status)
	}
}

func TestHandleWebhookAsync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	res, err := f.svc.CreateOrder(ctx, u.ID, "9900112233", decimal.NewFromInt(200), "", "")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := f.svc.HandleWebhook(ctx, "", "SUCCESS"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty order err = %v, want ErrInvalidInput", err)
	}

	if err := f.svc.HandleWebhook(ctx, res.Order.OrderID, "SUCCESS"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		balance, _ := f.wallet.Balance(ctx, u.ID)
		if balance.Equal(decimal.NewFromInt(200)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("wallet never credited")
}

func TestManualCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := f.store.AddUser("user@example.com", decimal.Zero)

	tr, err := f.svc.ManualCredit(ctx, u.ID, decimal.NewFromInt(500), "Admin credit")
	if err != nil {
		t.Fatalf("ManualCredit: %v", err)
	}
	if !tr.NewBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("NewBalance = %s, want 500", tr.NewBalance)
	}

	if _, err := f.svc.ManualCredit(ctx, u.ID, decimal.NewFromInt(10), "x"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("below-minimum err = %v, want ErrInvalidInput", err)
	}
}
