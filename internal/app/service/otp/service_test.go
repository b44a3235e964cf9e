package otp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/catalog"
	"brandotp/internal/app/service/wallet"
	"brandotp/internal/app/storage/memory"
	"brandotp/pkg/smsman"
)

type fakeProvider struct {
	buyFn     func(ctx context.Context, applicationID, countryID int) (*smsman.Number, error)
	pollFn    func(ctx context.Context, requestID string) (*smsman.SMS, error)
	cancelled []string
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Buy(ctx context.Context, applicationID, countryID int) (*smsman.Number, error) {
	if f.buyFn == nil {
		return &smsman.Number{RequestID: "1001", Number: "919900112233"}, nil
	}
	return f.buyFn(ctx, applicationID, countryID)
}

func (f *fakeProvider) PollCode(ctx context.Context, requestID string) (*smsman.SMS, error) {
	if f.pollFn == nil {
		return &smsman.SMS{Received: false}, nil
	}
	return f.pollFn(ctx, requestID)
}

func (f *fakeProvider) Cancel(ctx context.Context, requestID string) error {
	f.cancelled = append(f.cancelled, requestID)
	return nil
}

type fixture struct {
	store    *memory.Store
	wallet   *wallet.Service
	provider *fakeProvider
	svc      *Service
}

func newFixture() *fixture {
	store := memory.NewStore()
	w := wallet.New(store.Ledger())
	cat := catalog.New(store.Services(), nil)
	p := &fakeProvider{}

	return &fixture{
		store:    store,
		wallet:   w,
		provider: p,
		svc:      New(store.Requests(), cat, w, p),
	}
}

func TestCreateDebitsAfterNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	res, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m := res.Request
	if m.Status != model.OtpStatusPending {
		t.Errorf("Status = %q, want pending", m.Status)
	}
	if m.Number.String != "919900112233" {
		t.Errorf("Number = %q", m.Number.String)
	}
	if m.ServiceName != "whatsapp" {
		t.Errorf("ServiceName = %q", m.ServiceName)
	}
	if !m.AmountPaid.Equal(decimal.NewFromInt(30)) {
		t.Errorf("AmountPaid = %s, want 30", m.AmountPaid)
	}
	if !res.Debit.NewBalance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("NewBalance = %s, want 70", res.Debit.NewBalance)
	}
}

func TestCreateProviderFailureCostsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	f.provider.buyFn = func(ctx context.Context, applicationID, countryID int) (*smsman.Number, error) {
		return nil, smsman.ErrNoNumbers
	}

	_, err := f.svc.Create(ctx, u.ID, svc.ID)
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Balance = %s, want 100", balance)
	}
	if n := f.store.TransactionCount(u.ID); n != 0 {
		t.Errorf("TransactionCount = %d, want 0", n)
	}
	if n := f.store.RequestCount(u.ID); n != 0 {
		t.Errorf("RequestCount = %d, want 0", n)
	}
}

func TestCreateInsufficientBalanceReleasesNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(10))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	_, err := f.svc.Create(ctx, u.ID, svc.ID)
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	if len(f.provider.cancelled) != 1 || f.provider.cancelled[0] != "1001" {
		t.Errorf("cancelled = %v, want number released back", f.provider.cancelled)
	}
	if n := f.store.RequestCount(u.ID); n != 0 {
		t.Errorf("RequestCount = %d, want 0", n)
	}
}

func TestCreateInactiveService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("telegram", decimal.NewFromInt(20), model.ServiceStatusInactive)

	if _, err := f.svc.Create(ctx, u.ID, svc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("inactive service err = %v, want ErrNotFound", err)
	}

	if _, err := f.svc.Create(ctx, u.ID, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown service err = %v, want ErrNotFound", err)
	}
}

func TestCancelRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := f.svc.Cancel(ctx, u.ID, created.Request.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if res.Request.Status != model.OtpStatusCancelled {
		t.Errorf("Status = %q, want cancelled", res.Request.Status)
	}
	if !res.Request.CancelledAt.Valid {
		t.Error("CancelledAt not set")
	}
	if res.Refund == nil {
		t.Fatal("no refund issued")
	}
	if !res.Refund.NewBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("NewBalance = %s, want 100", res.Refund.NewBalance)
	}
	if len(f.provider.cancelled) != 1 {
		t.Errorf("provider cancels = %d, want 1", len(f.provider.cancelled))
	}
}

func TestCancelTwiceRefundsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, u.ID, created.Request.ID); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, u.ID, created.Request.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("second Cancel err = %v, want ErrInvalidState", err)
	}

	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Balance = %s, want 100 (single refund)", balance)
	}
}

func TestCancelCompletedRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, created.Request.ID, model.OtpStatusCompleted, "", "123456"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, u.ID, created.Request.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("Cancel err = %v, want ErrInvalidState", err)
	}

	// completing consumed the money for good
	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Balance = %s, want 70", balance)
	}
}

func TestCancelForeignRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner := f.store.AddUser("owner@example.com", decimal.NewFromInt(100))
	other := f.store.AddUser("other@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, owner.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, other.ID, created.Request.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign Cancel err = %v, want ErrNotFound", err)
	}
}

func TestPollCompletesRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.provider.pollFn = func(ctx context.Context, requestID string) (*smsman.SMS, error) {
		return &smsman.SMS{Code: "482913", Received: true}, nil
	}

	jobs := f.svc.PollJobs(ctx)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if err := jobs[0](); err != nil {
		t.Fatalf("poll job: %v", err)
	}

	m, err := f.svc.Get(ctx, u.ID, created.Request.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Status != model.OtpStatusCompleted {
		t.Errorf("Status = %q, want completed", m.Status)
	}
	if m.OtpCode.String != "482913" {
		t.Errorf("OtpCode = %q, want 482913", m.OtpCode.String)
	}

	// a completed request drops out of the sweep
	if jobs := f.svc.PollJobs(ctx); len(jobs) != 0 {
		t.Errorf("jobs after completion = %d, want 0", len(jobs))
	}
}

func TestPollAfterCancelIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	jobs := f.svc.PollJobs(ctx)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}

	if _, err := f.svc.Cancel(ctx, u.ID, created.Request.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// the code arrives after the cancel won the race
	f.provider.pollFn = func(ctx context.Context, requestID string) (*smsman.SMS, error) {
		return &smsman.SMS{Code: "482913", Received: true}, nil
	}

	if err := jobs[0](); err != nil {
		t.Fatalf("poll job after cancel: %v", err)
	}

	m, _ := f.svc.Get(ctx, u.ID, created.Request.ID)
	if m.Status != model.OtpStatusCancelled {
		t.Errorf("Status = %q, want cancelled", m.Status)
	}
	if m.OtpCode.Valid {
		t.Errorf("OtpCode = %q, want unset", m.OtpCode.String)
	}
}

func TestFullLifecycleAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	first, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, u.ID, first.Request.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	second, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	f.provider.pollFn = func(ctx context.Context, requestID string) (*smsman.SMS, error) {
		return &smsman.SMS{Code: "007007", Received: true}, nil
	}
	for _, job := range f.svc.PollJobs(ctx) {
		if err := job(); err != nil {
			t.Fatalf("poll job: %v", err)
		}
	}

	m, _ := f.svc.Get(ctx, u.ID, second.Request.ID)
	if m.Status != model.OtpStatusCompleted {
		t.Fatalf("Status = %q, want completed", m.Status)
	}

	balance, _ := f.wallet.Balance(ctx, u.ID)
	if !balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Balance = %s, want 70", balance)
	}

	hist, err := f.svc.History(ctx, u.ID, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("history len = %d, want 2", len(hist))
	}

	st, err := f.svc.UserStats(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if st.Total != 2 || st.Cancelled != 1 || st.Completed != 1 || st.Pending != 0 {
		t.Errorf("stats = %+v", st)
	}
	if !st.TotalSpent.Equal(decimal.NewFromInt(60)) {
		t.Errorf("TotalSpent = %s, want 60", st.TotalSpent)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u := f.store.AddUser("user@example.com", decimal.NewFromInt(100))
	svc := f.store.AddService("whatsapp", decimal.NewFromInt(30), model.ServiceStatusActive)

	created, err := f.svc.Create(ctx, u.ID, svc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, created.Request.ID, "bogus", "", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bogus status err = %v, want ErrInvalidInput", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, created.Request.ID, model.OtpStatusFailed, "", ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// terminal requests stay put
	if _, err := f.svc.UpdateStatus(ctx, created.Request.ID, model.OtpStatusActive, "", ""); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("terminal transition err = %v, want ErrInvalidState", err)
	}
}
