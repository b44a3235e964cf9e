// Package otp orchestrates the buy/cancel lifecycle of virtual-number
// requests and keeps wallet and request state consistent.
//
// Ordering is provider-success-first: a number is obtained before the
// wallet is debited, so a failed provider call never costs the user money.
// Status transitions are conditional updates, so concurrent cancel and
// complete calls on the same request cannot both win.
package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/catalog"
	"brandotp/internal/app/service/wallet"
	"brandotp/internal/app/service/worker"
	"brandotp/internal/app/storage"
	"brandotp/pkg/smsman"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100

	pollTimeout = 30 * time.Second
)

// Provider supplies virtual numbers and delivered SMS codes.
type Provider interface {
	Buy(ctx context.Context, applicationID, countryID int) (*smsman.Number, error)
	PollCode(ctx context.Context, requestID string) (*smsman.SMS, error)
	Cancel(ctx context.Context, requestID string) error
}

type Service struct {
	requests storage.OtpRequestRepository
	catalog  *catalog.Service
	wallet   *wallet.Service
	provider Provider
}

func (s *Service) LoggerComponent() string {
	return "Otp.Service"
}

func New(requests storage.OtpRequestRepository, cat *catalog.Service, w *wallet.Service, p Provider) *Service {
	return &Service{
		requests: requests,
		catalog:  cat,
		wallet:   w,
		provider: p,
	}
}

// CreateResult is a created request together with the debit that paid for it.
type CreateResult struct {
	Request *model.OtpRequest
	Debit   *model.Transaction
}

// Create buys a number for the service and debits the service price.
func (s *Service) Create(ctx context.Context, userID, serviceID uuid.UUID) (*CreateResult, error) {
	l := logger.Get(ctx, s)

	svc, err := s.catalog.GetActive(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	num, err := s.provider.Buy(ctx, svc.ApplicationID, svc.CountryID)
	if err != nil {
		l.Debug().Err(err).Str("service", svc.Name).Msg("Provider buy failed")
		return nil, fmt.Errorf("%w: %s", apperr.ErrUpstream, err)
	}

	debit, err := s.wallet.Debit(ctx, userID, svc.Price, "OTP service: "+svc.Name)
	if err != nil {
		// the number was obtained but cannot be paid for; release it
		s.releaseNumber(ctx, num.RequestID)
		return nil, err
	}

	m := &model.OtpRequest{
		UserID:            userID,
		ServiceID:         svc.ID,
		ServiceName:       svc.Name,
		ProviderRequestID: sql.NullString{String: num.RequestID, Valid: true},
		Number:            sql.NullString{String: num.Number, Valid: true},
		Status:            model.OtpStatusPending,
		AmountPaid:        svc.Price,
	}

	m, err = s.requests.Create(ctx, m)
	if err != nil {
		// debited but nothing persisted; compensate with a refund so the
		// ledger and the request log stay consistent
		l.Error().Err(err).Msg("Request persist failed, refunding")
		s.releaseNumber(ctx, num.RequestID)
		if _, rerr := s.wallet.Credit(ctx, userID, svc.Price, "Refund: OTP request persist failed"); rerr != nil {
			l.Error().Err(rerr).Msg("Compensating refund failed")
		}
		return nil, fmt.Errorf("request create: %w", err)
	}

	return &CreateResult{Request: m, Debit: debit}, nil
}

// CancelResult is a cancelled request with its refund, if one was issued.
// RefundErr carries a refund failure after the cancellation was already
// decided; the cancellation itself stands.
type CancelResult struct {
	Request   *model.OtpRequest
	Refund    *model.Transaction
	RefundErr error
}

// Cancel a pending or active request owned by the user and refund the
// amount paid. Fails with apperr.ErrInvalidState when the request already
// reached a terminal status.
func (s *Service) Cancel(ctx context.Context, userID, requestID uuid.UUID) (*CancelResult, error) {
	l := logger.Get(ctx, s)

	m, err := s.requests.ReadOwned(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	// claim the cancellation first: losing the race against a concurrent
	// complete (or a second cancel) means no refund is owed
	cancelled, err := s.requests.TransitionStatus(ctx, m.ID,
		[]model.OtpRequestStatus{model.OtpStatusPending, model.OtpStatusActive},
		model.OtpStatusCancelled, "", "")
	if err != nil {
		return nil, err
	}

	if m.ProviderRequestID.Valid {
		s.releaseNumber(ctx, m.ProviderRequestID.String)
	}

	res := &CancelResult{Request: cancelled}

	if m.AmountPaid.IsPositive() {
		refund, err := s.wallet.Credit(ctx, userID, m.AmountPaid, fmt.Sprintf("Refund for cancelled OTP request %s", m.ID))
		if err != nil {
			// the request is already cancelled; surface the refund failure
			// as a warning instead of failing the operation
			l.Error().Err(err).Str("request_id", m.ID.String()).Msg("Refund failed after cancellation")
			res.RefundErr = err
			return res, nil
		}
		res.Refund = refund
	}

	return res, nil
}

// Get returns a request scoped to the owning user.
func (s *Service) Get(ctx context.Context, userID, requestID uuid.UUID) (*model.OtpRequest, error) {
	return s.requests.ReadOwned(ctx, requestID, userID)
}

// History of the user's requests, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OtpRequest, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.requests.AllByUserID(ctx, userID, limit, offset)
}

// UpdateStatus is the system/admin transition: set a status and optionally
// assign number/code. No wallet side effect, terminal requests stay put.
func (s *Service) UpdateStatus(ctx context.Context, requestID uuid.UUID, status model.OtpRequestStatus, number, code string) (*model.OtpRequest, error) {
	if !model.ValidOtpStatus(string(status)) {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}

	return s.requests.TransitionStatus(ctx, requestID,
		[]model.OtpRequestStatus{model.OtpStatusPending, model.OtpStatusActive},
		status, number, code)
}

// PollJobs returns one code-polling job per request still awaiting a code.
// The pool runs them; a delivered code completes the request.
func (s *Service) PollJobs(ctx context.Context) []worker.Job {
	l := logger.Get(ctx, s)

	mm, err := s.requests.AllAwaitingCode(ctx)
	if err != nil {
		l.Error().Err(err).Msg("Awaiting-code listing failed")
		return nil
	}

	jobs := make([]worker.Job, 0, len(mm))
	for _, m := range mm {
		jobs = append(jobs, s.pollJob(m.ID, m.ProviderRequestID.String))
	}

	return jobs
}

func (s *Service) pollJob(requestID uuid.UUID, providerRequestID string) worker.Job {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		l := logger.Global().Component(s).With().Str("request_id", requestID.String()).Logger()

		sms, err := s.provider.PollCode(ctx, providerRequestID)
		if err != nil {
			return fmt.Errorf("poll code: %w", err)
		}

		if !sms.Received {
			return nil
		}

		_, err = s.requests.TransitionStatus(ctx, requestID,
			[]model.OtpRequestStatus{model.OtpStatusPending, model.OtpStatusActive},
			model.OtpStatusCompleted, "", sms.Code)
		if err != nil {
			if errors.Is(err, apperr.ErrInvalidState) {
				// cancelled while we were polling, the code is moot
				return nil
			}
			return fmt.Errorf("complete request: %w", err)
		}

		l.Info().Msg("Code received, request completed")

		return nil
	}
}

// releaseNumber is best effort: a provider-side leak costs nothing here and
// times out on its own upstream.
func (s *Service) releaseNumber(ctx context.Context, providerRequestID string) {
	if err := s.provider.Cancel(ctx, providerRequestID); err != nil {
		l := logger.Get(ctx, s)
		l.Error().Err(err).Str("provider_request_id", providerRequestID).Msg("Provider cancel failed")
	}
}

// Stats are per-user aggregate counters for the dashboard.
type Stats struct {
	Total      int             `json:"total_requests"`
	Pending    int             `json:"pending_requests"`
	Completed  int             `json:"completed_requests"`
	Cancelled  int             `json:"cancelled_requests"`
	TotalSpent decimal.Decimal `json:"total_amount_spent"`
}

// UserStats counts the user's requests by status over the full history.
func (s *Service) UserStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	mm, err := s.requests.AllByUserID(ctx, userID, maxHistoryLimit*100, 0)
	if err != nil {
		return nil, err
	}

	st := &Stats{TotalSpent: decimal.Zero}
	for _, m := range mm {
		st.Total++
		switch m.Status {
		case model.OtpStatusPending:
			st.Pending++
		case model.OtpStatusCompleted:
			st.Completed++
		case model.OtpStatusCancelled:
			st.Cancelled++
		}
		st.TotalSpent = st.TotalSpent.Add(m.AmountPaid)
	}

	return st, nil
}
