package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/model"
)

type UserRepository interface {
	// Create a new model.User
	Create(ctx context.Context, m *model.User) (*model.User, error)
	// ReadByEmailAndPassword instance of model.User
	ReadByEmailAndPassword(ctx context.Context, email string, password string) (*model.User, error)
	// Read instance of model.User
	Read(ctx context.Context, id uuid.UUID) (*model.User, error)
	// ReadByEmail instance of model.User
	ReadByEmail(ctx context.Context, email string) (*model.User, error)
}

// LedgerRepository is the only path by which a balance changes. Apply
// performs the conditional balance adjustment and appends the transaction
// record as a single atomic unit, so the non-negative invariant holds under
// concurrent debits.
type LedgerRepository interface {
	// Apply delta to the user balance and append the filled-in transaction.
	// Fails with apperr.ErrInsufficientBalance when the resulting balance
	// would be negative, apperr.ErrNotFound when the user does not exist.
	Apply(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, m *model.Transaction) (*model.Transaction, error)
	// Balance of user; an unset balance reads as zero.
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	// Transactions of user, newest first
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, error)
}

type OtpRequestRepository interface {
	// Create a new model.OtpRequest
	Create(ctx context.Context, m *model.OtpRequest) (*model.OtpRequest, error)
	// Read instance of model.OtpRequest
	Read(ctx context.Context, id uuid.UUID) (*model.OtpRequest, error)
	// ReadOwned instance of model.OtpRequest scoped to the owning user
	ReadOwned(ctx context.Context, id, userID uuid.UUID) (*model.OtpRequest, error)
	// AllByUserID returns requests of user, newest first
	AllByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OtpRequest, error)
	// AllAwaitingCode returns non-terminal requests with a provider id
	AllAwaitingCode(ctx context.Context) ([]*model.OtpRequest, error)
	// TransitionStatus moves the request to a new status only if its current
	// status is one of from; fails with apperr.ErrInvalidState otherwise.
	// Optional number/code are assigned when non-empty.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OtpRequestStatus, to model.OtpRequestStatus, number, code string) (*model.OtpRequest, error)
}

type ServiceRepository interface {
	// Create a new model.Service
	Create(ctx context.Context, m *model.Service) (*model.Service, error)
	// Read instance of model.Service
	Read(ctx context.Context, id uuid.UUID) (*model.Service, error)
	// Update instance of model.Service
	Update(ctx context.Context, m *model.Service) (*model.Service, error)
	// Delete instance of model.Service
	Delete(ctx context.Context, id uuid.UUID) error
	// All services, optionally only active ones
	All(ctx context.Context, onlyActive bool) ([]*model.Service, error)
}

type PaymentOrderRepository interface {
	// Create a new model.PaymentOrder
	Create(ctx context.Context, m *model.PaymentOrder) (*model.PaymentOrder, error)
	// ReadByOrderID instance of model.PaymentOrder
	ReadByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	// MarkCompleted moves the order from pending to completed; fails with
	// apperr.ErrInvalidState if the order is not pending anymore, which is
	// what makes the webhook credit exactly-once.
	MarkCompleted(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	// MarkFailed moves the order from pending to failed
	MarkFailed(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	// Reopen moves the order from completed back to pending. Used when the
	// wallet credit fails after the order was claimed, so a retry can
	// settle it.
	Reopen(ctx context.Context, orderID string) (*model.PaymentOrder, error)
}

// IdempotentResponse is a stored response replayed for a repeated key.
type IdempotentResponse struct {
	Status int
	Body   []byte
}

// IdempotencyRepository stores replayable responses keyed by a
// client-supplied idempotency key.
type IdempotencyRepository interface {
	// Claim atomically claims the key for this request. Returns nil when
	// the claim is won, the stored response when the key already finished,
	// and apperr.ErrConflict while a concurrent request holds the claim.
	Claim(ctx context.Context, key string, userID uuid.UUID) (*IdempotentResponse, error)
	// Save fills in the claimed key's response.
	Save(ctx context.Context, key string, userID uuid.UUID, status int, body []byte) error
	// Release gives the claim back so the key can be retried.
	Release(ctx context.Context, key string, userID uuid.UUID) error
}
