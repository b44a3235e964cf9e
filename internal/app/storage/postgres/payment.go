package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

// storage.PaymentOrderRepository interface implementation
var _ storage.PaymentOrderRepository = (*PaymentOrderRepository)(nil)

type PaymentOrderRepository struct {
	db *sql.DB
}

func (r *PaymentOrderRepository) LoggerComponent() string {
	return "PaymentOrderRepository"
}

func NewPaymentOrderRepository(db *sql.DB) (*PaymentOrderRepository, error) {
	return &PaymentOrderRepository{db: db}, nil
}

const paymentOrderColumns = `id, user_id, order_id, amount, mobile_number, payment_method, status, created_at, updated_at`

func scanPaymentOrder(row interface {
	Scan(dest ...interface{}) error
}) (*model.PaymentOrder, error) {
	m := &model.PaymentOrder{}
	err := row.Scan(&m.ID, &m.UserID, &m.OrderID, &m.Amount, &m.MobileNumber, &m.PaymentMethod, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create implementation of interface storage.PaymentOrderRepository
func (r *PaymentOrderRepository) Create(ctx context.Context, m *model.PaymentOrder) (*model.PaymentOrder, error) {
	const SQL = `
		INSERT INTO payment_orders (id, user_id, order_id, amount, mobile_number, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING created_at, updated_at
`
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = model.PaymentStatusPending
	}

	err := r.db.QueryRowContext(ctx, SQL, m.ID, m.UserID, m.OrderID, m.Amount, m.MobileNumber, m.PaymentMethod, m.Status, time.Now()).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				return nil, apperr.ErrConflict
			}
		}

		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// ReadByOrderID implementation of interface storage.PaymentOrderRepository
func (r *PaymentOrderRepository) ReadByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	SQL := `SELECT ` + paymentOrderColumns + ` FROM payment_orders WHERE order_id=$1`

	m, err := scanPaymentOrder(r.db.QueryRowContext(ctx, SQL, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// MarkCompleted implementation of interface storage.PaymentOrderRepository
func (r *PaymentOrderRepository) MarkCompleted(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return r.transition(ctx, orderID, model.PaymentStatusCompleted)
}

// MarkFailed implementation of interface storage.PaymentOrderRepository
func (r *PaymentOrderRepository) MarkFailed(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return r.transition(ctx, orderID, model.PaymentStatusFailed)
}

// Reopen implementation of interface storage.PaymentOrderRepository
func (r *PaymentOrderRepository) Reopen(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	SQL := `
		UPDATE payment_orders
		SET status = 'pending', updated_at = now()
		WHERE order_id = $1 AND status = 'completed'
		RETURNING ` + paymentOrderColumns

	m, err := scanPaymentOrder(r.db.QueryRowContext(ctx, SQL, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, rerr := r.ReadByOrderID(ctx, orderID); rerr != nil {
				return nil, rerr
			}
			return nil, apperr.ErrInvalidState
		}
		return nil, fmt.Errorf("update: %w", err)
	}

	return m, nil
}

// transition moves an order out of the pending status. The conditional
// UPDATE makes the pending->completed transition claimable exactly once,
// which is the webhook dedupe.
func (r *PaymentOrderRepository) transition(ctx context.Context, orderID string, to model.PaymentOrderStatus) (*model.PaymentOrder, error) {
	SQL := `
		UPDATE payment_orders
		SET status = $1, updated_at = now()
		WHERE order_id = $2 AND status = 'pending'
		RETURNING ` + paymentOrderColumns

	m, err := scanPaymentOrder(r.db.QueryRowContext(ctx, SQL, to, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, rerr := r.ReadByOrderID(ctx, orderID); rerr != nil {
				return nil, rerr
			}
			return nil, apperr.ErrInvalidState
		}
		return nil, fmt.Errorf("update: %w", err)
	}

	return m, nil
}
