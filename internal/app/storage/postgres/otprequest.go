package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pg "github.com/lib/pq"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

// storage.OtpRequestRepository interface implementation
var _ storage.OtpRequestRepository = (*OtpRequestRepository)(nil)

type OtpRequestRepository struct {
	db *sql.DB
}

func (r *OtpRequestRepository) LoggerComponent() string {
	return "OtpRequestRepository"
}

func NewOtpRequestRepository(db *sql.DB) (*OtpRequestRepository, error) {
	return &OtpRequestRepository{db: db}, nil
}

const otpRequestColumns = `id, user_id, service_id, service_name, provider_request_id, number, otp_code, status, amount_paid, created_at, updated_at, cancelled_at`

func scanOtpRequest(row interface {
	Scan(dest ...interface{}) error
}) (*model.OtpRequest, error) {
	m := &model.OtpRequest{}
	err := row.Scan(&m.ID, &m.UserID, &m.ServiceID, &m.ServiceName, &m.ProviderRequestID, &m.Number, &m.OtpCode, &m.Status, &m.AmountPaid, &m.CreatedAt, &m.UpdatedAt, &m.CancelledAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create implementation of interface storage.OtpRequestRepository
func (r *OtpRequestRepository) Create(ctx context.Context, m *model.OtpRequest) (*model.OtpRequest, error) {
	const SQL = `
		INSERT INTO otp_requests (id, user_id, service_id, service_name, provider_request_id, number, status, amount_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING created_at, updated_at
`
	m.ID = uuid.New()
	now := time.Now()

	err := r.db.QueryRowContext(ctx, SQL,
		m.ID, m.UserID, m.ServiceID, m.ServiceName, m.ProviderRequestID, m.Number, m.Status, m.AmountPaid, now,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// Read implementation of interface storage.OtpRequestRepository
func (r *OtpRequestRepository) Read(ctx context.Context, id uuid.UUID) (*model.OtpRequest, error) {
	SQL := `SELECT ` + otpRequestColumns + ` FROM otp_requests WHERE id=$1`

	m, err := scanOtpRequest(r.db.QueryRowContext(ctx, SQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// ReadOwned implementation of interface storage.OtpRequestRepository
func (r *OtpRequestRepository) ReadOwned(ctx context.Context, id, userID uuid.UUID) (*model.OtpRequest, error) {
	SQL := `SELECT ` + otpRequestColumns + ` FROM otp_requests WHERE id=$1 AND user_id=$2`

	m, err := scanOtpRequest(r.db.QueryRowContext(ctx, SQL, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// AllByUserID implementation of interface storage.OtpRequestRepository
func (r *OtpRequestRepository) AllByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OtpRequest, error) {
	l := logger.Ctx(ctx).With().Str("method", "AllByUserID").Logger()

	SQL := `SELECT ` + otpRequestColumns + `
		FROM otp_requests
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, SQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.OtpRequest, 0)
	for rows.Next() {
		m, err := scanOtpRequest(rows)
		if err != nil {
			l.Debug().Err(err).Send()
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}

// AllAwaitingCode implementation of interface storage.OtpRequestRepository
func (r *OtpRequestRepository) AllAwaitingCode(ctx context.Context) ([]*model.OtpRequest, error) {
	SQL := `SELECT ` + otpRequestColumns + `
		FROM otp_requests
		WHERE status = ANY($1) AND provider_request_id IS NOT NULL
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, SQL, pg.Array([]string{string(model.OtpStatusPending), string(model.OtpStatusActive)}))
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.OtpRequest, 0)
	for rows.Next() {
		m, err := scanOtpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}

// TransitionStatus implementation of interface storage.OtpRequestRepository.
// A single conditional UPDATE serializes concurrent cancel/complete calls on
// the same request: the transition happens only if the current status is
// still one of from.
func (r *OtpRequestRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OtpRequestStatus, to model.OtpRequestStatus, number, code string) (*model.OtpRequest, error) {
	SQL := `
		UPDATE otp_requests
		SET status = $1,
			number = coalesce(nullif($2, ''), number),
			otp_code = coalesce(nullif($3, ''), otp_code),
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $4 AND status = ANY($5)
		RETURNING ` + otpRequestColumns

	fromStr := make([]string, 0, len(from))
	for _, s := range from {
		fromStr = append(fromStr, string(s))
	}

	m, err := scanOtpRequest(r.db.QueryRowContext(ctx, SQL, to, number, code, id, pg.Array(fromStr)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the request is gone or it is no longer in a
			// transitionable status.
			if _, rerr := r.Read(ctx, id); rerr != nil {
				return nil, rerr
			}
			return nil, apperr.ErrInvalidState
		}
		return nil, fmt.Errorf("update: %w", err)
	}

	return m, nil
}
