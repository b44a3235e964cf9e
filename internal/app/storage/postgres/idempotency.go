package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/storage"
)

// storage.IdempotencyRepository interface implementation
var _ storage.IdempotencyRepository = (*IdempotencyRepository)(nil)

type IdempotencyRepository struct {
	db *sql.DB
}

func (r *IdempotencyRepository) LoggerComponent() string {
	return "IdempotencyRepository"
}

func NewIdempotencyRepository(db *sql.DB) (*IdempotencyRepository, error) {
	return &IdempotencyRepository{db: db}, nil
}

// Claim implementation of interface storage.IdempotencyRepository. An
// in-flight claim is a row with response_status 0; the conditional INSERT
// makes the claim winnable exactly once.
func (r *IdempotencyRepository) Claim(ctx context.Context, key string, userID uuid.UUID) (*storage.IdempotentResponse, error) {
	const insertSQL = `
		INSERT INTO idempotency_keys (key_id, user_id, response_status, response_body, created_at)
		VALUES ($1, $2, 0, ''::bytea, $3)
		ON CONFLICT (key_id, user_id) DO NOTHING
		RETURNING key_id
`
	var claimed string
	err := r.db.QueryRowContext(ctx, insertSQL, key, userID, time.Now()).Scan(&claimed)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insert: %w", err)
	}

	const selectSQL = `
		SELECT response_status, response_body
		FROM idempotency_keys
		WHERE key_id=$1 AND user_id=$2
`
	res := &storage.IdempotentResponse{}
	err = r.db.QueryRowContext(ctx, selectSQL, key, userID).Scan(&res.Status, &res.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the concurrent holder released between our two statements
			return nil, apperr.ErrConflict
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	if res.Status == 0 {
		return nil, apperr.ErrConflict
	}

	return res, nil
}

// Save implementation of interface storage.IdempotencyRepository
func (r *IdempotencyRepository) Save(ctx context.Context, key string, userID uuid.UUID, status int, body []byte) error {
	const SQL = `
		UPDATE idempotency_keys
		SET response_status=$3, response_body=$4
		WHERE key_id=$1 AND user_id=$2 AND response_status=0
`
	if _, err := r.db.ExecContext(ctx, SQL, key, userID, status, body); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	return nil
}

// Release implementation of interface storage.IdempotencyRepository
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	const SQL = `
		DELETE FROM idempotency_keys
		WHERE key_id=$1 AND user_id=$2 AND response_status=0
`
	if _, err := r.db.ExecContext(ctx, SQL, key, userID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}
