package postgres

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
	"brandotp/internal/app/storage"
)

// storage.LedgerRepository interface implementation
var _ storage.LedgerRepository = (*LedgerRepository)(nil)

type LedgerRepository struct {
	db *sql.DB
}

func (r *LedgerRepository) LoggerComponent() string {
	return "LedgerRepository"
}

func NewLedgerRepository(db *sql.DB) (*LedgerRepository, error) {
	return &LedgerRepository{db: db}, nil
}

// Apply implementation of interface storage.LedgerRepository.
// The balance adjustment is a single conditional UPDATE, so two concurrent
// debits can never race past the balance check: at most one matches.
func (r *LedgerRepository) Apply(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, m *model.Transaction) (*model.Transaction, error) {
	l := logger.Ctx(ctx).With().
		Str("method", "Apply").
		Str("user_id", userID.String()).
		Str("delta", delta.String()).
		Logger()
	l.Debug().Msg("Applying ledger entry")

	m.ID = uuid.New()
	m.UserID = userID
	m.CreatedAt = time.Now()
	m.Status = model.TransactionStatusCompleted

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		l.Error().Err(err).Msg("DB transaction begin")
		return nil, err
	}

	const sqlAdjust = `
		UPDATE users
		SET balance = coalesce(balance, 0) + $1
		WHERE id = $2 AND coalesce(balance, 0) + $1 >= 0
		RETURNING balance
`
	var newBalance decimal.Decimal
	err = tx.QueryRowContext(ctx, sqlAdjust, delta, userID).Scan(&newBalance)
	if err != nil {
		_ = tx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.noMatchError(ctx, userID)
		}
		return nil, fmt.Errorf("balance update: %w", err)
	}

	m.PreviousBalance = newBalance.Sub(delta)
	m.NewBalance = newBalance

	const sqlTx = `
		INSERT INTO transactions (id, user_id, kind, amount, previous_balance, new_balance, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err = tx.ExecContext(ctx, sqlTx, m.ID, m.UserID, m.Kind, m.Amount, m.PreviousBalance, m.NewBalance, m.Reason, m.Status, m.CreatedAt)
	if err != nil {
		l.Error().Err(err).Msg("TX insert failed")
		_ = tx.Rollback()
		return nil, fmt.Errorf("transaction insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Msg("TX commit failed")
		return nil, err
	}

	return m, nil
}

// noMatchError tells a missing user apart from an insufficient balance
// after the conditional update matched no row.
func (r *LedgerRepository) noMatchError(ctx context.Context, userID uuid.UUID) error {
	const SQL = `SELECT 1 FROM users WHERE id=$1`

	var one int
	if err := r.db.QueryRowContext(ctx, SQL, userID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("select: %w", err)
	}

	return apperr.ErrInsufficientBalance
}

// Balance implementation of interface storage.LedgerRepository
func (r *LedgerRepository) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	const SQL = `
		SELECT coalesce(balance, 0)
		FROM users
		WHERE id=$1
`
	var balance decimal.Decimal

	err := r.db.QueryRowContext(ctx, SQL, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, apperr.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("select: %w", err)
	}

	return balance, nil
}

// Transactions implementation of interface storage.LedgerRepository
func (r *LedgerRepository) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, error) {
	l := logger.Ctx(ctx).With().Str("method", "Transactions").Logger()

	const SQL = `
		SELECT id, user_id, kind, amount, previous_balance, new_balance, reason, status, created_at
		FROM transactions
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
`
	res := make([]*model.Transaction, 0)

	rows, err := r.db.QueryContext(ctx, SQL, userID, limit, offset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, nil
		}
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		m := &model.Transaction{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Amount, &m.PreviousBalance, &m.NewBalance, &m.Reason, &m.Status, &m.CreatedAt); err != nil {
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
