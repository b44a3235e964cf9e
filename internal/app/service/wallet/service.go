// Package wallet is the only path by which a user balance changes. Every
// change produces exactly one ledger transaction.
package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Service struct {
	ledger storage.LedgerRepository
}

func (s *Service) LoggerComponent() string {
	return "Wallet.Service"
}

func New(ledger storage.LedgerRepository) *Service {
	return &Service{ledger: ledger}
}

// Credit adds amount to the user balance. Never fails on the balance check.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive", apperr.ErrInvalidInput)
	}

	l := logger.Get(ctx, s)
	l.Debug().Str("user_id", userID.String()).Str("amount", amount.String()).Msg("Credit")

	m := &model.Transaction{
		Kind:   model.TransactionKindCredit,
		Amount: amount,
		Reason: reason,
	}

	return s.ledger.Apply(ctx, userID, amount, m)
}

// Debit subtracts amount from the user balance. Fails with
// apperr.ErrInsufficientBalance when the balance does not cover it, with no
// state change.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit amount must be positive", apperr.ErrInvalidInput)
	}

	l := logger.Get(ctx, s)
	l.Debug().Str("user_id", userID.String()).Str("amount", amount.String()).Msg("Debit")

	m := &model.Transaction{
		Kind:   model.TransactionKindDebit,
		Amount: amount,
		Reason: reason,
	}

	return s.ledger.Apply(ctx, userID, amount.Neg(), m)
}

// Balance of user. An unset balance reads as zero.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.ledger.Balance(ctx, userID)
}

// Transactions of user, newest first, paged by offset.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.ledger.Transactions(ctx, userID, limit, offset)
}
