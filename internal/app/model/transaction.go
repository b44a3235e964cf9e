package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "credit"
	TransactionKindDebit  TransactionKind = "debit"
)

// TransactionStatusCompleted is the only status a ledger entry ever has;
// there is no pending transaction state.
const TransactionStatusCompleted = "completed"

// Transaction is a single immutable ledger entry. The log is append-only:
// entries are never updated or deleted.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"-"`
	Kind            TransactionKind `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Reason          string          `json:"reason"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}
