package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
)

func newLedgerMock(t *testing.T) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r, err := NewLedgerRepository(db)
	if err != nil {
		t.Fatalf("NewLedgerRepository: %v", err)
	}

	return r, mock
}

func TestLedgerApplyCredit(t *testing.T) {
	r, mock := newLedgerMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WithArgs(decimal.NewFromInt(100), userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("150"))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := r.Apply(context.Background(), userID, decimal.NewFromInt(100), &model.Transaction{
		Kind:   model.TransactionKindCredit,
		Amount: decimal.NewFromInt(100),
		Reason: "top-up",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !m.NewBalance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("NewBalance = %s, want 150", m.NewBalance)
	}
	if !m.PreviousBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("PreviousBalance = %s, want 50", m.PreviousBalance)
	}
	if m.Status != model.TransactionStatusCompleted {
		t.Errorf("Status = %q, want completed", m.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestLedgerApplyInsufficientBalance(t *testing.T) {
	r, mock := newLedgerMock(t)
	userID := uuid.New()

	// the conditional update matches no row, the user exists
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT 1 FROM users").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := r.Apply(context.Background(), userID, decimal.NewFromInt(-100), &model.Transaction{
		Kind:   model.TransactionKindDebit,
		Amount: decimal.NewFromInt(100),
	})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestLedgerApplyUnknownUser(t *testing.T) {
	r, mock := newLedgerMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT 1 FROM users").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	_, err := r.Apply(context.Background(), userID, decimal.NewFromInt(-100), &model.Transaction{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLedgerApplyInsertFailureRollsBack(t *testing.T) {
	r, mock := newLedgerMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("30"))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), userID, decimal.NewFromInt(-70), &model.Transaction{
		Kind:   model.TransactionKindDebit,
		Amount: decimal.NewFromInt(70),
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestLedgerBalance(t *testing.T) {
	r, mock := newLedgerMock(t)
	userID := uuid.New()

	mock.ExpectQuery("SELECT coalesce").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("42.50"))

	balance, err := r.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("Balance = %s, want 42.50", balance)
	}

	mock.ExpectQuery("SELECT coalesce").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}))

	if _, err := r.Balance(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
