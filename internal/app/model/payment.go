package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentOrderStatus string

const (
	PaymentStatusPending   PaymentOrderStatus = "pending"
	PaymentStatusCompleted PaymentOrderStatus = "completed"
	PaymentStatusFailed    PaymentOrderStatus = "failed"
)

// PaymentOrder tracks a Pay0 order from creation to webhook confirmation.
// OrderID is the id shared with the gateway; exactly one wallet credit is
// permitted per order.
type PaymentOrder struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"-"`
	OrderID       string             `json:"order_id"`
	Amount        decimal.Decimal    `json:"amount"`
	MobileNumber  string             `json:"mobile_number"`
	PaymentMethod string             `json:"payment_method"`
	Status        PaymentOrderStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
