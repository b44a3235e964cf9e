package model

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OtpRequestStatus string

const (
	OtpStatusPending   OtpRequestStatus = "pending"
	OtpStatusActive    OtpRequestStatus = "active"
	OtpStatusCompleted OtpRequestStatus = "completed"
	OtpStatusCancelled OtpRequestStatus = "cancelled"
	OtpStatusFailed    OtpRequestStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s OtpRequestStatus) Terminal() bool {
	switch s {
	case OtpStatusCompleted, OtpStatusCancelled, OtpStatusFailed:
		return true
	}
	return false
}

func ValidOtpStatus(s string) bool {
	switch OtpRequestStatus(s) {
	case OtpStatusPending, OtpStatusActive, OtpStatusCompleted, OtpStatusCancelled, OtpStatusFailed:
		return true
	}
	return false
}

// OtpRequest is a purchase of a temporary virtual number. AmountPaid is a
// snapshot of the service price at creation time and is the amount refunded
// on cancellation.
type OtpRequest struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	ServiceID         uuid.UUID
	ServiceName       string
	ProviderRequestID sql.NullString
	Number            sql.NullString
	OtpCode           sql.NullString
	Status            OtpRequestStatus
	AmountPaid        decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       sql.NullTime
}

// MarshalJSON implements the json.Marshaler interface.
func (m OtpRequest) MarshalJSON() ([]byte, error) {
	o := struct {
		ID          uuid.UUID        `json:"id"`
		ServiceID   uuid.UUID        `json:"service_id"`
		ServiceName string           `json:"service_name"`
		Number      string           `json:"number,omitempty"`
		OtpCode     string           `json:"otp_code,omitempty"`
		Status      OtpRequestStatus `json:"status"`
		AmountPaid  decimal.Decimal  `json:"amount_paid"`
		CreatedAt   time.Time        `json:"created_at"`
		UpdatedAt   time.Time        `json:"updated_at"`
	}{
		ID:          m.ID,
		ServiceID:   m.ServiceID,
		ServiceName: m.ServiceName,
		Number:      m.Number.String,
		OtpCode:     m.OtpCode.String,
		Status:      m.Status,
		AmountPaid:  m.AmountPaid,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	return json.Marshal(o)
}
