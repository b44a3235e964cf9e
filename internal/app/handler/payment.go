package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/logger"
	"brandotp/internal/app/service/payment"
)

type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(p *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: p}
}

func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Payment.CreateOrder")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	in := struct {
		Amount  decimal.Decimal `json:"amount" validate:"required"`
		Mobile  string          `json:"mobile" validate:"required,len=10,numeric"`
		Remark1 string          `json:"remark1" validate:"omitempty,max=64"`
		Remark2 string          `json:"remark2" validate:"omitempty,max=64"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	res, err := h.payments.CreateOrder(ctx, u.ID, in.Mobile, in.Amount, in.Remark1, in.Remark2)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success    bool   `json:"success"`
		OrderID    string `json:"order_id"`
		PaymentURL string `json:"payment_url"`
		Status     string `json:"status"`
	}{true, res.Order.OrderID, res.PaymentURL, string(res.Order.Status)}

	WriteResponse(w, out, http.StatusOK)
}

// Webhook is the gateway callback. It is acknowledged right away; the
// wallet credit happens on the worker pool after a fresh status check with
// the gateway, so a spoofed or replayed callback cannot mint money.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Payment.Webhook")
	l.Debug().Send()

	if err := r.ParseForm(); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	orderID := r.PostFormValue("order_id")
	if orderID == "" {
		orderID = r.PostFormValue("orderId")
	}
	status := r.PostFormValue("status")

	if err := h.payments.HandleWebhook(ctx, orderID, status); err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, struct {
		OK bool `json:"ok"`
	}{true}, http.StatusOK)
}

// AdminCredit adds money to any user wallet without a gateway order.
func (h *PaymentHandler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Payment.AdminCredit")
	l.Debug().Send()

	in := struct {
		UserID uuid.UUID       `json:"user_id" validate:"required"`
		Amount decimal.Decimal `json:"amount" validate:"required"`
		Reason string          `json:"reason" validate:"omitempty,max=128"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	reason := in.Reason
	if reason == "" {
		reason = "Admin credit"
	}

	tr, err := h.payments.ManualCredit(ctx, in.UserID, in.Amount, reason)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success bool   `json:"success"`
		Balance string `json:"balance"`
	}{true, tr.NewBalance.StringFixed(2)}

	WriteResponse(w, out, http.StatusOK)
}
