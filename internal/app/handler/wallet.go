package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"brandotp/internal/app/logger"
	"brandotp/internal/app/service/payment"
	"brandotp/internal/app/service/wallet"
)

type WalletHandler struct {
	wallet   *wallet.Service
	payments *payment.Service
}

func NewWalletHandler(w *wallet.Service, p *payment.Service) *WalletHandler {
	return &WalletHandler{
		wallet:   w,
		payments: p,
	}
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Wallet.Balance")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	balance, err := h.wallet.Balance(ctx, u.ID)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success bool   `json:"success"`
		Balance string `json:"balance"`
	}{true, balance.StringFixed(2)}

	WriteResponse(w, out, http.StatusOK)
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Wallet.Transactions")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	limit, offset := readPaging(r)

	mm, err := h.wallet.Transactions(ctx, u.ID, limit, offset)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	l.Debug().Msgf("response json: %s", jsonString(mm))

	WriteResponse(w, mm, http.StatusOK)
}

// AddMoney starts a top-up. The pay0 method returns a payment URL the
// customer completes the payment through; the balance changes only after
// the gateway webhook settles. The manual method credits directly.
func (h *WalletHandler) AddMoney(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Wallet.AddMoney")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	in := struct {
		Amount        decimal.Decimal `json:"amount" validate:"required"`
		MobileNumber  string          `json:"mobile_number" validate:"required,len=10,numeric"`
		PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=pay0 manual"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	if in.PaymentMethod == "manual" {
		tr, err := h.payments.ManualCredit(ctx, u.ID, in.Amount, "Manual wallet top-up")
		if err != nil {
			writeAppError(w, l, err)
			return
		}

		out := struct {
			Success     bool   `json:"success"`
			Balance     string `json:"balance"`
			Transaction string `json:"transaction_id"`
		}{true, tr.NewBalance.StringFixed(2), tr.ID.String()}

		WriteResponse(w, out, http.StatusOK)
		return
	}

	res, err := h.payments.CreateOrder(ctx, u.ID, in.MobileNumber, in.Amount, "wallet", u.Email)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success    bool   `json:"success"`
		OrderID    string `json:"order_id"`
		PaymentURL string `json:"payment_url"`
	}{true, res.Order.OrderID, res.PaymentURL}

	WriteResponse(w, out, http.StatusOK)
}

// readPaging pulls limit/skip query params, zero when absent or garbage.
func readPaging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
