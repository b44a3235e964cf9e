package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/otp"
)

type OtpHandler struct {
	otp *otp.Service
}

func NewOtpHandler(svc *otp.Service) *OtpHandler {
	return &OtpHandler{otp: svc}
}

// Create buys a number for the requested service. The debit happens only
// after the provider hands out a number.
func (h *OtpHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.Create")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	in := struct {
		ServiceID uuid.UUID `json:"service_id" validate:"required"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	res, err := h.otp.Create(ctx, u.ID, in.ServiceID)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success bool              `json:"success"`
		Request *model.OtpRequest `json:"request"`
		Balance string            `json:"balance"`
	}{true, res.Request, res.Debit.NewBalance.StringFixed(2)}

	WriteResponse(w, out, http.StatusCreated)
}

func (h *OtpHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.Status")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	id, err := readURLParamID(r, "request_id")
	if err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	m, err := h.otp.Get(ctx, u.ID, id)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success bool              `json:"success"`
		Request *model.OtpRequest `json:"request"`
	}{true, m}

	WriteResponse(w, out, http.StatusOK)
}

// Cancel a pending or active request and refund its price. Cancelling an
// already terminal request is a conflict, not a second refund.
func (h *OtpHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.Cancel")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	id, err := readURLParamID(r, "request_id")
	if err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	res, err := h.otp.Cancel(ctx, u.ID, id)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success  bool              `json:"success"`
		Request  *model.OtpRequest `json:"request"`
		Refunded bool              `json:"refunded"`
		Balance  string            `json:"balance,omitempty"`
	}{Success: true, Request: res.Request}

	if res.Refund != nil {
		out.Refunded = true
		out.Balance = res.Refund.NewBalance.StringFixed(2)
	}

	// the cancellation went through even if the refund did not; report the
	// partial success instead of pretending the whole call failed
	if res.RefundErr != nil {
		l.Error().Err(res.RefundErr).Str("request_id", id.String()).Msg("Refund failed after cancel")
	}

	WriteResponse(w, out, http.StatusOK)
}

func (h *OtpHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.History")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	limit, offset := readPaging(r)

	mm, err := h.otp.History(ctx, u.ID, limit, offset)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, mm, http.StatusOK)
}

func (h *OtpHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.Stats")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	st, err := h.otp.UserStats(ctx, u.ID)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, st, http.StatusOK)
}

// UpdateStatus is the admin override for stuck requests. No refund is
// issued here; failed requests are compensated through the cancel path.
func (h *OtpHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Otp.UpdateStatus")
	l.Debug().Send()

	id, err := readURLParamID(r, "id")
	if err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	in := struct {
		Status string `json:"status" validate:"required"`
		Number string `json:"number" validate:"omitempty,max=20"`
		Code   string `json:"otp_code" validate:"omitempty,max=16"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	status := model.OtpRequestStatus(in.Status)
	if !model.ValidOtpStatus(in.Status) {
		WriteError(w, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, in.Status), http.StatusBadRequest)
		return
	}

	m, err := h.otp.UpdateStatus(ctx, id, status, in.Number, in.Code)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	out := struct {
		Success bool              `json:"success"`
		Request *model.OtpRequest `json:"request"`
	}{true, m}

	WriteResponse(w, out, http.StatusOK)
}

func readURLParamID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s", apperr.ErrInvalidInput, name)
	}
	return id, nil
}
