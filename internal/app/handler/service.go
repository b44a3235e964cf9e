package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/service/catalog"
)

type ServiceHandler struct {
	catalog *catalog.Service
}

func NewServiceHandler(c *catalog.Service) *ServiceHandler {
	return &ServiceHandler{catalog: c}
}

// List returns the active catalog. Public, no auth.
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Service.List")
	l.Debug().Send()

	mm, err := h.catalog.ListActive(ctx)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, mm, http.StatusOK)
}

// ListAll includes inactive entries; admin only.
func (h *ServiceHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Service.ListAll")
	l.Debug().Send()

	mm, err := h.catalog.ListAll(ctx)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, mm, http.StatusOK)
}

type serviceInput struct {
	Name          string          `json:"name" validate:"required,min=2,max=64"`
	Price         decimal.Decimal `json:"price" validate:"required"`
	ApplicationID int             `json:"application_id" validate:"required,gt=0"`
	CountryID     int             `json:"country_id" validate:"omitempty,gt=0"`
	Status        string          `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *ServiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Service.Create")
	l.Debug().Send()

	in := serviceInput{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	m := &model.Service{
		Name:          in.Name,
		Price:         in.Price,
		ApplicationID: in.ApplicationID,
		CountryID:     in.CountryID,
		Status:        model.ServiceStatus(in.Status),
	}
	if m.Status == "" {
		m.Status = model.ServiceStatusActive
	}

	m, err := h.catalog.Create(ctx, m)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, m, http.StatusCreated)
}

func (h *ServiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Service.Update")
	l.Debug().Send()

	id, err := readURLParamID(r, "id")
	if err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	in := serviceInput{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	m := &model.Service{
		ID:            id,
		Name:          in.Name,
		Price:         in.Price,
		ApplicationID: in.ApplicationID,
		CountryID:     in.CountryID,
		Status:        model.ServiceStatus(in.Status),
	}
	if m.Status == "" {
		m.Status = model.ServiceStatusActive
	}

	m, err = h.catalog.Update(ctx, m)
	if err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, m, http.StatusOK)
}

func (h *ServiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Service.Delete")
	l.Debug().Send()

	id, err := readURLParamID(r, "id")
	if err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if err := h.catalog.Delete(ctx, id); err != nil {
		writeAppError(w, l, err)
		return
	}

	WriteResponse(w, struct {
		Success bool `json:"success"`
	}{true}, http.StatusOK)
}
