package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/session"
	"brandotp/internal/app/storage"
)

type UserHandler struct {
	session session.Creator
	users   storage.UserRepository
}

func NewUserHandler(users storage.UserRepository, sm session.Creator) *UserHandler {
	return &UserHandler{
		session: sm,
		users:   users,
	}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.Get(r.Context(), "Handler.User.Register")

	in := struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	u := &model.User{
		Email:    in.Email,
		Password: in.Password,
		Role:     model.RoleUser,
	}

	u, err := h.users.Create(r.Context(), u)

	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			log.Debug().Err(err).Send()
			WriteError(w, err, http.StatusConflict)
			return
		}
		if errors.Is(err, apperr.ErrInvalidInput) {
			log.Debug().Err(err).Send()
			WriteError(w, err, http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Send()
		WriteError(w, errInternal, http.StatusInternalServerError)
		return
	}

	token, err := h.session.Create(r.Context(), u)
	if err != nil {
		log.Error().Err(err).Send()
		WriteError(w, errInternal, http.StatusInternalServerError)
		return
	}

	out := struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}{token, u}

	w.Header().Add("Authorization", "Bearer "+token)

	WriteResponse(w, out, http.StatusCreated)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	hlog.FromRequest(r).Debug().Msg("Handler.User.Login")

	in := struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	u, err := h.users.ReadByEmailAndPassword(r.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("Login failed")
		WriteError(w, errInternal, http.StatusInternalServerError)
		return
	}

	token, err := h.session.Create(r.Context(), u)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Session create failed")
		WriteError(w, errInternal, http.StatusInternalServerError)
		return
	}

	out := struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}{token, u}

	w.Header().Add("Authorization", "Bearer "+token)

	WriteResponse(w, out, http.StatusOK)
}

// Me returns the authenticated user profile with the current balance.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.User.Me")
	l.Debug().Send()

	u, err := ReadContextUser(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	out := struct {
		*model.User
		Balance string `json:"balance"`
	}{u, u.Balance.StringFixed(2)}

	WriteResponse(w, out, http.StatusOK)
}
