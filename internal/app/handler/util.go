package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
)

// readBody into json struct
func readBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

type jsonError struct {
	Message string `json:"error"`
}

// errInternal is what clients see on a 500; the real error goes to the log.
var errInternal = errors.New("internal server error")

// WriteError formatted in json
func WriteError(w http.ResponseWriter, err error, statusCode int) {
	WriteResponse(w, &jsonError{Message: err.Error()}, statusCode)
}

// WriteResponse formatted in json
func WriteResponse(w http.ResponseWriter, v interface{}, statusCode int) {
	resBody, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(resBody)
}

// writeAppError maps domain sentinels to their http status.
func writeAppError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		l.Debug().Err(err).Msg("Validation error")
		WriteError(w, err, http.StatusBadRequest)
	case errors.Is(err, apperr.ErrUnauthorized):
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
	case errors.Is(err, apperr.ErrInsufficientBalance):
		l.Debug().Err(err).Msg("Insufficient balance")
		WriteError(w, err, http.StatusPaymentRequired)
	case errors.Is(err, apperr.ErrForbidden):
		l.Debug().Err(err).Msg("Forbidden")
		WriteError(w, err, http.StatusForbidden)
	case errors.Is(err, apperr.ErrNotFound):
		l.Debug().Err(err).Msg("Not found")
		WriteError(w, err, http.StatusNotFound)
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrInvalidState):
		l.Debug().Err(err).Msg("Conflict")
		WriteError(w, err, http.StatusConflict)
	case errors.Is(err, apperr.ErrUpstream):
		l.Error().Err(err).Msg("Upstream error")
		WriteError(w, err, http.StatusBadGateway)
	default:
		// never echo internals back to the client
		l.Error().Err(err).Msg("Internal error")
		WriteError(w, errInternal, http.StatusInternalServerError)
	}
}

type ValidationErrorResponse struct {
	Errors ValidationErrors `json:"errors"`
}

type ValidationErrors []ValidationError

type ValidationError struct {
	Msg   string `json:"msg"`
	Param string `json:"param"`
	Value string `json:"value"`
}

// validateData and send errors, returns true if no validation errors
func validateData(w http.ResponseWriter, v interface{}) bool {
	validate := validator.New()
	err := validate.Struct(v)
	if err != nil {
		errors := make(ValidationErrors, 0)
		for _, err := range err.(validator.ValidationErrors) {
			errors = append(errors, ValidationError{
				Msg:   err.Error(),
				Param: err.Field(),
				Value: fmt.Sprintf("%s", err.Value()),
			})
		}
		writeValidationErrors(w, errors)
		return false
	}

	return true
}

// writeValidationErrors formatted in json
func writeValidationErrors(w http.ResponseWriter, errors ValidationErrors) {
	WriteResponse(w, ValidationErrorResponse{errors}, http.StatusBadRequest)
}

type ContextKeyUser struct{}

func ReadContextUser(ctx context.Context) (*model.User, error) {
	v := ctx.Value(ContextKeyUser{})
	if user, ok := v.(*model.User); ok {
		return user, nil
	}

	return nil, apperr.ErrUnauthorized
}
