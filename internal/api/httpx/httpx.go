package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/token-contests/internal/models"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteErr maps a core error to its HTTP status. Unclassified errors are
// logged and reported as 500 without their message.
func WriteErr(w http.ResponseWriter, err error) {
	var details interface{}
	if f := models.FieldsOf(err); len(f) > 0 {
		details = f
	}
	switch {
	case errors.Is(err, models.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), details)
	case errors.Is(err, models.ErrInsufficientBalance):
		WriteError(w, http.StatusConflict, "insufficient_balance", err.Error(), nil)
	case errors.Is(err, models.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, models.ErrState):
		WriteError(w, http.StatusConflict, "state_error", err.Error(), nil)
	case errors.Is(err, models.ErrArithmetic):
		WriteError(w, http.StatusUnprocessableEntity, "arithmetic_error", err.Error(), nil)
	default:
		slog.Error("request failed", "err", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
