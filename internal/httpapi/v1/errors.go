package v1

import (
	"errors"
	"net/http"

	"github.com/tinoosan/fintrack/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "bad_request")
}

// writeServiceErr maps the error taxonomy onto HTTP statuses. Infrastructure
// failures never leak their cause; services already logged it.
func writeServiceErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "operation failed"
	}
	writeErr(w, status, msg, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, errs.ErrInvalidMonthFormat):
		return http.StatusUnprocessableEntity, "invalid_month_format"
	case errors.Is(err, errs.ErrInvalidInstallmentCount):
		return http.StatusUnprocessableEntity, "invalid_installment_count"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, errs.ErrInvariantViolation):
		return http.StatusUnprocessableEntity, "invariant_violation"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "operation_failed"
	}
}
