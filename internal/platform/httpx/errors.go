// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Denial is implemented by authorization errors that carry their own status
// and client-safe reason.
type Denial interface {
	error
	HTTPStatus() int
	DenialReason() string
}

// DenialBody is the JSON body written for 401/403 responses.
type DenialBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Deny writes a denial. Unauthenticated callers only ever get the generic
// message, never which permission was missing.
func Deny(w http.ResponseWriter, status int, reason string) {
	body := DenialBody{Error: "forbidden", Reason: reason}
	if status == http.StatusUnauthorized {
		body = DenialBody{Error: "authentication required", Reason: "Unauthenticated"}
	}
	JSON(w, status, body)
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var denial Denial
	switch {
	case errors.As(err, &denial):
		Deny(w, denial.HTTPStatus(), denial.DenialReason())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Deny(w, http.StatusForbidden, "MissingPermission")
	case errors.Is(err, ErrUnauthorized):
		Deny(w, http.StatusUnauthorized, "Unauthenticated")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
