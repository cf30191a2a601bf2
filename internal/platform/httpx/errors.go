package httpx

import (
	"errors"
	"net/http"

	"github.com/innkeep/innkeep/internal/shared"
)

// ErrUnauthorized marks requests without a resolved actor.
var ErrUnauthorized = errors.New("unauthorized")

// Extender is implemented by domain errors that carry RFC7807 extension members.
type Extender interface {
	ProblemExtensions() map[string]any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if shared.IsUniqueViolation(err) {
		Problem(w, http.StatusConflict, "Conflict", "duplicate entry")
		return
	}
	var ext map[string]any
	var extender Extender
	if errors.As(err, &extender) {
		ext = extender.ProblemExtensions()
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		ProblemExt(w, http.StatusNotFound, "Not Found", err.Error(), ext)
	case errors.Is(err, shared.ErrValidation):
		ProblemExt(w, http.StatusBadRequest, "Validation Failed", err.Error(), ext)
	case errors.Is(err, shared.ErrUnavailable):
		ProblemExt(w, http.StatusConflict, "Unavailable", err.Error(), ext)
	case errors.Is(err, shared.ErrPricingIncomplete):
		ProblemExt(w, http.StatusUnprocessableEntity, "Pricing Incomplete", err.Error(), ext)
	case errors.Is(err, shared.ErrInvalidState):
		ProblemExt(w, http.StatusConflict, "Invalid State", err.Error(), ext)
	case errors.Is(err, shared.ErrConflict):
		ProblemExt(w, http.StatusConflict, "Conflict", err.Error(), ext)
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusFor reports the status RespondError would write for err.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case shared.IsUniqueViolation(err):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrPricingIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrUnavailable), errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
