package shared

import "errors"

// Error taxonomy shared by the booking modules. Module specific errors wrap
// one of these so the HTTP layer can map them without knowing the module.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate unique key or replayed request.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates inventory cannot satisfy a stay.
	ErrUnavailable = errors.New("unavailable")
	// ErrPricingIncomplete indicates missing or closed nightly prices.
	ErrPricingIncomplete = errors.New("pricing incomplete")
	// ErrInvalidState indicates a lifecycle transition that is not allowed.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("forbidden")
)

// UserSafeMessage returns a message that is safe to show to API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrPricingIncomplete),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return "internal error"
	}
}
