package loan

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrConflict         = errors.New("loan already exists or a write condition failed")
	ErrTransport        = errors.New("store unavailable")
	ErrLookupFailed     = errors.New("customer lookup failed")
)

// Outcome is the terminal state of one registration attempt.
type Outcome string

const (
	OutcomeCommitted        Outcome = "committed"
	OutcomeInvalidInput     Outcome = "invalid_input"
	OutcomeCustomerNotFound Outcome = "customer_not_found"
	OutcomeConflict         Outcome = "conflict"
	OutcomeTransportError   Outcome = "transport_error"
)

// Classify maps an error returned by the registrar to its outcome.
// Unrecognized errors are transport errors.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, ErrCustomerNotFound):
		return OutcomeCustomerNotFound
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeTransportError
	}
}
