// Package fault defines the error taxonomy shared by the fulfillment flows.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects a request before any remote call is made.
	ErrValidation = errors.New("validation failed")
	// ErrCollaboratorUnavailable covers timeouts, 5xx responses and open circuit breakers.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrBusinessRejection is a definitive "no" from a collaborator, e.g. insufficient stock or an invalid voucher.
	ErrBusinessRejection = errors.New("business rejection")
	// ErrSignatureInvalid marks an inbound callback whose signature did not verify.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrCriticalConsistency is raised once retries are exhausted and manual intervention is required.
	ErrCriticalConsistency = errors.New("critical consistency failure")
)

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Unavailable wraps cause as an ErrCollaboratorUnavailable attributed to peer.
func Unavailable(peer string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", peer, ErrCollaboratorUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", peer, ErrCollaboratorUnavailable, cause)
}

// Rejected returns an ErrBusinessRejection attributed to peer.
func Rejected(peer, reason string) error {
	return fmt.Errorf("%s: %w: %s", peer, ErrBusinessRejection, reason)
}

// Kind returns a stable label for err, suitable for metrics and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	case errors.Is(err, ErrBusinessRejection):
		return "business_rejection"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrCriticalConsistency):
		return "critical_consistency"
	default:
		return "internal"
	}
}
