package service

import (
	"errors"
	"fmt"

	"github.com/dukerupert/paysync/internal/billing/event"
)

var (
	// ErrUnauthenticated means the bearer token is missing, unknown or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound means the account or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = event.ErrInvalidSignature

	// ErrMalformedEvent means a verified webhook payload could not be decoded.
	ErrMalformedEvent = event.ErrMalformed
)

// ValidationError reports a request field that broke a rule. It is terminal:
// retrying the same request fails the same way.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransientError wraps a provider or store failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
