// Package apperr defines the typed failures surfaced by services to the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrap them with context using the helper constructors or fmt.Errorf("...: %w", err).
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// NotFound returns an error wrapping ErrNotFound for the named resource.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// Forbidden returns an error wrapping ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Unauthorized returns an error wrapping ErrUnauthorized with a reason.
func Unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

// Conflict returns an error wrapping ErrConflict with a reason.
func Conflict(reason string) error {
	return fmt.Errorf("%w: %s", ErrConflict, reason)
}

// Validation returns an error wrapping ErrValidation with a reason.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Message returns the client-facing message for a typed error: the text of the
// innermost constructor error, without any repository context wrapped around it.
// The sentinel prefix is dropped for wrapped reasons.
func Message(err error) string {
	for _, sentinel := range []error{ErrNotFound, ErrForbidden, ErrUnauthorized, ErrConflict, ErrValidation} {
		if !errors.Is(err, sentinel) {
			continue
		}
		for e := err; e != nil; e = errors.Unwrap(e) {
			if errors.Unwrap(e) != sentinel {
				continue
			}
			msg := e.Error()
			prefix := sentinel.Error() + ": "
			if strings.HasPrefix(msg, prefix) {
				return msg[len(prefix):]
			}
			return msg
		}
		return sentinel.Error()
	}
	return err.Error()
}
