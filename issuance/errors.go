package issuance

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironrsa/easyrsa"
)

var (
	// ErrIssuerNotFound indicates no issuer with the id is visible to the caller.
	ErrIssuerNotFound = errors.New("no matching vars record")
	// ErrCertificateNotFound indicates no certificate with the id is visible to the caller.
	ErrCertificateNotFound = errors.New("no matching certificate record")
	// ErrDuplicate indicates the common name is already registered.
	ErrDuplicate = errors.New("common name exists already")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates the step is not allowed from the issuer's status.
	ErrInvalidTransition = errors.New("step not allowed from current status")
	// ErrStatusConflict indicates the issuer changed while a step was running.
	ErrStatusConflict = errors.New("issuer was modified concurrently")
	// ErrBusy indicates another step is running for the same issuer.
	ErrBusy = errors.New("another step is running for this issuer")
	// ErrProvision indicates the issuer directory is missing or could not be prepared.
	ErrProvision = errors.New("issuer directory error")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CommandError is returned when the external command of a step fails.
type CommandError struct {
	Step   Step
	Result *easyrsa.Result
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %s", e.Step, e.Result.ExitCode, e.Result.Output())
}

func (e *CommandError) Unwrap() error {
	return e.Result.Err
}
