package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the job store
	ErrJobNotFound = errors.New("job not found")

	// ErrPersonaNotFound is returned when a persona id is not in the catalogue
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrInvalidPersona is returned when a custom persona fails validation
	ErrInvalidPersona = errors.New("invalid persona")

	// ErrPersonaReadOnly is returned when a built-in persona is modified or deleted
	ErrPersonaReadOnly = errors.New("built-in persona is read-only")

	// ErrInvalidTransition is returned when a status change skips or reverses the stage order
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownSection is returned when a per-section commit names a section the job does not have
	ErrUnknownSection = errors.New("unknown section")

	// ErrInvalidTrigger is returned when a trigger message cannot be decoded or names an unknown stage
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrMalformedResponse is returned when a collaborator answers with an empty or unparsable result
	ErrMalformedResponse = errors.New("malformed collaborator response")

	// ErrInvalidDocument is returned when an uploaded document is rejected at ingest
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidUsage is returned when a usage record is negative or not a finite number
	ErrInvalidUsage = errors.New("usage quantity must be a non-negative finite number")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in its chain
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
