package imageworker

import "errors"

var (
	// ErrMalformedJob is returned when a queue message cannot be decoded
	// into a valid image build job
	ErrMalformedJob = errors.New("malformed image job")

	// ErrUnknownListing is returned when a job references a listing that is
	// no longer in the cache
	ErrUnknownListing = errors.New("listing not in cache")

	// ErrSourceGone is returned when the source photo URL no longer exists
	// upstream
	ErrSourceGone = errors.New("source image gone")
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
