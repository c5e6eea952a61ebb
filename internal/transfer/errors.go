package transfer

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a download failure.
type ErrorKind int

const (
	// ErrTransport covers network errors, HTTP failures, stalls and size
	// mismatches.
	ErrTransport ErrorKind = iota
	// ErrCancelled means the download was cancelled before completing.
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransport:
		return "Transport"
	case ErrCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is carried by Failed and Cancelled events.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	errCancelledByUser = errors.New("download cancelled")
	errStalled         = errors.New("no data received within stall timeout")
)

// retryableError marks a failure the I/O layer may retry.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// httpStatusError is returned for non-success HTTP responses.
type httpStatusError struct {
	code   int
	status string
}

func (e httpStatusError) Error() string {
	switch e.code {
	case 401:
		return "401 Unauthorized: token rejected by asset host"
	case 403:
		return "403 Forbidden: token lacks access to this asset"
	case 404:
		return "404 Not Found: asset no longer exists"
	case 429:
		return "429 Too Many Requests: rate limited"
	default:
		return e.status
	}
}
