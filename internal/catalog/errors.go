package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
)

// ErrorKind is the category of a catalog failure.
type ErrorKind int

const (
	// ErrTransport covers network failures, timeouts and unexpected responses.
	ErrTransport ErrorKind = iota
	// ErrUnauthorized means the credential was rejected.
	ErrUnauthorized
	// ErrNotFound means the repository does not exist or is not visible.
	ErrNotFound
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransport:
		return "Transport"
	case ErrUnauthorized:
		return "Unauthorized"
	case ErrNotFound:
		return "NotFound"
	case ErrRateLimited:
		return "RateLimited"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is returned by FetchReleases.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same request can succeed without
// operator changes.
func (e *Error) Retryable() bool {
	return e.Kind == ErrTransport || e.Kind == ErrRateLimited
}

// KindOf returns the kind of a catalog error, or ErrTransport for any other
// error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrTransport
}

// classify maps a go-github failure onto the catalog taxonomy.
func classify(err error, resp *github.Response) *Error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &Error{Kind: ErrRateLimited, Message: "API rate limit exceeded", StatusCode: http.StatusForbidden, Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &Error{Kind: ErrRateLimited, Message: "secondary rate limit triggered", StatusCode: http.StatusForbidden, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTransport, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrTransport, Message: "request cancelled", Err: err}
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		status = ghErr.Response.StatusCode
	}

	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: ErrUnauthorized, Message: "token rejected", StatusCode: status, Err: err}
	case http.StatusNotFound:
		return &Error{Kind: ErrNotFound, Message: "repository not found or not visible to this token", StatusCode: status, Err: err}
	case http.StatusTooManyRequests:
		return &Error{Kind: ErrRateLimited, Message: "too many requests", StatusCode: status, Err: err}
	case 0:
		return &Error{Kind: ErrTransport, Message: "request failed", Err: err}
	default:
		return &Error{Kind: ErrTransport, Message: fmt.Sprintf("unexpected HTTP %d", status), StatusCode: status, Err: err}
	}
}
