package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/muurk/apkdrop/internal/adb"
)

// ErrorKind represents the category of an install failure
type ErrorKind int

const (
	// ErrPushTransport indicates the artifact could not be staged or the
	// device stopped responding
	ErrPushTransport ErrorKind = iota
	// ErrRejected indicates the package manager refused the package
	ErrRejected
	// ErrCancelled indicates the operator cancelled during the push
	ErrCancelled
	// ErrBusy indicates another install is already running on the device
	ErrBusy
)

// String returns the taxonomy name of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrPushTransport:
		return "PushTransport"
	case ErrRejected:
		return "Rejected"
	case ErrCancelled:
		return "Cancelled"
	case ErrBusy:
		return "Busy"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// InstallError describes why an install did not succeed
type InstallError struct {
	Kind    ErrorKind // Category of error
	Reason  Reason    // Classified rejection reason (Rejected only)
	Output  string    // Device-reported text, verbatim
	Message string    // Human-readable error message
	Serial  string    // Device serial (for context)
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *InstallError) Error() string {
	msg := e.Message
	if e.Kind == ErrRejected {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *InstallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same install could succeed
func (e *InstallError) Retryable() bool {
	switch e.Kind {
	case ErrPushTransport, ErrCancelled, ErrBusy:
		return true
	case ErrRejected:
		return e.Reason.Retryable()
	default:
		return false
	}
}

func newPushError(serial, message string, err error) *InstallError {
	return &InstallError{
		Kind:    ErrPushTransport,
		Message: message + ": " + describeTransportError(err),
		Serial:  serial,
		Err:     err,
	}
}

// describeTransportError turns an adb transport failure into a short phrase
func describeTransportError(err error) string {
	switch {
	case err == nil:
		return "unknown failure"
	case errors.Is(err, adb.ErrShortWrite):
		return "short write to device"
	case os.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return "device did not respond in time"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "adb server is not running"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return "device disconnected"
	}
	var se *adb.ServerError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// IsRejected checks if an error is a package manager rejection
func IsRejected(err error) bool {
	var ie *InstallError
	return errors.As(err, &ie) && ie.Kind == ErrRejected
}

// IsRetryable checks if an install should be worth retrying
func IsRetryable(err error) bool {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Retryable()
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var ie *InstallError
	if !errors.As(err, &ie) {
		return "An unexpected error occurred. Please try again."
	}

	switch ie.Kind {
	case ErrPushTransport:
		return strings.Join([]string{
			"The package could not be copied to the device.",
			"Troubleshooting:",
			"  • Check the USB cable or Wi-Fi connection",
			"  • Confirm the device is listed by 'adb devices'",
			"  • Unlock the device and accept the debugging prompt",
		}, "\n")
	case ErrRejected:
		return ie.Reason.Hint()
	case ErrBusy:
		return "Another install is running on this device. Wait for it to finish."
	case ErrCancelled:
		return "The install was cancelled before the package manager ran."
	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var ie *InstallError
	if !errors.As(err, &ie) {
		return err.Error()
	}
	switch ie.Kind {
	case ErrRejected:
		return fmt.Sprintf("Install rejected: %s", ie.Reason)
	case ErrBusy:
		return "Device busy"
	case ErrCancelled:
		return "Install cancelled"
	default:
		return ie.Message
	}
}
