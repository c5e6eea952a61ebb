package adb

import (
	"errors"
	"fmt"
)

// ErrShortWrite is returned when the transport accepted fewer bytes than
// were written.
var ErrShortWrite = errors.New("adb: short write")

// ServerError is a FAIL reply from the adb server or a sync FAIL from the
// device.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("adb server: %s", e.Message)
}

// IsServerError reports whether err is a FAIL reply rather than a transport
// error.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
