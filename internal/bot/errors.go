package bot

import "errors"

type ErrorCode string

const (
	ErrAtCapacity    ErrorCode = "AT_CAPACITY"
	ErrDuplicateName ErrorCode = "DUPLICATE_NAME"
	ErrConnectFailed ErrorCode = "CONNECT_FAILED"
	ErrInvalidName   ErrorCode = "INVALID_NAME"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrClosed        ErrorCode = "CLOSED"
)

// Error is returned by Manager operations. Admission failures
// (AT_CAPACITY, DUPLICATE_NAME, INVALID_NAME) happen before any connection
// attempt; CONNECT_FAILED wraps the handshake cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
