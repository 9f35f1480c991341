package ipc

import "errors"

var (
	// ErrClosed is returned by Start or Stop on a Server that has
	// already been shut down.
	ErrClosed = errors.New("ipc: closed")

	// ErrAlreadyStarted is returned by Start on a Server already running.
	ErrAlreadyStarted = errors.New("ipc: already started")

	// ErrInvalidName is returned for a daemon name that fails the
	// "^[A-Za-z0-9_-]+$" validation.
	ErrInvalidName = errors.New("ipc: invalid socket name")

	// ErrMessageTooLarge names a client request line that exceeds
	// MaxMessageSize. The Server does not return it: it closes such a
	// connection.
	ErrMessageTooLarge = errors.New("ipc: message too large")

	// ErrUnauthorized names a connecting peer whose UID does not match
	// the daemon's own UID. The Server does not return it: it closes such
	// a connection.
	ErrUnauthorized = errors.New("ipc: unauthorized peer uid")
)

// ClientErrorKind is the small, stable error taxonomy surfaced to IPC
// clients. Internals are never echoed raw.
type ClientErrorKind string

const (
	// KindMissingArgument is returned when a required field was absent
	// from the request; the field name is safe to echo.
	KindMissingArgument ClientErrorKind = "missing_argument"

	// KindBadArgument is returned for a validation failure; the message
	// is safe to echo.
	KindBadArgument ClientErrorKind = "bad_argument"

	// KindInternalError covers everything else. The client receives a
	// generic message plus a reference id; the full reason is logged
	// server-side under that id.
	KindInternalError ClientErrorKind = "internal_error"
)

// ClientError is the taxonomy-tagged error a command handler returns.
// The dispatcher translates it to the wire {id, error} response; any
// other error is treated as KindInternalError.
type ClientError struct {
	Kind    ClientErrorKind
	Message string
}

func (e *ClientError) Error() string { return e.Message }

// MissingArgument builds a ClientError naming the absent field.
func MissingArgument(field string) *ClientError {
	return &ClientError{Kind: KindMissingArgument, Message: "missing argument: " + field}
}

// BadArgument builds a ClientError with a caller-supplied, safe-to-echo
// message.
func BadArgument(message string) *ClientError {
	return &ClientError{Kind: KindBadArgument, Message: message}
}
