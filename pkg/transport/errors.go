package transport

import "errors"

// Channel errors.
var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("transport: channel closed")

	// ErrNoHandler is returned by New when the message or file-chunk
	// handler is not configured.
	ErrNoHandler = errors.New("transport: no handler configured")

	// ErrAlreadyStarted is returned by Create when called twice on the
	// same Channel.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrMessageChannelTimeout is returned by AwaitMessageChannel when
	// the deadline elapses before the message data channel opens.
	ErrMessageChannelTimeout = errors.New("transport: message channel did not open before deadline")

	// ErrUnavailable is returned when the underlying connection cannot
	// be established or is lost. The core never retries at this layer;
	// the error is surfaced to the caller.
	ErrUnavailable = errors.New("transport: channel unavailable")
)
