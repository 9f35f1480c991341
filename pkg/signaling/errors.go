package signaling

import "errors"

var (
	// ErrClosed is returned by operations on a disconnected Link.
	ErrClosed = errors.New("signaling: link closed")

	// ErrAlreadyConnected is returned by Connect when already connected.
	ErrAlreadyConnected = errors.New("signaling: already connected")

	// ErrInvalidFrame is returned when an inbound frame fails schema
	// validation. Frames failing this check are logged and dropped, never
	// fatal.
	ErrInvalidFrame = errors.New("signaling: invalid frame")

	// ErrUnknownFrameType is returned (internally) for a frame whose
	// "type" field does not match any known frame.
	ErrUnknownFrameType = errors.New("signaling: unknown frame type")
)
