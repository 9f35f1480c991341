package cryptocore

import "errors"

// Package errors. Every decrypt failure collapses to one of these three —
// callers must not distinguish further, per the non-fatal drop policy.
var (
	// ErrNoSession is returned when no session key exists for a peer.
	ErrNoSession = errors.New("cryptocore: no session for peer")

	// ErrReplayDetected is returned when an inbound counter is not strictly
	// greater than the highest counter previously accepted from that peer.
	ErrReplayDetected = errors.New("cryptocore: replay detected")

	// ErrAuthFailed is returned when AEAD verification fails.
	ErrAuthFailed = errors.New("cryptocore: authentication failed")

	// ErrInvalidCiphertext is returned by OpenWithKey and
	// OpenSenderKeyMessage when the wire ciphertext is not valid base64 or
	// is too short to contain a nonce. Core.Decrypt reports the same input
	// as ErrAuthFailed.
	ErrInvalidCiphertext = errors.New("cryptocore: ciphertext too short")

	// ErrInvalidPublicKey is returned when a peer public key is not a valid
	// X25519 point encoding.
	ErrInvalidPublicKey = errors.New("cryptocore: invalid public key")

	// ErrSessionExists is returned by operations that require no prior
	// session when one is already installed.
	ErrSessionExists = errors.New("cryptocore: session already established")
)
