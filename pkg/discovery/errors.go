package discovery

import "errors"

// Package-level sentinel errors for the pairing-code cache.
var (
	// ErrClosed is returned when an operation is attempted on a closed
	// Manager.
	ErrClosed = errors.New("discovery: closed")

	// ErrInvalidCode is returned for an empty or malformed pairing code.
	ErrInvalidCode = errors.New("discovery: invalid pairing code")

	// ErrNotFound is returned when a pairing code has no cached entry, or
	// its entry has expired.
	ErrNotFound = errors.New("discovery: pairing code not found")
)
