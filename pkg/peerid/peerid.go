// Package peerid validates the PeerId type shared across the daemon: an
// opaque string, 1-128 characters, matching [A-Za-z0-9_-]+. PeerId is
// never constructed from unvalidated input without passing through
// Validate.
package peerid

import "errors"

// MaxLength is the maximum valid PeerId length.
const MaxLength = 128

// ErrInvalid is returned when a candidate string is not a valid PeerId.
var ErrInvalid = errors.New("peerid: invalid peer id")

// Validate reports whether s is a well-formed PeerId: 1-128 characters,
// each in [A-Za-z0-9_-].
func Validate(s string) error {
	if len(s) == 0 || len(s) > MaxLength {
		return ErrInvalid
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return ErrInvalid
		}
	}
	return nil
}

// IsValid is a boolean convenience wrapper around Validate.
func IsValid(s string) bool {
	return Validate(s) == nil
}
