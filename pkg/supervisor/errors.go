package supervisor

import "errors"

// Package-level errors.
var (
	// ErrAlreadyStarted is returned when Start is called on a running
	// or already-starting Supervisor.
	ErrAlreadyStarted = errors.New("supervisor: already started")

	// ErrNotStarted names an operation that requires a running
	// Supervisor. No Supervisor method returns it.
	ErrNotStarted = errors.New("supervisor: not started")

	// ErrAlreadyStopped is returned when Stop is called on a Supervisor
	// that has already fully stopped.
	ErrAlreadyStopped = errors.New("supervisor: already stopped")

	// ErrUnknownPeer names a peer id with no trusted-table entry and no
	// live connection. No command handler returns it; commands on such a
	// peer fail with the peer package's errors.
	ErrUnknownPeer = errors.New("supervisor: unknown peer")

	// ErrUnknownPairingCode is returned when accept_pair/reject_pair
	// names a code with no pending pair_incoming entry.
	ErrUnknownPairingCode = errors.New("supervisor: unknown pairing code")
)
