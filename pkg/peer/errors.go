package peer

import "errors"

var (
	// ErrAlreadyPending is returned when a peer id is already in the
	// pending or handshaking table.
	ErrAlreadyPending = errors.New("peer: already pending")

	// ErrAlreadyConnected is returned when a peer id is already
	// established.
	ErrAlreadyConnected = errors.New("peer: already connected")

	// ErrNotPending names an operation that expects a pending entry that
	// does not exist. Manager does not return it: HandleSignal reports a
	// missing pending entry as ErrWrongTransportPeer.
	ErrNotPending = errors.New("peer: not pending")

	// ErrNotConnected is returned when an operation expects an
	// established entry that does not exist.
	ErrNotConnected = errors.New("peer: not connected")

	// ErrWrongTransportPeer is returned by HandleSignal when a relayed
	// signal names a peer id that has no pending entry or is not the
	// currently bound transport peer.
	ErrWrongTransportPeer = errors.New("peer: frame does not match bound transport peer")

	// ErrPublicKeyMismatch is returned when the handshake's advertised
	// public key does not match the one received during signaling
	// pairing, and policy does not permit proceeding anyway.
	ErrPublicKeyMismatch = errors.New("peer: handshake public key mismatch")

	// ErrInvalidInvitation names a group_invitation frame that fails
	// PeerManager's binding checks. Manager does not return it: it logs
	// and drops such a frame.
	ErrInvalidInvitation = errors.New("peer: invalid group invitation")

	// ErrDuplicateInvitation names a (group_id, inviter) pair already
	// seen. Manager does not return it: it logs and drops the repeat.
	ErrDuplicateInvitation = errors.New("peer: duplicate group invitation")
)
