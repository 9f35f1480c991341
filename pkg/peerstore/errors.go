package peerstore

import "errors"

var (
	// ErrNotFound is returned when a peer_id has no row in the store.
	ErrNotFound = errors.New("peerstore: peer not found")

	// ErrInvalidPeerID is returned when a peer_id fails the shared
	// PeerId validation used across the daemon.
	ErrInvalidPeerID = errors.New("peerstore: invalid peer id")
)
