package peer

import "time"

// State is a position in the Pending -> Handshaking -> Established
// lifecycle of a ConnectedPeer.
type State int

const (
	// StatePending is set when a peer entry has been allocated but the
	// transport has not yet opened.
	StatePending State = iota

	// StateHandshaking is set once the transport is open and the local
	// daemon is waiting for the remote handshake frame.
	StateHandshaking

	// StateEstablished is set once a session key has been installed.
	StateEstablished

	// StateClosed is a terminal state; the entry is removed from both
	// tables shortly after reaching it.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectedPeer is the daemon's view of a remote identity bound to a
// transport.
type ConnectedPeer struct {
	PeerID        string
	PeerPublicKey []byte
	IsInitiator   bool
	DisplayName   string
	State         State
	EstablishedAt time.Time
}

func (p ConnectedPeer) clone() ConnectedPeer {
	out := p
	if p.PeerPublicKey != nil {
		out.PeerPublicKey = append([]byte(nil), p.PeerPublicKey...)
	}
	return out
}
