package supervisor

import (
	"crypto/rand"
	"sync"
)

// pairingCodeAlphabet excludes visually ambiguous characters (0/O, 1/I)
// since a pairing code is meant to be read aloud or typed by a person.
const pairingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const pairingCodeLength = 6

// randomPairingCode generates a fresh human-typable pairing code.
func randomPairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, pairingCodeLength)
	for i, b := range buf {
		out[i] = pairingCodeAlphabet[int(b)%len(pairingCodeAlphabet)]
	}
	return string(out), nil
}

// pairingState tracks the codes of peers that have asked to pair with
// us but not yet been approved. SignalingLink's pair_incoming/
// pair_matched callbacks only tell us a code and a public key showed
// up; accept_pair/reject_pair are the IPC commands that turn a pending
// entry into something BeginEstablish is allowed to act on for a
// responder-side match (an initiator-side match, where we issued
// connect ourselves, needs no such gate).
type pairingState struct {
	mu       sync.Mutex
	pending  map[string]string   // code -> remote public key, awaiting accept/reject
	accepted map[string]struct{} // remote public key, approved via accept_pair
}

func newPairingState() *pairingState {
	return &pairingState{
		pending:  make(map[string]string),
		accepted: make(map[string]struct{}),
	}
}

// recordIncoming registers a pair_incoming observation, overwriting any
// previous public key seen under the same code.
func (p *pairingState) recordIncoming(code, publicKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[code] = publicKey
}

// accept moves code's pending entry into the accepted set and returns
// the public key it was last seen with.
func (p *pairingState) accept(code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	publicKey, ok := p.pending[code]
	if !ok {
		return "", ErrUnknownPairingCode
	}
	delete(p.pending, code)
	p.accepted[publicKey] = struct{}{}
	return publicKey, nil
}

// reject discards code's pending entry without approving it.
func (p *pairingState) reject(code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[code]; !ok {
		return ErrUnknownPairingCode
	}
	delete(p.pending, code)
	return nil
}

// isAccepted reports whether publicKey was approved by a prior
// accept_pair, consuming the approval so a later unrelated
// pair_matched for the same key needs a fresh accept.
func (p *pairingState) isAccepted(publicKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accepted[publicKey]; !ok {
		return false
	}
	delete(p.accepted, publicKey)
	return true
}
