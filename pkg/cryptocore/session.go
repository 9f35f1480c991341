package cryptocore

import "sync"

// peerSession holds the derived session key and per-direction counters
// for one remote peer. The key buffer is zeroized on Drop.
type peerSession struct {
	key         []byte
	sendCounter uint64 // next counter to use on send
	recvHighest uint64 // highest counter ever accepted on receive
	recvSeen    bool   // false until the first message has been accepted
}

func (s *peerSession) zeroize() {
	for i := range s.key {
		s.key[i] = 0
	}
}

// Core owns the process identity and the table of per-peer session keys.
// It is the only component that touches key material directly.
type Core struct {
	identity *Identity

	mu       sync.RWMutex
	sessions map[string]*peerSession
}

// NewCore wraps an Identity in a Core ready to derive and use pairwise
// sessions.
func NewCore(identity *Identity) *Core {
	return &Core{
		identity: identity,
		sessions: make(map[string]*peerSession),
	}
}

// Identity returns the process identity.
func (c *Core) Identity() *Identity {
	return c.identity
}

// DeriveSession computes the pairwise session key with peerPublicKey and
// installs it for peerID, replacing any prior session. Both sides of a
// handshake call this with each other's public key and arrive at the same
// key, independent of who initiated (Property 1).
func (c *Core) DeriveSession(peerID string, peerPublicKey []byte) error {
	key, err := deriveSessionKey(c.identity, peerPublicKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sessions[peerID]; ok {
		old.zeroize()
	}
	c.sessions[peerID] = &peerSession{key: key}
	return nil
}

// HasSession reports whether a session key is installed for peerID.
func (c *Core) HasSession(peerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[peerID]
	return ok
}

// Encrypt seals plaintext under peerID's session key, consuming and
// advancing the send counter. Returns ErrNoSession if no session is
// installed.
func (c *Core) Encrypt(peerID string, plaintext []byte) (string, error) {
	c.mu.Lock()
	sess, ok := c.sessions[peerID]
	if !ok {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	counter := sess.sendCounter
	sess.sendCounter++
	key := sess.key
	c.mu.Unlock()

	return seal(key, counter)(plaintext)
}

// Decrypt opens a wire ciphertext received from peerID, enforcing strict
// replay protection (Property 2): the decoded counter must be strictly
// greater than the highest counter previously accepted from that peer.
// The high-water mark only advances after successful AEAD verification.
func (c *Core) Decrypt(peerID string, wireCiphertext string) ([]byte, error) {
	c.mu.RLock()
	sess, ok := c.sessions[peerID]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}

	c.mu.Lock()
	key := sess.key
	c.mu.Unlock()

	plaintext, counter, err := open(key, wireCiphertext)
	if err == ErrInvalidCiphertext {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.recvSeen && counter <= sess.recvHighest {
		return nil, ErrReplayDetected
	}
	sess.recvHighest = counter
	sess.recvSeen = true
	return plaintext, nil
}

// DropSession removes and zeroizes the session key for peerID, if any.
func (c *Core) DropSession(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[peerID]; ok {
		sess.zeroize()
		delete(c.sessions, peerID)
	}
}

// SessionCount returns the number of installed sessions.
func (c *Core) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
