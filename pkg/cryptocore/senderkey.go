package cryptocore

import "crypto/rand"

// SenderKeySize is the length of a group sender key, sized to key
// ChaCha20-Poly1305 directly.
const SenderKeySize = 32

// GenerateSenderKey returns a fresh random key for a group member to
// encrypt their own messages under: every member holds a symmetric key
// of their own rather than a key shared by the whole group.
func GenerateSenderKey() ([]byte, error) {
	key := make([]byte, SenderKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// SenderKeyCipher seals outbound messages under a single sender key,
// advancing a monotonic nonce counter exactly like a pairwise
// peerSession does, but keyed directly instead of derived via DH. A
// group member owns exactly one of these, for its own key. It is not
// safe for concurrent use; callers serialize access (pkg/group does,
// behind its own mutex).
type SenderKeyCipher struct {
	key         []byte
	sendCounter uint64
}

// NewSenderKeyCipher wraps key, taking ownership of the slice.
func NewSenderKeyCipher(key []byte) *SenderKeyCipher {
	return &SenderKeyCipher{key: key}
}

// Seal encrypts plaintext under the wrapped key, consuming and
// advancing the send counter.
func (s *SenderKeyCipher) Seal(plaintext []byte) (string, error) {
	counter := s.sendCounter
	s.sendCounter++
	return seal(s.key, counter)(plaintext)
}

// Zeroize clears the key material. Call when a member leaves a group or
// a group is deleted.
func (s *SenderKeyCipher) Zeroize() {
	for i := range s.key {
		s.key[i] = 0
	}
}

// OpenSenderKeyMessage decrypts a wire ciphertext produced by some
// member's Seal. Unlike a pairwise session, a group receiver does not
// enforce a strict per-key nonce watermark here: ordering and duplicate
// rejection for group messages are the sequence_number and message_id
// discipline applied at the application layer (pkg/group), which
// tolerates the bounded reordering a pure AEAD counter would reject.
func OpenSenderKeyMessage(key []byte, wireCiphertext string) ([]byte, error) {
	plaintext, _, err := open(key, wireCiphertext)
	return plaintext, err
}
