// Nonce construction and AEAD framing for pairwise session messages.

package cryptocore

import (
	"encoding/base64"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the ChaCha20-Poly1305 nonce length (96 bits).
const NonceSize = chacha20poly1305.NonceSize

// buildNonce encodes a per-peer send counter as a 12-byte big-endian
// nonce. The counter occupies the low 8 bytes; the top 4 bytes are zero,
// matching a 96-bit big-endian counter per spec.
func buildNonce(counter uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.BigEndian.PutUint64(nonce[NonceSize-8:], counter)
	return nonce
}

// counterFromNonce decodes the counter previously encoded by buildNonce.
func counterFromNonce(nonce []byte) uint64 {
	return binary.BigEndian.Uint64(nonce[NonceSize-8:])
}

// seal encrypts plaintext under key using the given send counter and
// returns base64(nonce || ciphertext), the on-wire ciphertext format.
func seal(key []byte, counter uint64) func(plaintext []byte) (string, error) {
	return func(plaintext []byte) (string, error) {
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return "", err
		}
		nonce := buildNonce(counter)
		ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

		wire := make([]byte, 0, NonceSize+len(ciphertext))
		wire = append(wire, nonce[:]...)
		wire = append(wire, ciphertext...)
		return base64.StdEncoding.EncodeToString(wire), nil
	}
}

// SealWithKey encrypts plaintext under an arbitrary key and explicit
// nonce counter. It is the building block ChannelEngine uses to encrypt
// chunk payloads under a channel's shared encryption key, where the
// nonce counter is a per-channel send counter rather than a derived
// pairwise session's.
func SealWithKey(key []byte, counter uint64, plaintext []byte) (string, error) {
	return seal(key, counter)(plaintext)
}

// OpenWithKey decrypts a wire ciphertext produced by SealWithKey,
// returning the decoded nonce counter alongside the plaintext. Callers
// that need replay protection enforce it themselves.
func OpenWithKey(key []byte, wireCiphertext string) (plaintext []byte, counter uint64, err error) {
	return open(key, wireCiphertext)
}

// open decodes and decrypts a wire ciphertext produced by seal, returning
// the plaintext and the decoded counter so the caller can enforce replay
// protection before trusting the result.
func open(key []byte, wireCiphertext string) (plaintext []byte, counter uint64, err error) {
	raw, err := base64.StdEncoding.DecodeString(wireCiphertext)
	if err != nil {
		return nil, 0, ErrInvalidCiphertext
	}
	if len(raw) < NonceSize {
		return nil, 0, ErrInvalidCiphertext
	}

	nonce := raw[:NonceSize]
	ciphertext := raw[NonceSize:]

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, 0, err
	}

	plaintext, err = aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, 0, ErrAuthFailed
	}

	return plaintext, counterFromNonce(nonce), nil
}
