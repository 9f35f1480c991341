// Package cryptocore implements identity keys, pairwise session key
// derivation, and AEAD encrypt/decrypt with replay protection for the
// daemon. It is the only package that touches private key material.
package cryptocore

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size in bytes of an X25519 private or public key.
const KeySize = 32

// Identity holds the process-wide X25519 key pair. The private scalar
// never leaves this struct; callers only ever observe the public key.
type Identity struct {
	private [KeySize]byte
	public  [KeySize]byte
}

// GenerateIdentity creates a fresh X25519 identity using crypto/rand.
func GenerateIdentity() (*Identity, error) {
	var priv [KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, err
	}
	return identityFromScalar(priv)
}

// IdentityFromPrivateKey reconstructs an Identity from a previously
// generated 32-byte private scalar, e.g. one loaded from PeerStore.
func IdentityFromPrivateKey(priv []byte) (*Identity, error) {
	if len(priv) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	var buf [KeySize]byte
	copy(buf[:], priv)
	return identityFromScalar(buf)
}

func identityFromScalar(priv [KeySize]byte) (*Identity, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	id := &Identity{private: priv}
	copy(id.public[:], pub)
	return id, nil
}

// PublicKey returns the identity's public key.
func (id *Identity) PublicKey() [KeySize]byte {
	return id.public
}

// PublicKeyString returns the public key as URL-safe, unpadded base64 —
// the wire representation exchanged via the signaling coordinator.
func (id *Identity) PublicKeyString() string {
	return base64.RawURLEncoding.EncodeToString(id.public[:])
}

// PrivateKeyBytes returns a copy of the private scalar for persistence by
// PeerStore. Callers must zeroize the returned slice after use.
func (id *Identity) PrivateKeyBytes() []byte {
	out := make([]byte, KeySize)
	copy(out, id.private[:])
	return out
}

// sharedSecret computes the X25519 Diffie-Hellman shared secret between
// this identity's private key and a remote public key.
func (id *Identity) sharedSecret(remotePublic []byte) ([]byte, error) {
	if len(remotePublic) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	secret, err := curve25519.X25519(id.private[:], remotePublic)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return secret, nil
}

// DecodePublicKey parses a URL-safe base64 public key string as produced
// by PublicKeyString.
func DecodePublicKey(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	return b, nil
}
