package cryptocore

import (
	"bytes"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionDomainTag is the fixed domain-separation prefix for the HKDF
// info parameter used to derive pairwise session keys.
var sessionDomainTag = []byte("zajel_session")

// SessionKeySize is the size in bytes of a derived AEAD session key.
const SessionKeySize = 32

// deriveSessionKey implements Crypto_KDF: HKDF-SHA256 over the X25519
// Diffie-Hellman shared secret between id and peerPub, with an empty
// salt and info = domainTag || sort(localPub, peerPub)[0] ||
// sort(localPub, peerPub)[1].
//
// Sorting the two public keys lexicographically before concatenation
// means both sides of a handshake compute identical info bytes without
// needing to agree on an initiator/responder ordering or exchange a salt.
// The shared secret itself — never the public keys alone — is the HKDF
// secret, so a passive observer of both public keys cannot reconstruct
// the session key.
func deriveSessionKey(id *Identity, peerPub []byte) ([]byte, error) {
	secret, err := id.sharedSecret(peerPub)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range secret {
			secret[i] = 0
		}
	}()

	localPub := id.public[:]
	first, second := localPub, peerPub
	if bytes.Compare(first, second) > 0 {
		first, second = second, first
	}

	info := make([]byte, 0, len(sessionDomainTag)+len(first)+len(second))
	info = append(info, sessionDomainTag...)
	info = append(info, first...)
	info = append(info, second...)

	reader := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, SessionKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
