// Package channel implements ChannelEngine: single-publisher,
// many-subscriber feeds with signed, chunked content and a bounded,
// reorder-tolerant chunk store.
package channel

import "crypto/ed25519"

// Manifest describes a channel's identity and trust set, shared with
// subscribers via an invite link.
type Manifest struct {
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	OwnerPubKey       ed25519.PublicKey   `json:"owner_pubkey"`
	AdminPubKeys      []ed25519.PublicKey `json:"admin_pubkeys,omitempty"`
	CurrentEncryptKey []byte              `json:"current_encrypt_key"`
}

// isTrusted reports whether pub matches the owner or an admin key.
func (m Manifest) isTrusted(pub ed25519.PublicKey) bool {
	if pub.Equal(m.OwnerPubKey) {
		return true
	}
	for _, admin := range m.AdminPubKeys {
		if pub.Equal(admin) {
			return true
		}
	}
	return false
}

// Chunk is one signed, encrypted fragment of channel content.
type Chunk struct {
	ChunkID         string            `json:"chunk_id"`
	RoutingHash     string            `json:"routing_hash"`
	Sequence        uint64            `json:"sequence"`
	ChunkIndex      int               `json:"chunk_index"`
	TotalChunks     int               `json:"total_chunks"`
	Size            int               `json:"size"`
	Signature       []byte            `json:"signature"`
	AuthorPubKey    ed25519.PublicKey `json:"author_pubkey"`
	EncryptedPayload []byte           `json:"encrypted_payload"`
}

// signingFields returns the byte concatenation of header fields that
// is signed.
func (c Chunk) signingFields() []byte {
	buf := make([]byte, 0, len(c.ChunkID)+len(c.RoutingHash)+len(c.EncryptedPayload)+32)
	buf = append(buf, []byte(c.ChunkID)...)
	buf = append(buf, []byte(c.RoutingHash)...)
	buf = appendUint64(buf, c.Sequence)
	buf = appendInt(buf, c.ChunkIndex)
	buf = appendInt(buf, c.TotalChunks)
	buf = appendInt(buf, c.Size)
	buf = append(buf, c.EncryptedPayload...)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * uint(7-i)))
	}
	return append(buf, tmp[:]...)
}

func appendInt(buf []byte, v int) []byte {
	return appendUint64(buf, uint64(v))
}

// Channel is one owned or subscribed feed: its manifest, the local
// publish/receive watermark, and its bounded chunk store.
type Channel struct {
	ID       string
	Manifest Manifest

	watermark uint64
	chunks    map[string]Chunk // chunk_id -> chunk
	order     []string         // chunk ids, oldest-inserted first
}

func newChannel(id string, manifest Manifest) *Channel {
	return &Channel{
		ID:       id,
		Manifest: manifest,
		chunks:   make(map[string]Chunk),
	}
}
