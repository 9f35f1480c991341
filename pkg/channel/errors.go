package channel

import "errors"

var (
	// ErrChannelExists is returned by CreateChannel for a channel id
	// already in use.
	ErrChannelExists = errors.New("channel: already exists")

	// ErrChannelNotFound is returned when an operation names an unknown
	// channel id.
	ErrChannelNotFound = errors.New("channel: not found")

	// ErrInvalidChunk is returned when a chunk fails schema validation:
	// a missing field, or chunk_index >= total_chunks.
	ErrInvalidChunk = errors.New("channel: invalid chunk")

	// ErrSignatureInvalid is returned when a chunk's signature does not
	// verify under any key in the channel's owner/admin set.
	ErrSignatureInvalid = errors.New("channel: signature invalid")

	// ErrChunkSubstitution is returned when a chunk_id already stored
	// under different content is seen again with new content.
	ErrChunkSubstitution = errors.New("channel: content substitution rejected")

	// ErrReplayedSequence is returned for a chunk sequence below the
	// channel's watermark.
	ErrReplayedSequence = errors.New("channel: replayed sequence")

	// ErrInvalidInviteLink is returned when decoding a string that is
	// not a well-formed "zajel://channel/" invite link.
	ErrInvalidInviteLink = errors.New("channel: invalid invite link")
)
