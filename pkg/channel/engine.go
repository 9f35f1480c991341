package channel

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/zajel/headless/pkg/cryptocore"
)

const (
	// DefaultChunkSize is the plaintext size of one chunk's payload
	// before encryption.
	DefaultChunkSize = 16 * 1024

	// DefaultMaxChunksPerChannel bounds the retained chunk store per
	// channel; the oldest by sequence is evicted first.
	DefaultMaxChunksPerChannel = 1000
)

// Config bounds ChannelEngine behavior.
type Config struct {
	ChunkSize           int
	MaxChunksPerChannel int
	LoggerFactory       logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxChunksPerChannel <= 0 {
		c.MaxChunksPerChannel = DefaultMaxChunksPerChannel
	}
}

// Hooks are ChannelEngine's only way to reach the transport and the
// rest of the daemon.
type Hooks struct {
	// Broadcast delivers a published chunk to every known subscriber of
	// channelID. Left nil in a subscriber-only process.
	Broadcast func(channelID string, chunk Chunk) error

	// OnChunkStored is called once a chunk has passed validation and
	// been stored, win or lose the race to complete its logical
	// message.
	OnChunkStored func(channelID string, chunk Chunk)

	// OnContent is called once every chunk_index for a given sequence
	// has been received and the reassembled payload decrypted.
	OnContent func(channelID string, sequence uint64, content []byte)
}

type channelState struct {
	ch          *Channel
	ownerSigner ed25519.PrivateKey // non-nil only if we publish to this channel
	sendCounter uint64
	publishSeq  uint64
	pending     map[uint64]map[int]Chunk // sequence -> chunk_index -> chunk, until complete
}

// Engine is ChannelEngine.
type Engine struct {
	cfg   Config
	hooks Hooks
	log   logging.LeveledLogger

	mu       sync.Mutex
	channels map[string]*channelState
}

// New constructs an Engine.
func New(hooks Hooks, cfg Config) *Engine {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("channel")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("channel")
	}

	return &Engine{
		cfg:      cfg,
		hooks:    hooks,
		log:      log,
		channels: make(map[string]*channelState),
	}
}

// CreateChannel starts a new channel owned by this process, generating
// an ed25519 signing key and an initial symmetric encryption key.
func (e *Engine) CreateChannel(id, name, description string) (*Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.channels[id]; exists {
		return nil, ErrChannelExists
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	encryptKey, err := cryptocore.GenerateSenderKey()
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Name:              name,
		Description:       description,
		OwnerPubKey:       pub,
		CurrentEncryptKey: encryptKey,
	}
	st := &channelState{
		ch:          newChannel(id, manifest),
		ownerSigner: priv,
		pending:     make(map[uint64]map[int]Chunk),
	}
	e.channels[id] = st
	return st.ch, nil
}

// Subscribe registers a channel this process does not own, from a
// manifest obtained via an invite link.
func (e *Engine) Subscribe(id string, manifest Manifest) (*Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.channels[id]; exists {
		return nil, ErrChannelExists
	}
	st := &channelState{
		ch:      newChannel(id, manifest),
		pending: make(map[uint64]map[int]Chunk),
	}
	e.channels[id] = st
	return st.ch, nil
}

// Publish splits content into chunks, encrypts and signs each one, and
// hands them to the Broadcast hook. Returns ErrChannelNotFound for an
// unknown channel and ErrSignatureInvalid if the local process does not
// own the channel (no signing key installed).
func (e *Engine) Publish(channelID string, content []byte) ([]Chunk, error) {
	e.mu.Lock()
	st, ok := e.channels[channelID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrChannelNotFound
	}
	if st.ownerSigner == nil {
		e.mu.Unlock()
		return nil, ErrSignatureInvalid
	}

	st.publishSeq++
	sequence := st.publishSeq
	routingHash := routingHashFor(channelID)
	totalChunks := (len(content) + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	chunks := make([]Chunk, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := i * e.cfg.ChunkSize
		end := start + e.cfg.ChunkSize
		if end > len(content) {
			end = len(content)
		}
		plain := content[start:end]

		ciphertext, err := cryptocore.SealWithKey(st.ch.Manifest.CurrentEncryptKey, st.sendCounter, plain)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		st.sendCounter++

		c := Chunk{
			ChunkID:          fmt.Sprintf("ch_%s_%d_%d", routingHash[:8], sequence, i),
			RoutingHash:      routingHash,
			Sequence:         sequence,
			ChunkIndex:       i,
			TotalChunks:      totalChunks,
			Size:             len(ciphertext),
			AuthorPubKey:     st.ownerSigner.Public().(ed25519.PublicKey),
			EncryptedPayload: []byte(ciphertext),
		}
		c.Signature = ed25519.Sign(st.ownerSigner, c.signingFields())
		chunks = append(chunks, c)
	}
	e.mu.Unlock()

	for _, c := range chunks {
		if e.hooks.Broadcast != nil {
			if err := e.hooks.Broadcast(channelID, c); err != nil {
				e.log.Warnf("channel: broadcast of %s failed: %v", c.ChunkID, err)
			}
		}
	}
	return chunks, nil
}

// HandleChunk processes one inbound chunk through the receive algorithm:
// schema check, trust check, signature check, sequence watermark check,
// dedup, store.
func (e *Engine) HandleChunk(channelID string, c Chunk) error {
	if err := validateChunkSchema(c); err != nil {
		return err
	}

	e.mu.Lock()
	st, ok := e.channels[channelID]
	if !ok {
		e.mu.Unlock()
		return ErrChannelNotFound
	}
	manifest := st.ch.Manifest
	e.mu.Unlock()

	if !manifest.isTrusted(c.AuthorPubKey) {
		return ErrSignatureInvalid
	}
	if !ed25519.Verify(c.AuthorPubKey, c.signingFields(), c.Signature) {
		return ErrSignatureInvalid
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c.Sequence < st.ch.watermark {
		return ErrReplayedSequence
	}

	if existing, present := st.ch.chunks[c.ChunkID]; present {
		if !sameContent(existing, c) {
			return ErrChunkSubstitution
		}
		return nil
	}

	if c.Sequence > st.ch.watermark {
		if c.Sequence > st.ch.watermark+1 {
			e.log.Warnf("channel: sequence gap for %s (watermark=%d, got=%d)", channelID, st.ch.watermark, c.Sequence)
		}
		st.ch.watermark = c.Sequence
	}

	e.store(st.ch, c)
	if e.hooks.OnChunkStored != nil {
		e.hooks.OnChunkStored(channelID, c)
	}

	e.assemble(channelID, st, c.Sequence)
	return nil
}

// store inserts c and evicts the oldest-inserted chunk once the store
// exceeds MaxChunksPerChannel (Property 3). Insertion order is also
// sequence order: HandleChunk rejects any chunk whose sequence is below
// the watermark, so stored sequences never decrease.
func (e *Engine) store(ch *Channel, c Chunk) {
	ch.chunks[c.ChunkID] = c
	ch.order = append(ch.order, c.ChunkID)

	for len(ch.order) > e.cfg.MaxChunksPerChannel {
		oldest := ch.order[0]
		ch.order = ch.order[1:]
		delete(ch.chunks, oldest)
	}
}

func (e *Engine) assemble(channelID string, st *channelState, sequence uint64) {
	group, ok := st.pending[sequence]
	if !ok {
		group = make(map[int]Chunk)
		st.pending[sequence] = group
	}
	// Find every stored chunk for this sequence.
	var total int
	for _, c := range st.ch.chunks {
		if c.Sequence == sequence {
			group[c.ChunkIndex] = c
			total = c.TotalChunks
		}
	}
	if total == 0 || len(group) < total {
		return
	}

	content := make([]byte, 0)
	for i := 0; i < total; i++ {
		c, ok := group[i]
		if !ok {
			return
		}
		plaintext, _, err := cryptocore.OpenWithKey(st.ch.Manifest.CurrentEncryptKey, string(c.EncryptedPayload))
		if err != nil {
			e.log.Warnf("channel: decrypt failed for %s seq=%d chunk=%d: %v", channelID, sequence, i, err)
			return
		}
		content = append(content, plaintext...)
	}

	delete(st.pending, sequence)
	if e.hooks.OnContent != nil {
		e.hooks.OnContent(channelID, sequence, content)
	}
}

// Get returns the Channel record for id.
func (e *Engine) Get(id string) (*Channel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.channels[id]
	if !ok {
		return nil, false
	}
	return st.ch, true
}

func routingHashFor(channelID string) string {
	sum := sha256.Sum256([]byte(channelID))
	return hex.EncodeToString(sum[:])
}

func validateChunkSchema(c Chunk) error {
	if c.ChunkID == "" || len(c.AuthorPubKey) != ed25519.PublicKeySize || len(c.Signature) == 0 {
		return ErrInvalidChunk
	}
	if c.TotalChunks <= 0 || c.ChunkIndex < 0 || c.ChunkIndex >= c.TotalChunks {
		return ErrInvalidChunk
	}
	return nil
}

func sameContent(a, b Chunk) bool {
	if len(a.EncryptedPayload) != len(b.EncryptedPayload) {
		return false
	}
	for i := range a.EncryptedPayload {
		if a.EncryptedPayload[i] != b.EncryptedPayload[i] {
			return false
		}
	}
	return true
}
