// Package filetransfer implements FileTransfer: outbound chunking with
// per-chunk AEAD and a SHA-256 integrity trailer, and the inbound
// reassembly state machine with sanitized file names, resource limits,
// and stale-transfer purge.
package filetransfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pion/logging"
)

const (
	// DefaultChunkSize is the per-chunk plaintext size for outbound
	// sends, chosen to stay well under typical WebRTC data channel
	// message limits once AEAD overhead and base64 are added.
	DefaultChunkSize = 16 * 1024

	// DefaultMaxFileSize is the default upper bound on a single transfer.
	DefaultMaxFileSize = 200 * 1024 * 1024

	// DefaultMaxChunks bounds total_chunks independent of file size, to
	// cap the per-transfer map allocation.
	DefaultMaxChunks = DefaultMaxFileSize/DefaultChunkSize + 1

	// DefaultMaxConcurrentTransfers bounds simultaneous inbound
	// reassemblies across all peers.
	DefaultMaxConcurrentTransfers = 10

	// DefaultTransferTimeout is how long an inbound transfer may sit
	// incomplete before PurgeStale removes it.
	DefaultTransferTimeout = 300 * time.Second

	// overReceiveTolerance is the §4.6 "1.10" factor: bytes_received may
	// exceed total_size by up to 10% before the transfer is aborted. A
	// repeated chunk_index is stored once and counted once.
	overReceiveTolerance = 1.10
)

// Config bounds outbound and inbound file transfer behavior.
type Config struct {
	ChunkSize              int
	MaxFileSize            int64
	MaxChunks              int
	MaxConcurrentTransfers int
	TransferTimeout        time.Duration

	// MediaDir confines outbound send_file paths (Property 4).
	MediaDir string
	// ReceiveDir confines inbound file_complete save paths.
	ReceiveDir string

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	if c.MaxConcurrentTransfers <= 0 {
		c.MaxConcurrentTransfers = DefaultMaxConcurrentTransfers
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = DefaultTransferTimeout
	}
}

// Hooks are Engine's only way to reach CryptoCore and TransportChannel.
type Hooks struct {
	Encrypt func(peerID string, plaintext []byte) (string, error)
	Decrypt func(peerID string, wireCiphertext string) ([]byte, error)

	SendControlFrame func(peerID string, frame []byte) error
	SendBulkFrame    func(peerID string, frame []byte) error

	// OnFileReceived is called once an inbound transfer completes and its
	// bytes have been written under ReceiveDir.
	OnFileReceived func(peerID, fileName, savedPath string)
}

type inboundTransfer struct {
	peerID        string
	fileID        string
	fileName      string
	totalSize     int64
	totalChunks   int
	chunks        map[int][]byte
	bytesReceived int64
	startedAt     time.Time
}

// Engine is FileTransfer.
type Engine struct {
	cfg   Config
	hooks Hooks
	log   logging.LeveledLogger

	mu      sync.Mutex
	inbound map[string]*inboundTransfer // keyed by peerID + "|" + file_id
}

// New constructs an Engine.
func New(hooks Hooks, cfg Config) *Engine {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("filetransfer")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("filetransfer")
	}

	return &Engine{
		cfg:     cfg,
		hooks:   hooks,
		log:     log,
		inbound: make(map[string]*inboundTransfer),
	}
}

func transferKey(peerID, fileID string) string { return peerID + "|" + fileID }

// HandleControlFrame processes an inbound file_start or file_complete
// frame arriving on the "message" data channel.
func (e *Engine) HandleControlFrame(peerID string, raw []byte) error {
	frame, err := decodeFrame(raw)
	if err != nil {
		return err
	}
	switch frameType(frame.Type) {
	case frameTypeFileStart:
		return e.handleFileStart(peerID, frame)
	case frameTypeFileComplete:
		return e.handleFileComplete(peerID, frame)
	}
	return nil
}

// HandleBulkFrame processes an inbound file_chunk frame arriving on the
// "file" data channel.
func (e *Engine) HandleBulkFrame(peerID string, raw []byte) error {
	frame, err := decodeFrame(raw)
	if err != nil {
		return err
	}
	if frameType(frame.Type) != frameTypeFileChunk {
		return nil
	}
	return e.handleFileChunk(peerID, frame)
}

func (e *Engine) handleFileStart(peerID string, frame decodedFrame) error {
	fileID, ok := frame.str("file_id")
	if !ok {
		return ErrInvalidFileStart
	}
	rawName, _ := frame.str("file_name")
	totalSizeF, ok1 := frame.number("total_size")
	totalChunksF, ok2 := frame.number("total_chunks")
	if !ok1 || !ok2 {
		return ErrInvalidFileStart
	}
	totalSize := int64(totalSizeF)
	totalChunks := int(totalChunksF)

	if totalSize <= 0 || totalSize > e.cfg.MaxFileSize {
		return ErrInvalidFileStart
	}
	if totalChunks <= 0 || totalChunks > e.cfg.MaxChunks {
		return ErrInvalidFileStart
	}
	if totalSize > int64(totalChunks)*int64(e.cfg.ChunkSize) {
		return ErrInvalidFileStart
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbound) >= e.cfg.MaxConcurrentTransfers {
		return ErrTooManyConcurrentTransfers
	}

	e.inbound[transferKey(peerID, fileID)] = &inboundTransfer{
		peerID:      peerID,
		fileID:      fileID,
		fileName:    sanitizeFileName(rawName),
		totalSize:   totalSize,
		totalChunks: totalChunks,
		chunks:      make(map[int][]byte, totalChunks),
		startedAt:   time.Now(),
	}
	return nil
}

func (e *Engine) handleFileChunk(peerID string, frame decodedFrame) error {
	fileID, ok := frame.str("file_id")
	if !ok {
		return ErrInvalidFileStart
	}
	indexF, ok := frame.number("chunk_index")
	if !ok {
		return ErrInvalidFileStart
	}
	index := int(indexF)
	ciphertext, ok := frame.str("data")
	if !ok {
		return ErrInvalidFileStart
	}

	e.mu.Lock()
	t, ok := e.inbound[transferKey(peerID, fileID)]
	e.mu.Unlock()
	if !ok {
		return ErrTransferNotFound
	}

	plaintext, err := e.hooks.Decrypt(peerID, ciphertext)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := t.chunks[index]; !dup {
		t.chunks[index] = plaintext
		t.bytesReceived += int64(len(plaintext))
	}
	if float64(t.bytesReceived) > float64(t.totalSize)*overReceiveTolerance {
		delete(e.inbound, transferKey(peerID, fileID))
		return ErrOverSizeBudget
	}
	return nil
}

func (e *Engine) handleFileComplete(peerID string, frame decodedFrame) error {
	fileID, ok := frame.str("file_id")
	if !ok {
		return ErrInvalidFileStart
	}
	declaredSHA, _ := frame.str("sha256")

	e.mu.Lock()
	t, ok := e.inbound[transferKey(peerID, fileID)]
	if ok {
		delete(e.inbound, transferKey(peerID, fileID))
	}
	e.mu.Unlock()
	if !ok {
		return ErrTransferNotFound
	}

	for i := 0; i < t.totalChunks; i++ {
		if _, present := t.chunks[i]; !present {
			return ErrIncompleteTransfer
		}
	}

	content := make([]byte, 0, t.totalSize)
	for i := 0; i < t.totalChunks; i++ {
		content = append(content, t.chunks[i]...)
	}

	if declaredSHA != "" {
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != declaredSHA {
			return ErrChecksumMismatch
		}
	}

	savedPath, err := resolveUnder(e.cfg.ReceiveDir, t.fileName)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(savedPath, content); err != nil {
		return err
	}

	if e.hooks.OnFileReceived != nil {
		e.hooks.OnFileReceived(peerID, t.fileName, savedPath)
	}
	return nil
}

// PurgeStale removes inbound transfers whose start time is older than
// TransferTimeout, relative to now.
func (e *Engine) PurgeStale(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	purged := 0
	for key, t := range e.inbound {
		if now.Sub(t.startedAt) > e.cfg.TransferTimeout {
			delete(e.inbound, key)
			purged++
		}
	}
	return purged
}

// RunPurgeLoop periodically calls PurgeStale until ctx is cancelled.
func (e *Engine) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.cfg.TransferTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.PurgeStale(time.Now()); n > 0 {
				e.log.Warnf("filetransfer: purged %d stale inbound transfer(s)", n)
			}
		}
	}
}

// ActiveInboundCount returns the number of in-progress inbound
// transfers, across all peers.
func (e *Engine) ActiveInboundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inbound)
}
