// Package peerstore implements the on-disk table of trusted peers: a
// permission-hardened, single-file JSON store of peer_id to display
// name, public key, trust/last-seen timestamps, and an optional
// persisted session key.
package peerstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zajel/headless/pkg/peerid"
)

// filePerm is the owner-only permission required for the store file.
const filePerm = 0o600

// Peer is one row of the peer table.
type Peer struct {
	PeerID      string    `json:"peer_id"`
	DisplayName string    `json:"display_name,omitempty"`
	PublicKey   []byte    `json:"public_key"`
	TrustedAt   time.Time `json:"trusted_at"`
	LastSeen    time.Time `json:"last_seen"`
	SessionKey  []byte    `json:"session_key,omitempty"`
}

func (p Peer) clone() Peer {
	out := p
	out.PublicKey = append([]byte(nil), p.PublicKey...)
	if p.SessionKey != nil {
		out.SessionKey = append([]byte(nil), p.SessionKey...)
	}
	return out
}

// diskFormat is the JSON-serialized shape of the store file.
type diskFormat struct {
	Peers map[string]Peer `json:"peers"`

	// Identity is the daemon's own X25519 private scalar, persisted here
	// so a restart reuses the same public key instead of minting a new
	// one.
	Identity []byte `json:"identity_private_key,omitempty"`

	// PairingCode is the code this daemon last registered with the
	// coordinator under. SignalingLink has no way to learn a
	// coordinator-assigned code back, so the daemon picks its own and
	// persists it here to keep offering the same code across restarts.
	PairingCode string `json:"pairing_code,omitempty"`
}

// Store is a permission-hardened on-disk peer table. All methods are
// safe for concurrent use. Writes are transactional at the row level:
// each mutating call rewrites the whole file via write-temp-then-rename
// so a crash mid-write never leaves a torn file.
type Store struct {
	path string
	log  Logger

	mu          sync.RWMutex
	peers       map[string]Peer
	identity    []byte
	pairingCode string
}

// Logger is the minimal logging surface peerstore needs, satisfied by
// pion/logging.LeveledLogger.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...interface{}) {}

// Open loads (or creates) the peer store at path. If an existing file
// has permissions looser than owner-only, Open logs a warning and
// tightens them rather than refusing to start.
func Open(path string, log Logger) (*Store, error) {
	if log == nil {
		log = noopLogger{}
	}

	s := &Store{path: path, log: log, peers: make(map[string]Peer)}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, err
	}

	if info.Mode().Perm() != filePerm {
		log.Warnf("peerstore: tightening permissions on %s from %o to %o", path, info.Mode().Perm(), filePerm)
		if err := os.Chmod(path, filePerm); err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}

	var disk diskFormat
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, err
	}
	if disk.Peers != nil {
		s.peers = disk.Peers
	}
	s.identity = disk.Identity
	s.pairingCode = disk.PairingCode
	return s, nil
}

// LoadIdentity returns the persisted private scalar and true if one was
// found on disk, or nil and false on a fresh store.
func (s *Store) LoadIdentity() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, false
	}
	return append([]byte(nil), s.identity...), true
}

// SaveIdentity persists the daemon's own private scalar, replacing any
// previously saved one.
func (s *Store) SaveIdentity(priv []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = append([]byte(nil), priv...)
	return s.flushLocked()
}

// LoadPairingCode returns the daemon's last-registered pairing code and
// true if one was saved, or "" and false on a fresh store.
func (s *Store) LoadPairingCode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pairingCode == "" {
		return "", false
	}
	return s.pairingCode, true
}

// SavePairingCode persists the code the daemon most recently registered
// with the coordinator, replacing any previously saved code.
func (s *Store) SavePairingCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingCode = code
	return s.flushLocked()
}

// Get returns a copy of the stored row for peerID, or ErrNotFound.
func (s *Store) Get(peerID string) (Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok {
		return Peer{}, ErrNotFound
	}
	return p.clone(), nil
}

// Save inserts or replaces the row for p.PeerID.
func (s *Store) Save(p Peer) error {
	if err := peerid.Validate(p.PeerID); err != nil {
		return ErrInvalidPeerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.PeerID] = p.clone()
	return s.flushLocked()
}

// Delete removes the row for peerID, if present.
func (s *Store) Delete(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
	return s.flushLocked()
}

// List returns a copy of every stored peer.
func (s *Store) List() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.clone())
	}
	return out
}

// flushLocked serializes the table to disk. Callers must hold s.mu.
func (s *Store) flushLocked() error {
	disk := diskFormat{Peers: s.peers, Identity: s.identity, PairingCode: s.pairingCode}
	raw, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, filePerm); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
