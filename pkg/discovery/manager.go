// Package discovery caches each pairing code registered with the
// coordinator against the public key that registered it. The cache is
// held in memory only; the code itself is reused across daemon restarts
// because peerstore saves it. It is a bounded LRU, not a directory
// service: nothing in this
// module performs LAN advertising or resolution, since rendezvous is
// entirely coordinator-mediated.
package discovery

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCodeTTL bounds how long a remembered pairing code stays in the
// cache after its last use.
const DefaultCodeTTL = 24 * time.Hour

// DefaultMaxEntries bounds the cache size; the least recently used
// entry is evicted once this is exceeded.
const DefaultMaxEntries = 64

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// CodeTTL bounds entry lifetime. Zero means DefaultCodeTTL.
	CodeTTL time.Duration

	// MaxEntries bounds the cache size. Zero means DefaultMaxEntries.
	MaxEntries int

	// now is overridable for deterministic tests.
	now func() time.Time
}

func (c *ManagerConfig) applyDefaults() {
	if c.CodeTTL <= 0 {
		c.CodeTTL = DefaultCodeTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.now == nil {
		c.now = time.Now
	}
}

type entry struct {
	code        string
	peerKey     string
	lastUsed    time.Time
	listElement *list.Element
}

// Manager is the pairing-code cache: a bounded, TTL-pruned map from a
// pairing code to the peer public key it was last associated with.
type Manager struct {
	cfg ManagerConfig

	mu      sync.RWMutex
	closed  bool
	entries map[string]*entry
	order   *list.List // front = most recently used
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		entries: make(map[string]*entry),
		order:   list.New(),
	}
}

// Close marks the Manager closed. Remember/Lookup on a closed Manager
// return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// Remember records that code was last used by peerKey, refreshing its
// position as most-recently-used and evicting the oldest entry if the
// cache is now over MaxEntries.
func (m *Manager) Remember(code, peerKey string) error {
	if code == "" {
		return ErrInvalidCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	now := m.cfg.now()
	if e, ok := m.entries[code]; ok {
		e.peerKey = peerKey
		e.lastUsed = now
		m.order.MoveToFront(e.listElement)
		return nil
	}

	e := &entry{code: code, peerKey: peerKey, lastUsed: now}
	e.listElement = m.order.PushFront(e)
	m.entries[code] = e

	for len(m.entries) > m.cfg.MaxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.evictLocked(oldest.Value.(*entry))
	}

	return nil
}

// Lookup returns the peer public key last remembered for code. It
// reports ErrNotFound if the code was never remembered or its entry
// has exceeded CodeTTL since last use, pruning it in that case.
func (m *Manager) Lookup(code string) (string, error) {
	if code == "" {
		return "", ErrInvalidCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	e, ok := m.entries[code]
	if !ok {
		return "", ErrNotFound
	}

	if m.cfg.now().Sub(e.lastUsed) > m.cfg.CodeTTL {
		m.evictLocked(e)
		return "", ErrNotFound
	}

	m.order.MoveToFront(e.listElement)
	return e.peerKey, nil
}

// Forget removes a remembered code, if present.
func (m *Manager) Forget(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[code]; ok {
		m.evictLocked(e)
	}
}

// Len reports the number of cached entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) evictLocked(e *entry) {
	m.order.Remove(e.listElement)
	delete(m.entries, e.code)
}
