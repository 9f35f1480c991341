// Package peer implements PeerManager: the pending -> handshaking ->
// established peer lifecycle, the authoritative binding between a
// transport connection and a cryptographic identity, handshake
// establishment, and group-invitation admission.
package peer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/zajel/headless/pkg/cryptocore"
	"github.com/zajel/headless/pkg/peerid"
	"github.com/zajel/headless/pkg/peerstore"
	"github.com/zajel/headless/pkg/transport"
)

// DefaultHandshakeTimeout is the deadline for steps 2-6 of the
// establishment algorithm, including message-channel open and the
// handshake frame round trip.
const DefaultHandshakeTimeout = 30 * time.Second

// Config configures a Manager.
type Config struct {
	// HandshakeTimeout bounds transport open + handshake frame exchange.
	// Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// AutoAcceptGroupInvitations, when false, routes validated
	// invitations to Hooks.OnGroupInvitationPendingApproval instead of
	// applying them immediately.
	AutoAcceptGroupInvitations bool

	// AllowPublicKeyMismatch permits a handshake to proceed even when the
	// advertised public key differs from the one observed during
	// signaling pairing. Default false: such a handshake is aborted.
	AllowPublicKeyMismatch bool

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
}

// Hooks are the Manager's only way to reach the rest of the daemon. All
// fields are optional; a nil hook is simply not called.
type Hooks struct {
	// NewChannel constructs the TransportChannel for a peer. cfg's
	// OnMessage, OnFileChunk, and OnClose are filled in by Manager before
	// this is called; the hook only needs to add ICEServers/LoggerFactory.
	// OnICECandidate is left unset: candidates travel inside the
	// non-trickled SDP.
	NewChannel func(cfg transport.Config) (*transport.Channel, error)

	// SendSignal transmits a webrtc_signal frame's payload to peerID via
	// SignalingLink.
	SendSignal func(peerID string, payload map[string]interface{}) error

	OnPeerConnected    func(ConnectedPeer)
	OnPeerDisconnected func(peerID string)

	// InitFileTransfer is called once a peer reaches Established, before
	// peer_connected is emitted.
	InitFileTransfer func(peerID string)

	OnEncryptedFrame func(peerID string, wireCiphertext string)
	OnFileFrame      func(peerID string, frameType string, fields map[string]interface{})
	OnGroupFrame     func(peerID string, fields map[string]interface{})

	OnGroupInvitationAccepted        func(GroupInvitation)
	OnGroupInvitationPendingApproval func(GroupInvitation)
}

type peerEntry struct {
	peer    ConnectedPeer
	channel *transport.Channel

	// expectedPublicKey is the public key observed during signaling
	// pairing, compared against the handshake frame's advertised key.
	expectedPublicKey []byte

	handshakeStarted bool
}

// Manager is PeerManager.
type Manager struct {
	cfg   Config
	hooks Hooks
	log   logging.LeveledLogger

	crypto *cryptocore.Core
	store  *peerstore.Store

	mu              sync.Mutex
	pending         map[string]*peerEntry
	connected       map[string]*ConnectedPeer
	channels        map[string]*transport.Channel
	transportPeerID string

	seenInvitations map[string]struct{}
}

// NewManager constructs a Manager. crypto and store must be non-nil.
func NewManager(crypto *cryptocore.Core, store *peerstore.Store, hooks Hooks, cfg Config) *Manager {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("peer")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("peer")
	}

	return &Manager{
		cfg:             cfg,
		hooks:           hooks,
		log:             log,
		crypto:          crypto,
		store:           store,
		pending:         make(map[string]*peerEntry),
		connected:       make(map[string]*ConnectedPeer),
		channels:        make(map[string]*transport.Channel),
		seenInvitations: make(map[string]struct{}),
	}
}

// BeginEstablish starts steps 1-4 of the establishment algorithm: it
// allocates a pending entry, binds the transport, opens the
// PeerConnection, and — for the initiator — produces and relays an SDP
// offer. The responder side completes its half of the SDP exchange from
// HandleSignal once the offer arrives.
func (m *Manager) BeginEstablish(ctx context.Context, peerID string, expectedPublicKey []byte, isInitiator bool) error {
	if err := peerid.Validate(peerID); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.pending[peerID]; ok {
		m.mu.Unlock()
		return ErrAlreadyPending
	}
	if _, ok := m.connected[peerID]; ok {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}

	entry := &peerEntry{
		peer: ConnectedPeer{
			PeerID:      peerID,
			IsInitiator: isInitiator,
			State:       StatePending,
		},
		expectedPublicKey: append([]byte(nil), expectedPublicKey...),
	}
	m.pending[peerID] = entry
	m.transportPeerID = peerID
	m.mu.Unlock()

	ch, err := m.newChannelFor(peerID)
	if err != nil {
		m.abort(peerID, err)
		return err
	}

	m.mu.Lock()
	entry.channel = ch
	m.channels[peerID] = ch
	m.mu.Unlock()

	if err := ch.Create(isInitiator); err != nil {
		m.abort(peerID, err)
		return err
	}

	m.mu.Lock()
	entry.peer.State = StateHandshaking
	m.mu.Unlock()

	if !isInitiator {
		return nil
	}

	offerSDP, err := ch.CreateOffer()
	if err != nil {
		m.abort(peerID, err)
		return err
	}
	if err := ch.WaitICEGatheringComplete(ctx); err != nil {
		m.abort(peerID, err)
		return err
	}
	if m.hooks.SendSignal != nil {
		if err := m.hooks.SendSignal(peerID, map[string]interface{}{
			"sdpType": "offer",
			"sdp":     ch.LocalDescriptionSDP(),
		}); err != nil {
			m.abort(peerID, err)
			return err
		}
	}

	go m.awaitHandshake(ctx, peerID)
	return nil
}

func (m *Manager) newChannelFor(peerID string) (*transport.Channel, error) {
	if m.hooks.NewChannel == nil {
		return nil, fmt.Errorf("peer: no transport channel factory configured")
	}
	return m.hooks.NewChannel(transport.Config{
		OnMessage:   func(data []byte) { m.handleDataFrame(peerID, data) },
		OnFileChunk: func(data []byte) { m.handleFileChunk(peerID, data) },
		OnClose:     func(reason error) { m.handleTransportClosed(peerID, reason) },
	})
}

// HandleSignal applies a remote SDP offer/answer relayed via
// SignalingLink's webrtc_signal frame. For the responder, an offer
// produces and relays an answer and starts the handshake wait; for the
// initiator, an answer is applied as the remote description
// (BeginEstablish already started the initiator's handshake wait).
func (m *Manager) HandleSignal(ctx context.Context, peerID string, payload map[string]interface{}) error {
	m.mu.Lock()
	entry, ok := m.pending[peerID]
	boundOK := ok && m.transportPeerID == peerID
	m.mu.Unlock()
	if !boundOK {
		return ErrWrongTransportPeer
	}

	sdpType, _ := payload["sdpType"].(string)
	sdp, _ := payload["sdp"].(string)

	switch sdpType {
	case "offer":
		answerSDP, err := entry.channel.CreateAnswer(sdp)
		if err != nil {
			m.abort(peerID, err)
			return err
		}
		if err := entry.channel.WaitICEGatheringComplete(ctx); err != nil {
			m.abort(peerID, err)
			return err
		}
		if m.hooks.SendSignal != nil {
			if err := m.hooks.SendSignal(peerID, map[string]interface{}{
				"sdpType": "answer",
				"sdp":     entry.channel.LocalDescriptionSDP(),
			}); err != nil {
				m.abort(peerID, err)
				return err
			}
		}
		go m.awaitHandshake(ctx, peerID)
	case "answer":
		if err := entry.channel.SetRemoteAnswer(sdp); err != nil {
			m.abort(peerID, err)
			return err
		}
	default:
		return fmt.Errorf("peer: unrecognized signal payload")
	}
	return nil
}

// awaitHandshake implements step 4 (await message channel) and step 5
// (send our handshake frame) of the establishment algorithm.
func (m *Manager) awaitHandshake(ctx context.Context, peerID string) {
	m.mu.Lock()
	entry, ok := m.pending[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.mu.Lock()
	if entry.handshakeStarted {
		m.mu.Unlock()
		return
	}
	entry.handshakeStarted = true
	m.mu.Unlock()

	start := time.Now()
	if err := entry.channel.AwaitMessageChannel(ctx, m.cfg.HandshakeTimeout); err != nil {
		m.abort(peerID, err)
		return
	}

	frame, err := encodeDataFrame(dataFrameHandshake, map[string]interface{}{
		"publicKey": m.crypto.Identity().PublicKeyString(),
	})
	if err != nil {
		m.abort(peerID, err)
		return
	}
	if err := entry.channel.SendMessage(frame); err != nil {
		m.abort(peerID, err)
		return
	}

	// The remote handshake frame must arrive within what is left of
	// HandshakeTimeout; otherwise the pending entry is torn down.
	time.AfterFunc(m.cfg.HandshakeTimeout-time.Since(start), func() {
		m.mu.Lock()
		cur, stillPending := m.pending[peerID]
		m.mu.Unlock()
		if stillPending && cur == entry {
			m.abort(peerID, fmt.Errorf("peer: handshake timed out"))
		}
	})
}

// handleDataFrame is TransportChannel's OnMessage callback for this peer.
// It demultiplexes by frame type; peerID is always the bound transport
// peer id, never a field read from the frame (Property 6).
func (m *Manager) handleDataFrame(peerID string, raw []byte) {
	frame, err := decodeDataFrame(raw)
	if err != nil {
		m.log.Warnf("peer: dropping malformed data frame from %s: %v", peerID, err)
		return
	}

	switch frame.Type {
	case dataFrameHandshake:
		m.finishHandshake(peerID, frame)
	case dataFrameEncrypted:
		m.mu.Lock()
		_, isConnected := m.connected[peerID]
		m.mu.Unlock()
		if !isConnected {
			m.log.Warnf("peer: dropping encrypted frame from unestablished peer %s", peerID)
			return
		}
		if ciphertext, ok := frame.str("ciphertext"); ok && m.hooks.OnEncryptedFrame != nil {
			m.hooks.OnEncryptedFrame(peerID, ciphertext)
		}
	case dataFrameFileStart, dataFrameFileChunk, dataFrameFileComplete:
		if m.hooks.OnFileFrame != nil {
			m.hooks.OnFileFrame(peerID, string(frame.Type), frame.Fields)
		}
	case dataFrameGroupInvitation:
		m.handleGroupInvitation(peerID, frame)
	case dataFrameGroupEncrypted:
		if m.hooks.OnGroupFrame != nil {
			m.hooks.OnGroupFrame(peerID, frame.Fields)
		}
	default:
		m.log.Warnf("peer: dropping data frame of unknown type %q from %s", frame.Type, peerID)
	}
}

// handleFileChunk is TransportChannel's OnFileChunk callback.
func (m *Manager) handleFileChunk(peerID string, raw []byte) {
	frame, err := decodeDataFrame(raw)
	if err != nil {
		m.log.Warnf("peer: dropping malformed file-channel frame from %s: %v", peerID, err)
		return
	}
	if m.hooks.OnFileFrame != nil {
		m.hooks.OnFileFrame(peerID, string(frame.Type), frame.Fields)
	}
}

// finishHandshake implements steps 6-7 of the establishment algorithm.
func (m *Manager) finishHandshake(peerID string, frame dataFrame) {
	advertised, ok := frame.str("publicKey")
	if !ok {
		m.abort(peerID, fmt.Errorf("peer: handshake frame missing publicKey"))
		return
	}
	remotePub, err := cryptocore.DecodePublicKey(advertised)
	if err != nil {
		m.abort(peerID, err)
		return
	}

	m.mu.Lock()
	entry, ok := m.pending[peerID]
	m.mu.Unlock()
	if !ok {
		m.log.Warnf("peer: handshake frame from %s with no pending entry", peerID)
		return
	}

	if len(entry.expectedPublicKey) > 0 && !bytes.Equal(entry.expectedPublicKey, remotePub) {
		if !m.cfg.AllowPublicKeyMismatch {
			m.abort(peerID, ErrPublicKeyMismatch)
			return
		}
		m.log.Warnf("peer: handshake public key mismatch for %s, proceeding per policy", peerID)
	}

	if err := m.crypto.DeriveSession(peerID, remotePub); err != nil {
		m.abort(peerID, err)
		return
	}

	if m.hooks.InitFileTransfer != nil {
		m.hooks.InitFileTransfer(peerID)
	}

	now := time.Now()
	if m.store != nil {
		_ = m.store.Save(peerstore.Peer{
			PeerID:    peerID,
			PublicKey: remotePub,
			TrustedAt: now,
			LastSeen:  now,
		})
	}

	m.mu.Lock()
	entry.peer.PeerPublicKey = remotePub
	entry.peer.State = StateEstablished
	entry.peer.EstablishedAt = now
	delete(m.pending, peerID)
	connected := entry.peer
	m.connected[peerID] = &connected
	m.mu.Unlock()

	if m.hooks.OnPeerConnected != nil {
		m.hooks.OnPeerConnected(connected.clone())
	}
}

func (m *Manager) handleGroupInvitation(peerID string, frame dataFrame) {
	inv, ok := frame.asGroupInvitation()
	if !ok {
		m.log.Warnf("peer: dropping malformed group_invitation from %s", peerID)
		return
	}
	if inv.InviterDeviceID != peerID {
		m.log.Warnf("peer: group_invitation inviter %q does not match bound peer %s", inv.InviterDeviceID, peerID)
		return
	}
	if _, hasKey := inv.SenderKeys[inv.InviterDeviceID]; !hasKey {
		m.log.Warnf("peer: group_invitation from %s has no sender key for the inviter", peerID)
		return
	}
	memberFound := false
	for _, mem := range inv.Members {
		if mem == inv.InviterDeviceID {
			memberFound = true
			break
		}
	}
	if !memberFound {
		m.log.Warnf("peer: group_invitation from %s does not list the inviter as a member", peerID)
		return
	}

	key := inv.GroupID + "|" + inv.InviterDeviceID
	m.mu.Lock()
	_, dup := m.seenInvitations[key]
	if !dup {
		m.seenInvitations[key] = struct{}{}
	}
	m.mu.Unlock()
	if dup {
		m.log.Warnf("peer: dropping duplicate group_invitation %s", key)
		return
	}

	if m.cfg.AutoAcceptGroupInvitations {
		if m.hooks.OnGroupInvitationAccepted != nil {
			m.hooks.OnGroupInvitationAccepted(inv)
		}
	} else if m.hooks.OnGroupInvitationPendingApproval != nil {
		m.hooks.OnGroupInvitationPendingApproval(inv)
	}
}

func (m *Manager) handleTransportClosed(peerID string, reason error) {
	m.mu.Lock()
	_, wasConnected := m.connected[peerID]
	delete(m.connected, peerID)
	delete(m.channels, peerID)
	if m.transportPeerID == peerID {
		m.transportPeerID = ""
	}
	m.mu.Unlock()

	m.crypto.DropSession(peerID)

	if wasConnected {
		if m.hooks.OnPeerDisconnected != nil {
			m.hooks.OnPeerDisconnected(peerID)
		}
		return
	}
	m.abort(peerID, reason)
}

// abort implements step 8: on any failure during establishment, tear
// down the partially-built peer and leave no trace in either table.
func (m *Manager) abort(peerID string, reason error) {
	m.mu.Lock()
	entry, ok := m.pending[peerID]
	delete(m.pending, peerID)
	delete(m.channels, peerID)
	if m.transportPeerID == peerID {
		m.transportPeerID = ""
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if entry.channel != nil {
		_ = entry.channel.Close()
	}
	m.crypto.DropSession(peerID)
	m.log.Warnf("peer: aborting establishment for %s: %v", peerID, reason)
}

// Get returns a copy of an established peer.
func (m *Manager) Get(peerID string) (ConnectedPeer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.connected[peerID]
	if !ok {
		return ConnectedPeer{}, false
	}
	return p.clone(), true
}

// ListConnected returns a snapshot of every Established peer.
func (m *Manager) ListConnected() []ConnectedPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConnectedPeer, 0, len(m.connected))
	for _, p := range m.connected {
		out = append(out, p.clone())
	}
	return out
}

// SendEncrypted seals plaintext under peerID's session key and writes it
// to the message data channel as an "encrypted" frame.
func (m *Manager) SendEncrypted(peerID string, plaintext []byte) error {
	m.mu.Lock()
	_, ok := m.connected[peerID]
	ch := m.channels[peerID]
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	ciphertext, err := m.crypto.Encrypt(peerID, plaintext)
	if err != nil {
		return err
	}
	frame, err := encodeDataFrame(dataFrameEncrypted, map[string]interface{}{"ciphertext": ciphertext})
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrNotConnected
	}
	return ch.SendMessage(frame)
}

// SendRaw writes an already-serialized data frame directly to peerID's
// message data channel, bypassing SendEncrypted's CryptoCore wrapping.
// GroupEngine's frames and invitations and FileTransfer's control
// frames go through this; each engine serializes its own frames.
func (m *Manager) SendRaw(peerID string, frame []byte) error {
	m.mu.Lock()
	_, ok := m.connected[peerID]
	ch := m.channels[peerID]
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	if ch == nil {
		return ErrNotConnected
	}
	return ch.SendMessage(frame)
}

// SendRawBulk writes an already-serialized frame directly to peerID's
// file data channel. FileTransfer uses this for file_chunk frames,
// keeping bulk payloads off the message channel's ordering queue.
func (m *Manager) SendRawBulk(peerID string, frame []byte) error {
	m.mu.Lock()
	_, ok := m.connected[peerID]
	ch := m.channels[peerID]
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	if ch == nil {
		return ErrNotConnected
	}
	return ch.SendFileChunk(frame)
}

// Disconnect closes an established peer's transport and removes it from
// the connected table.
func (m *Manager) Disconnect(peerID string) error {
	m.mu.Lock()
	_, ok := m.connected[peerID]
	ch := m.channels[peerID]
	delete(m.connected, peerID)
	delete(m.channels, peerID)
	if m.transportPeerID == peerID {
		m.transportPeerID = ""
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	m.crypto.DropSession(peerID)
	if ch != nil {
		return ch.Close()
	}
	return nil
}
