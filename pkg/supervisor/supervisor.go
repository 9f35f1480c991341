// Package supervisor wires PeerManager, SignalingLink, GroupEngine,
// ChannelEngine, FileTransfer, and IpcDaemon into the single running
// headless daemon process. Its New/Start/Stop lifecycle constructs
// everything up front, starts subsystems in dependency order with
// rollback on failure, and tears them down in reverse on Stop.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/zajel/headless/pkg/channel"
	"github.com/zajel/headless/pkg/cryptocore"
	"github.com/zajel/headless/pkg/discovery"
	"github.com/zajel/headless/pkg/eventbus"
	"github.com/zajel/headless/pkg/filetransfer"
	"github.com/zajel/headless/pkg/group"
	"github.com/zajel/headless/pkg/ipc"
	"github.com/zajel/headless/pkg/peer"
	"github.com/zajel/headless/pkg/peerstore"
	"github.com/zajel/headless/pkg/signaling"
	"github.com/zajel/headless/pkg/transport"
)

// Supervisor owns every subsystem of one headless daemon process.
type Supervisor struct {
	cfg Config
	log logging.LeveledLogger

	crypto       *cryptocore.Core
	store        *peerstore.Store
	pairingCache *discovery.Manager
	pairing      *pairingState

	link     *signaling.Link
	peers    *peer.Manager
	files    *filetransfer.Engine
	groups   *group.Engine
	channels *channel.Engine
	events   *eventbus.Bus
	ipcSrv   *ipc.Server

	myPeerID    string
	pairingCode string

	mu    sync.Mutex
	state State

	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// New constructs every subsystem and wires their hooks together, but
// starts nothing. crypto identity and the pairing code are loaded from
// cfg.Core.PeerStorePath, generating and persisting fresh ones on a
// first run.
func New(cfg Config) (*Supervisor, error) {
	cfg.applyDefaults()

	loggerFactory := cfg.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("supervisor")

	store, err := peerstore.Open(cfg.Core.PeerStorePath, loggerFactory.NewLogger("peerstore"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: open peer store: %w", err)
	}

	identity, err := loadOrGenerateIdentity(store)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load identity: %w", err)
	}

	pairingCode, ok := store.LoadPairingCode()
	if !ok {
		pairingCode, err = randomPairingCode()
		if err != nil {
			return nil, fmt.Errorf("supervisor: generate pairing code: %w", err)
		}
		if err := store.SavePairingCode(pairingCode); err != nil {
			return nil, fmt.Errorf("supervisor: save pairing code: %w", err)
		}
	}

	s := &Supervisor{
		cfg:         cfg,
		log:         log,
		crypto:      cryptocore.NewCore(identity),
		store:       store,
		myPeerID:    identity.PublicKeyString(),
		pairingCode: pairingCode,
		pairing:     newPairingState(),
		events:      eventbus.New(loggerFactory),
		state:       StateInitialized,
	}

	s.pairingCache = discovery.NewManager(discovery.ManagerConfig{
		CodeTTL: cfg.Core.PairingCodeTTL,
	})
	if err := s.pairingCache.Remember(pairingCode, s.myPeerID); err != nil {
		log.Warnf("supervisor: remember pairing code: %v", err)
	}

	s.files = filetransfer.New(filetransfer.Hooks{
		Encrypt:          s.crypto.Encrypt,
		Decrypt:          s.crypto.Decrypt,
		SendControlFrame: s.peersSendRaw,
		SendBulkFrame:    s.peersSendRawBulk,
		OnFileReceived:   s.onFileReceived,
	}, filetransfer.Config{
		ChunkSize:              cfg.Core.ChunkSize,
		MaxFileSize:            cfg.Core.MaxFileSize,
		MaxChunks:              cfg.Core.MaxChunks,
		MaxConcurrentTransfers: cfg.Core.MaxConcurrentTransfers,
		TransferTimeout:        cfg.Core.TransferTimeout,
		MediaDir:               cfg.Core.MediaDir,
		ReceiveDir:             cfg.Core.ReceiveDir,
		LoggerFactory:          loggerFactory,
	})

	s.groups = group.New(s.myPeerID, group.Hooks{
		SendFrame:      s.peersSendRaw,
		SendInvitation: s.sendGroupInvitation,
		OnGroupMessage: s.onGroupMessage,
	}, group.Config{
		MaxSeqGap:           cfg.Core.MaxSeqGap,
		MaxMessagesPerGroup: cfg.Core.MaxMessagesPerGroup,
		LoggerFactory:       loggerFactory,
	})

	s.channels = channel.New(channel.Hooks{
		Broadcast:     s.broadcastChunk,
		OnChunkStored: s.onChunkStored,
		OnContent:     s.onChannelContent,
	}, channel.Config{
		ChunkSize:           cfg.Core.ChannelChunkSize,
		MaxChunksPerChannel: cfg.Core.MaxChunksPerChannel,
		LoggerFactory:       loggerFactory,
	})

	s.peers = peer.NewManager(s.crypto, store, peer.Hooks{
		NewChannel:                       s.newTransportChannel,
		SendSignal:                       s.sendWebRTCSignal,
		OnPeerConnected:                  s.onPeerConnected,
		OnPeerDisconnected:               s.onPeerDisconnected,
		InitFileTransfer:                 s.onInitFileTransfer,
		OnEncryptedFrame:                 s.onEncryptedFrame,
		OnFileFrame:                      s.onFileFrame,
		OnGroupFrame:                     s.onGroupFrame,
		OnGroupInvitationAccepted:        s.onGroupInvitationAccepted,
		OnGroupInvitationPendingApproval: s.onGroupInvitationPendingApproval,
	}, peer.Config{
		HandshakeTimeout:           cfg.Core.HandshakeTimeout,
		AutoAcceptGroupInvitations: cfg.Core.AutoAcceptGroupInvitations,
		LoggerFactory:              loggerFactory,
	})

	s.link = signaling.New(signaling.Config{
		URL:                 cfg.Core.CoordinatorURL,
		HeartbeatInterval:   cfg.Core.HeartbeatInterval,
		MaxMissedHeartbeats: cfg.Core.MaxMissedHeartbeats,
		LoggerFactory:       loggerFactory,
		Callbacks: signaling.Callbacks{
			OnPairIncoming: s.onPairIncoming,
			OnPairMatched:  s.onPairMatched,
			OnWebRTCSignal: s.onWebRTCSignalEnvelope,
			OnCallSignal:   s.onCallSignal,
			OnChunkData:    s.onChunkDataEnvelope,
			OnStateChange:  s.onSignalingStateChange,
		},
	})

	ipcServer, err := ipc.New(ipc.Config{
		Name:           cfg.Core.DaemonName,
		RuntimeDir:     cfg.Core.RuntimeDir,
		MaxMessageSize: cfg.Core.MaxMessageSize,
		LoggerFactory:  loggerFactory,
	}, s.commandTable())
	if err != nil {
		return nil, fmt.Errorf("supervisor: init ipc server: %w", err)
	}
	s.ipcSrv = ipcServer

	return s, nil
}

func loadOrGenerateIdentity(store *peerstore.Store) (*cryptocore.Identity, error) {
	if priv, ok := store.LoadIdentity(); ok {
		return cryptocore.IdentityFromPrivateKey(priv)
	}
	id, err := cryptocore.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := store.SaveIdentity(id.PrivateKeyBytes()); err != nil {
		return nil, err
	}
	return id, nil
}

// Start connects SignalingLink and opens the IPC socket. On any
// failure it rolls back whatever already started.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CanStart() {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	s.notifyState(StateStarting)

	if err := s.link.Connect(runCtx, s.myPeerID, s.pairingCode); err != nil {
		cancel()
		s.setState(StateInitialized)
		return fmt.Errorf("supervisor: connect signaling link: %w", err)
	}

	if err := s.ipcSrv.Start(); err != nil {
		_ = s.link.Disconnect()
		cancel()
		s.setState(StateInitialized)
		return fmt.Errorf("supervisor: start ipc server: %w", err)
	}

	go s.files.RunPurgeLoop(runCtx, 0)

	s.setState(StateRunning)
	return nil
}

// Stop disconnects SignalingLink, closes the IPC socket, and stops the
// purge loop. A second call changes nothing and returns
// ErrAlreadyStopped.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.state.CanStop() {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.state = StateStopping
	s.mu.Unlock()
	s.notifyState(StateStopping)

	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.cancel != nil {
			s.cancel()
		}
	})

	if err := s.ipcSrv.Stop(); err != nil {
		s.log.Warnf("supervisor: stop ipc server: %v", err)
	}
	if err := s.link.Disconnect(); err != nil {
		s.log.Warnf("supervisor: disconnect signaling link: %v", err)
	}

	s.setState(StateStopped)
	return nil
}

// State reports the Supervisor's current lifecycle position.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MyPeerID returns this daemon's own peer id (its X25519 public key,
// base64-encoded).
func (s *Supervisor) MyPeerID() string { return s.myPeerID }

// PairingCode returns the code this daemon currently registers with
// the coordinator under.
func (s *Supervisor) PairingCode() string { return s.pairingCode }

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.notifyState(next)
}

func (s *Supervisor) notifyState(next State) {
	if s.cfg.OnStateChanged != nil {
		s.cfg.OnStateChanged(next)
	}
}

// peersSendRaw adapts peer.Manager.SendRaw to the
// func(peerID string, frame []byte) error hook shape shared by
// FileTransfer's control frames and GroupEngine's encrypted frames.
func (s *Supervisor) peersSendRaw(peerID string, frame []byte) error {
	return s.peers.SendRaw(peerID, frame)
}

// peersSendRawBulk adapts peer.Manager.SendRawBulk for FileTransfer's
// bulk (file_chunk) frames, keeping them off the message channel.
func (s *Supervisor) peersSendRawBulk(peerID string, frame []byte) error {
	return s.peers.SendRawBulk(peerID, frame)
}

func (s *Supervisor) newTransportChannel(cfg transport.Config) (*transport.Channel, error) {
	cfg.ICEServers = s.iceServers()
	cfg.LoggerFactory = s.loggerFactoryOrDefault()
	return transport.New(cfg)
}

func (s *Supervisor) loggerFactoryOrDefault() logging.LoggerFactory {
	if s.cfg.LoggerFactory != nil {
		return s.cfg.LoggerFactory
	}
	return logging.NewDefaultLoggerFactory()
}

func (s *Supervisor) iceServers() []webrtc.ICEServer {
	urls := s.cfg.Core.ICEServers
	if len(urls) == 0 {
		return nil
	}
	out := make([]webrtc.ICEServer, len(urls))
	for i, u := range urls {
		out[i] = webrtc.ICEServer{URLs: []string{u}}
	}
	return out
}

func (s *Supervisor) sendWebRTCSignal(peerID string, payload map[string]interface{}) error {
	return s.link.Send(signaling.FrameTypeWebRTCSignal, map[string]interface{}{
		"to":      peerID,
		"payload": payload,
	})
}

func (s *Supervisor) onPeerConnected(p peer.ConnectedPeer) {
	s.events.Emit("peer_connected", p.PeerID, p.DisplayName)
}

func (s *Supervisor) onPeerDisconnected(peerID string) {
	s.events.Emit("peer_disconnected", peerID)
}

func (s *Supervisor) onInitFileTransfer(peerID string) {
	// FileTransfer keeps no per-peer state until a transfer actually
	// starts; nothing to initialize here beyond the log line.
	s.log.Debugf("supervisor: file transfer ready for peer %s", peerID)
}

func (s *Supervisor) onEncryptedFrame(peerID string, wireCiphertext string) {
	plaintext, err := s.crypto.Decrypt(peerID, wireCiphertext)
	if err != nil {
		s.log.Warnf("supervisor: decrypt message from %s: %v", peerID, err)
		return
	}
	s.events.Emit("message", peerID, string(plaintext))
}

func (s *Supervisor) onFileFrame(peerID string, frameType string, fields map[string]interface{}) {
	raw, err := json.Marshal(fields)
	if err != nil {
		s.log.Warnf("supervisor: re-encode file frame from %s: %v", peerID, err)
		return
	}
	switch frameType {
	case "file_start", "file_complete":
		if err := s.files.HandleControlFrame(peerID, raw); err != nil {
			s.log.Warnf("supervisor: handle %s from %s: %v", frameType, peerID, err)
		}
	case "file_chunk":
		if err := s.files.HandleBulkFrame(peerID, raw); err != nil {
			s.log.Warnf("supervisor: handle file_chunk from %s: %v", peerID, err)
		}
	default:
		s.log.Warnf("supervisor: unknown file frame type %q from %s", frameType, peerID)
	}
}

func (s *Supervisor) onFileReceived(peerID, fileName, savedPath string) {
	s.events.Emit("file_received", peerID, fileName, savedPath)
}

func (s *Supervisor) onGroupFrame(peerID string, fields map[string]interface{}) {
	if err := s.groups.HandleFrame(fields); err != nil {
		s.log.Warnf("supervisor: handle group frame from %s: %v", peerID, err)
	}
}

func (s *Supervisor) sendGroupInvitation(peerID string, fields map[string]interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return s.peers.SendRaw(peerID, raw)
}

func (s *Supervisor) onGroupMessage(msg group.GroupMessage) {
	s.events.Emit("group_message", msg.GroupID, msg.AuthorDeviceID, string(msg.Content))
}

func (s *Supervisor) onGroupInvitationAccepted(inv peer.GroupInvitation) {
	if _, err := s.groups.AcceptInvitation(inv.GroupID, inv.Name, inv.Members, inv.SenderKeys); err != nil {
		s.log.Warnf("supervisor: accept group invitation %s: %v", inv.GroupID, err)
	}
}

func (s *Supervisor) onGroupInvitationPendingApproval(inv peer.GroupInvitation) {
	// No IPC command exposes manual invitation approval; without
	// auto-accept configured, the invitation is logged here and is
	// neither applied nor kept.
	s.log.Infof("supervisor: group invitation %s from %s awaiting manual approval", inv.GroupID, inv.InviterDeviceID)
}

func (s *Supervisor) broadcastChunk(channelID string, chunk channel.Chunk) error {
	return s.link.Send(signaling.FrameTypeChunkData, map[string]interface{}{
		"channel_id": channelID,
		"chunk":      chunk,
	})
}

func (s *Supervisor) onChunkStored(channelID string, chunk channel.Chunk) {
	s.log.Debugf("supervisor: stored chunk %s for channel %s", chunk.ChunkID, channelID)
}

func (s *Supervisor) onChannelContent(channelID string, sequence uint64, content []byte) {
	s.events.Emit("channel_content", channelID, sequence, string(content))
}

func (s *Supervisor) onChunkDataEnvelope(env signaling.SignalEnvelope) {
	payload, ok := env.Payload.(map[string]interface{})
	if !ok {
		s.log.Warnf("supervisor: malformed chunk_data envelope from %s", env.From)
		return
	}
	channelID, _ := payload["channel_id"].(string)
	rawChunk, ok := payload["chunk"]
	if channelID == "" || !ok {
		s.log.Warnf("supervisor: malformed chunk_data envelope from %s", env.From)
		return
	}
	encoded, err := json.Marshal(rawChunk)
	if err != nil {
		s.log.Warnf("supervisor: re-encode chunk from %s: %v", env.From, err)
		return
	}
	var chunk channel.Chunk
	if err := json.Unmarshal(encoded, &chunk); err != nil {
		s.log.Warnf("supervisor: decode chunk from %s: %v", env.From, err)
		return
	}
	if err := s.channels.HandleChunk(channelID, chunk); err != nil {
		s.log.Warnf("supervisor: handle chunk for channel %s: %v", channelID, err)
	}
}

func (s *Supervisor) onWebRTCSignalEnvelope(env signaling.SignalEnvelope) {
	payload, ok := env.Payload.(map[string]interface{})
	if !ok {
		s.log.Warnf("supervisor: malformed webrtc signal envelope from %s", env.From)
		return
	}
	if err := s.peers.HandleSignal(context.Background(), env.From, payload); err != nil {
		s.log.Warnf("supervisor: handle webrtc signal from %s: %v", env.From, err)
	}
}

func (s *Supervisor) onCallSignal(env signaling.SignalEnvelope) {
	s.events.Emit("call_incoming", env.From, env.Payload)
}

func (s *Supervisor) onPairIncoming(inc signaling.PairIncoming) {
	s.pairing.recordIncoming(inc.FromCode, inc.FromPublicKey)
}

func (s *Supervisor) onPairMatched(m signaling.PairMatched) {
	if !m.IsInitiator && !s.pairing.isAccepted(m.PeerPublicKey) {
		s.log.Debugf("supervisor: ignoring unapproved pair match for code %s", m.PeerCode)
		return
	}
	pub, err := cryptocore.DecodePublicKey(m.PeerPublicKey)
	if err != nil {
		s.log.Warnf("supervisor: decode matched peer public key: %v", err)
		return
	}
	if err := s.peers.BeginEstablish(context.Background(), m.PeerPublicKey, pub, m.IsInitiator); err != nil {
		s.log.Warnf("supervisor: begin establish with %s: %v", m.PeerPublicKey, err)
	}
}

func (s *Supervisor) onSignalingStateChange(state signaling.State) {
	s.log.Infof("supervisor: signaling link state -> %s", state)
	if state != signaling.StateRegistered {
		return
	}
	if peerKey, err := s.pairingCache.Lookup(s.pairingCode); err != nil {
		s.log.Warnf("supervisor: pairing code cache miss on reconnect: %v", err)
	} else if peerKey != s.myPeerID {
		s.log.Warnf("supervisor: pairing code %s cached against a different identity", s.pairingCode)
	}
}
