// Package config holds the daemon's single Config struct: every
// bounded-store limit, path, and cadence named across the component
// configs, parsed from standard library flags into one struct threaded
// down through the daemon at construction time.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config is the daemon's top-level configuration, threaded down into
// each subsystem's own Config/Hooks at construction time.
type Config struct {
	// DaemonName identifies this instance's IPC socket:
	// ${RuntimeDir}/zajel-headless-${DaemonName}.sock.
	DaemonName string

	// RuntimeDir is the directory the IPC socket is created under.
	RuntimeDir string

	// PeerStorePath is the on-disk path of the trusted-peer table.
	PeerStorePath string

	// MediaDir confines outbound send_file source paths.
	MediaDir string

	// ReceiveDir confines inbound file_complete save paths.
	ReceiveDir string

	// CoordinatorURL is SignalingLink's WebSocket endpoint.
	CoordinatorURL string

	// HeartbeatInterval is SignalingLink's outbound heartbeat cadence.
	HeartbeatInterval time.Duration

	// MaxMissedHeartbeats bounds consecutive missed acks before
	// SignalingLink degrades and reconnects.
	MaxMissedHeartbeats int

	// HandshakeTimeout bounds PeerManager's establishment round trip.
	HandshakeTimeout time.Duration

	// MaxMessageSize bounds one IPC request line.
	MaxMessageSize int

	// FileTransfer tunables.
	ChunkSize              int
	MaxFileSize            int64
	MaxChunks              int
	MaxConcurrentTransfers int
	TransferTimeout        time.Duration

	// GroupEngine tunables.
	MaxSeqGap           uint64
	MaxMessagesPerGroup int

	// ChannelEngine tunables.
	ChannelChunkSize    int
	MaxChunksPerChannel int

	// PairingCodeTTL bounds the discovery package's pairing-code cache.
	PairingCodeTTL time.Duration

	// AutoAcceptGroupInvitations mirrors peer.Config of the same name.
	AutoAcceptGroupInvitations bool

	// ICEServers lists STUN/TURN server URLs for WebRTC ICE gathering.
	ICEServers []string
}

// ApplyDefaults fills zero-valued fields with the same defaults
// ParseFlags would choose, for callers (tests, library embedders) that
// build a Config directly instead of parsing flags.
func (c *Config) ApplyDefaults() {
	c.applyDefaults()
}

// applyDefaults fills zero-valued fields with the same defaults each
// subsystem's own Config.applyDefaults would choose, so a Config built
// outside of ParseFlags (e.g. in tests) behaves identically to one
// built from bare flags.
func (c *Config) applyDefaults() {
	if c.DaemonName == "" {
		c.DaemonName = "default"
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = "/run/user/zajel"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.MaxMissedHeartbeats <= 0 {
		c.MaxMissedHeartbeats = 3
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 16 * 1024
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 200 * 1024 * 1024
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 200*1024*1024/(16*1024) + 1
	}
	if c.MaxConcurrentTransfers <= 0 {
		c.MaxConcurrentTransfers = 10
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = 5 * time.Minute
	}
	if c.MaxSeqGap <= 0 {
		c.MaxSeqGap = 1000
	}
	if c.MaxMessagesPerGroup <= 0 {
		c.MaxMessagesPerGroup = 5000
	}
	if c.ChannelChunkSize <= 0 {
		c.ChannelChunkSize = 16 * 1024
	}
	if c.MaxChunksPerChannel <= 0 {
		c.MaxChunksPerChannel = 1000
	}
	if c.PairingCodeTTL <= 0 {
		c.PairingCodeTTL = 24 * time.Hour
	}
	if len(c.ICEServers) == 0 {
		c.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
}

// ParseFlags parses the daemon's standard CLI flags into a Config.
// Flags:
//
//	-name           IPC socket name (default: "default")
//	-runtime-dir    Directory the IPC socket is created under
//	-peer-store     Path to the trusted-peer table file
//	-media-dir      Directory outbound send_file paths are confined to
//	-receive-dir    Directory inbound files are saved under
//	-coordinator    Coordinator WebSocket URL (required)
//	-auto-accept-groups  Auto-accept group invitations without approval
//	-ice-servers    Comma-separated STUN/TURN server URLs
func ParseFlags() (Config, error) {
	c := Config{}
	var iceServers string

	flag.StringVar(&c.DaemonName, "name", "default", "IPC socket name")
	flag.StringVar(&c.RuntimeDir, "runtime-dir", "/run/user/zajel", "directory the IPC socket is created under")
	flag.StringVar(&c.PeerStorePath, "peer-store", "", "path to the trusted-peer table file")
	flag.StringVar(&c.MediaDir, "media-dir", "", "directory outbound send_file paths are confined to")
	flag.StringVar(&c.ReceiveDir, "receive-dir", "", "directory inbound files are saved under")
	flag.StringVar(&c.CoordinatorURL, "coordinator", "", "coordinator WebSocket URL")
	flag.BoolVar(&c.AutoAcceptGroupInvitations, "auto-accept-groups", true, "auto-accept group invitations without approval")
	flag.StringVar(&iceServers, "ice-servers", "", "comma-separated STUN/TURN server URLs")

	flag.Parse()

	if iceServers != "" {
		c.ICEServers = strings.Split(iceServers, ",")
	}
	c.applyDefaults()

	if c.CoordinatorURL == "" {
		return Config{}, fmt.Errorf("config: -coordinator is required")
	}
	if c.PeerStorePath == "" {
		return Config{}, fmt.Errorf("config: -peer-store is required")
	}
	if c.MediaDir == "" {
		return Config{}, fmt.Errorf("config: -media-dir is required")
	}
	if c.ReceiveDir == "" {
		return Config{}, fmt.Errorf("config: -receive-dir is required")
	}

	return c, nil
}
