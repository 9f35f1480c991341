// Package transport implements TransportChannel: a pair of reliable,
// ordered, message-oriented logical channels ("message" and "file")
// between two peers over a WebRTC PeerConnection.
//
// Delivery is always fully reliable and in order — data channels are
// created without MaxRetransmits or MaxPacketLifeTime, which rules out
// partial reliability at the protocol level. Any connection failure
// surfaces as an error to the caller; this layer never retries and
// never silently drops.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

const (
	messageChannelLabel = "message"
	fileChannelLabel    = "file"
)

// MessageHandler is invoked for each inbound frame on a data channel.
type MessageHandler func(data []byte)

// ICECandidateHandler is invoked with each locally gathered ICE
// candidate, as its SDP candidate string, for relay via SignalingLink.
type ICECandidateHandler func(candidate string)

// CloseHandler is invoked once, when the underlying connection reaches
// the failed or closed state or Close is called. The disconnected state
// is only logged.
type CloseHandler func(reason error)

// Config configures a Channel.
type Config struct {
	// ICEServers lists STUN/TURN servers for ICE gathering.
	ICEServers []webrtc.ICEServer

	// OnMessage handles inbound frames on the "message" data channel.
	// Required.
	OnMessage MessageHandler

	// OnFileChunk handles inbound frames on the "file" data channel.
	// Required.
	OnFileChunk MessageHandler

	// OnICECandidate is called for each locally gathered candidate.
	OnICECandidate ICECandidateHandler

	// OnClose is called when the connection closes for any reason.
	OnClose CloseHandler

	// LoggerFactory builds the channel's scoped logger. If nil, pion's
	// default logger factory is used.
	LoggerFactory logging.LoggerFactory
}

// Channel wraps one WebRTC PeerConnection carrying exactly the two data
// channels this protocol needs.
type Channel struct {
	cfg Config
	log logging.LeveledLogger

	pc *webrtc.PeerConnection

	mu          sync.RWMutex
	started     bool
	closed      bool
	messageDC   *webrtc.DataChannel
	fileDC      *webrtc.DataChannel
	messageOpen chan struct{}
	openOnce    sync.Once
}

// New constructs a Channel that has not yet opened a PeerConnection.
func New(cfg Config) (*Channel, error) {
	if cfg.OnMessage == nil || cfg.OnFileChunk == nil {
		return nil, ErrNoHandler
	}

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("transport")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("transport")
	}

	return &Channel{
		cfg:         cfg,
		log:         log,
		messageOpen: make(chan struct{}),
	}, nil
}

// Create opens the underlying PeerConnection. When isInitiator is true,
// both data channels are created locally and an SDP offer is produced by
// CreateOffer; otherwise the channel waits for the remote to create them
// via OnDataChannel and an SDP answer is produced by CreateAnswer.
func (c *Channel) Create(isInitiator bool) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: c.cfg.ICEServers})
	if err != nil {
		return err
	}
	c.pc = pc

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || c.cfg.OnICECandidate == nil {
			return
		}
		init := candidate.ToJSON()
		if init.Candidate == "" {
			return
		}
		c.cfg.OnICECandidate(init.Candidate)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.handleClose(ErrUnavailable)
		case webrtc.PeerConnectionStateDisconnected:
			c.log.Warn("transport: connection disconnected")
		}
	})

	if isInitiator {
		messageDC, err := pc.CreateDataChannel(messageChannelLabel, reliableOrderedInit())
		if err != nil {
			return err
		}
		fileDC, err := pc.CreateDataChannel(fileChannelLabel, reliableOrderedInit())
		if err != nil {
			return err
		}
		c.bindDataChannel(messageDC)
		c.bindDataChannel(fileDC)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			c.bindDataChannel(dc)
		})
	}

	return nil
}

// reliableOrderedInit returns DataChannelInit options that guarantee full
// reliability and ordering — no MaxRetransmits, no MaxPacketLifeTime.
func reliableOrderedInit() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

func (c *Channel) bindDataChannel(dc *webrtc.DataChannel) {
	switch dc.Label() {
	case messageChannelLabel:
		c.mu.Lock()
		c.messageDC = dc
		c.mu.Unlock()
		dc.OnOpen(func() {
			c.openOnce.Do(func() { close(c.messageOpen) })
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			c.cfg.OnMessage(msg.Data)
		})
	case fileChannelLabel:
		c.mu.Lock()
		c.fileDC = dc
		c.mu.Unlock()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			c.cfg.OnFileChunk(msg.Data)
		})
	default:
		c.log.Warnf("transport: ignoring unexpected data channel %q", dc.Label())
	}
}

// PeerConnection exposes the underlying connection so the caller (the
// PeerManager) can drive SDP offer/answer exchange and add remote ICE
// candidates. Kept as a thin accessor rather than re-wrapping the whole
// pion API surface.
func (c *Channel) PeerConnection() *webrtc.PeerConnection {
	return c.pc
}

// AddICECandidate relays a remote ICE candidate received via
// SignalingLink into the PeerConnection.
func (c *Channel) AddICECandidate(candidate string) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// AwaitMessageChannel blocks until the "message" data channel opens or
// the deadline elapses (default 30s).
func (c *Channel) AwaitMessageChannel(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-c.messageOpen:
		return nil
	case <-ctx.Done():
		return ErrMessageChannelTimeout
	}
}

// SendMessage sends data on the "message" data channel.
func (c *Channel) SendMessage(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if c.messageDC == nil {
		return ErrUnavailable
	}
	return c.messageDC.Send(data)
}

// SendFileChunk sends data on the "file" data channel.
func (c *Channel) SendFileChunk(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if c.fileDC == nil {
		return ErrUnavailable
	}
	return c.fileDC.Send(data)
}

// Close tears down the PeerConnection. Safe to call more than once.
func (c *Channel) Close() error {
	c.handleClose(nil)
	c.mu.RLock()
	pc := c.pc
	c.mu.RUnlock()
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func (c *Channel) handleClose(reason error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cfg.OnClose != nil {
		c.cfg.OnClose(reason)
	}
}
