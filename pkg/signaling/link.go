// Package signaling implements SignalingLink: the daemon's single
// outbound WebSocket connection to the coordinator, covering
// registration, heartbeat, schema-validated frame dispatch, and
// exponential-backoff reconnection.
package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// State is a position in the Disconnected -> Connecting -> Registered
// <-> Degraded -> Connecting state machine; Disconnect returns the link
// to Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateDegraded
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Callbacks receives validated inbound frames. Unset callbacks are
// no-ops.
type Callbacks struct {
	OnPairIncoming func(PairIncoming)
	OnPairMatched  func(PairMatched)
	OnWebRTCSignal func(SignalEnvelope)
	OnCallSignal   func(SignalEnvelope)
	OnChunkData    func(SignalEnvelope)
	OnStateChange  func(State)
}

// Config configures a Link.
type Config struct {
	// URL is the coordinator WebSocket endpoint, e.g. "wss://coordinator.example/ws".
	URL string

	// HeartbeatInterval is the cadence of outbound heartbeat frames.
	HeartbeatInterval time.Duration

	// MaxMissedHeartbeats is the number of consecutive missed heartbeat
	// acks before the link transitions Registered -> Degraded ->
	// Connecting (reconnect).
	MaxMissedHeartbeats int

	Callbacks Callbacks

	// LoggerFactory builds the link's scoped logger. If nil, pion's
	// default logger factory is used.
	LoggerFactory logging.LoggerFactory

	// random overrides the backoff jitter source; used by tests.
	random randomSource
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.MaxMissedHeartbeats <= 0 {
		c.MaxMissedHeartbeats = 3
	}
}

// Link is SignalingLink: one control connection to the coordinator,
// reconnected with backoff on any non-intentional close.
type Link struct {
	cfg     Config
	log     logging.LeveledLogger
	backoff *backoffCalculator

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	publicKey   string
	pairingCode string
	intentional bool
	attempt     int
	misses      int

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// New constructs a Link. Call Connect to open the first connection.
func New(cfg Config) *Link {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("signaling")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("signaling")
	}

	return &Link{
		cfg:     cfg,
		log:     log,
		backoff: newBackoffCalculator(cfg.random),
		state:   StateDisconnected,
	}
}

// State returns the link's current state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect performs the first registration with the coordinator and then
// starts the background reconnect-and-heartbeat loop. publicKey is
// registered with pairingCode (empty to request a fresh one from the
// coordinator, non-empty to ask the coordinator to re-assign the same
// code across a daemon restart).
func (l *Link) Connect(ctx context.Context, publicKey, pairingCode string) error {
	l.mu.Lock()
	if l.runCancel != nil {
		l.mu.Unlock()
		return ErrAlreadyConnected
	}
	l.publicKey = publicKey
	l.pairingCode = pairingCode
	l.intentional = false
	runCtx, cancel := context.WithCancel(context.Background())
	l.runCancel = cancel
	l.runDone = make(chan struct{})
	l.mu.Unlock()

	if err := l.dialAndRegister(ctx); err != nil {
		l.mu.Lock()
		l.runCancel = nil
		l.mu.Unlock()
		return err
	}

	go l.run(runCtx)
	return nil
}

// Disconnect closes the connection intentionally: the reconnect loop is
// not entered and Connect may be called again afterward.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	l.intentional = true
	cancel := l.runCancel
	conn := l.conn
	done := l.runDone
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}

	l.mu.Lock()
	l.runCancel = nil
	l.conn = nil
	l.setStateLocked(StateDisconnected)
	l.mu.Unlock()
	return nil
}

// Send transmits an already-typed outbound frame.
func (l *Link) Send(typ FrameType, fields map[string]interface{}) error {
	payload, err := encodeFrame(typ, fields)
	if err != nil {
		return err
	}
	return l.writeRaw(payload)
}

func (l *Link) writeRaw(payload []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (l *Link) setStateLocked(s State) {
	if l.state == s {
		return
	}
	l.state = s
	if l.cfg.Callbacks.OnStateChange != nil {
		cb := l.cfg.Callbacks.OnStateChange
		go cb(s)
	}
}

// dialAndRegister opens the WebSocket connection and sends the initial
// register frame.
func (l *Link) dialAndRegister(ctx context.Context) error {
	l.mu.Lock()
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	fields := map[string]interface{}{"publicKey": l.publicKey}
	if l.pairingCode != "" {
		fields["pairingCode"] = l.pairingCode
	}
	if err := l.Send(FrameTypeRegister, fields); err != nil {
		return fmt.Errorf("signaling: register: %w", err)
	}

	l.mu.Lock()
	l.setStateLocked(StateRegistered)
	l.attempt = 0
	l.misses = 0
	l.mu.Unlock()
	return nil
}

// run drives the heartbeat ticker, the read loop, and reconnection until
// ctx is cancelled by Disconnect.
func (l *Link) run(ctx context.Context) {
	defer close(l.runDone)

	for {
		readErr := l.readLoopWithHeartbeat(ctx)

		l.mu.Lock()
		intentional := l.intentional
		l.mu.Unlock()
		if intentional {
			return
		}
		if ctx.Err() != nil {
			return
		}

		l.log.Warnf("signaling: connection lost: %v", readErr)
		if !l.reconnectLoop(ctx) {
			return
		}
	}
}

// readLoopWithHeartbeat reads frames until the connection breaks, while a
// sibling goroutine sends periodic heartbeats and tracks missed acks.
func (l *Link) readLoopWithHeartbeat(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.heartbeatLoop(hbCtx)
	}()

	err := l.readLoop(conn)
	hbCancel()
	wg.Wait()
	return err
}

func (l *Link) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.misses++
			tooManyMisses := l.misses > l.cfg.MaxMissedHeartbeats
			if tooManyMisses {
				l.setStateLocked(StateDegraded)
			}
			conn := l.conn
			l.mu.Unlock()

			if tooManyMisses {
				l.log.Warn("signaling: too many missed heartbeats, forcing reconnect")
				if conn != nil {
					_ = conn.Close()
				}
				return
			}
			if err := l.Send(FrameTypeHeartbeat, nil); err != nil {
				l.log.Warnf("signaling: heartbeat send failed: %v", err)
			}
		}
	}
}

func (l *Link) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.handleInbound(data)
	}
}

// handleInbound validates and dispatches one inbound frame. A
// successfully validated frame resets the heartbeat miss counter and
// reconnect backoff.
func (l *Link) handleInbound(data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		l.log.Warnf("signaling: dropping malformed frame: %v", err)
		return
	}
	if err := frame.validate(); err != nil {
		l.log.Warnf("signaling: dropping frame type %q: %v", frame.Type, err)
		return
	}

	l.mu.Lock()
	l.misses = 0
	l.attempt = 0
	if l.state == StateDegraded {
		l.setStateLocked(StateRegistered)
	}
	l.mu.Unlock()

	l.dispatch(frame)
}

func (l *Link) dispatch(frame rawFrame) {
	cb := l.cfg.Callbacks
	switch frame.Type {
	case FrameTypePairIncoming:
		if cb.OnPairIncoming != nil {
			cb.OnPairIncoming(frame.asPairIncoming())
		}
	case FrameTypePairMatched:
		if cb.OnPairMatched != nil {
			cb.OnPairMatched(frame.asPairMatched())
		}
	case FrameTypeWebRTCSignal:
		if cb.OnWebRTCSignal != nil {
			cb.OnWebRTCSignal(frame.asSignalEnvelope())
		}
	case FrameTypeCallSignal:
		if cb.OnCallSignal != nil {
			cb.OnCallSignal(frame.asSignalEnvelope())
		}
	case FrameTypeChunkData:
		if cb.OnChunkData != nil {
			cb.OnChunkData(frame.asSignalEnvelope())
		}
	case FrameTypeHeartbeatAck:
		// Already handled by resetting misses above.
	}
}

// reconnectLoop retries dialAndRegister with exponential backoff until it
// succeeds or ctx is cancelled. Returns false if the caller should stop
// (context cancelled or intentional disconnect raced in).
func (l *Link) reconnectLoop(ctx context.Context) bool {
	l.mu.Lock()
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()

	for {
		l.mu.Lock()
		attempt := l.attempt
		l.attempt++
		l.mu.Unlock()

		delay := l.backoff.delay(attempt)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := l.dialAndRegister(ctx); err != nil {
			l.log.Warnf("signaling: reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		return true
	}
}

