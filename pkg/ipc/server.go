// Package ipc implements IpcDaemon: a local Unix domain socket control
// surface for the headless peer, authenticated by SO_PEERCRED and
// speaking newline-delimited JSON requests and responses.
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultMaxMessageSize is the upper bound on one request line.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

const scannerInitialBuf = 4096

// CommandHandler serves one command. Handlers return either a JSON-able
// result or a *ClientError; any other error is treated as an internal
// error and never echoed raw to the client.
type CommandHandler func(ctx context.Context, req Request) (interface{}, error)

// Config configures a Server.
type Config struct {
	// Name identifies this daemon instance; it must match
	// ^[A-Za-z0-9_-]+$ and is used to derive the socket path
	// ${RuntimeDir}/zajel-headless-${Name}.sock.
	Name string

	// RuntimeDir is the directory the socket is created under.
	RuntimeDir string

	// MaxMessageSize bounds one request line. Zero means
	// DefaultMaxMessageSize.
	MaxMessageSize int

	// LoggerFactory builds the server's logger. Nil means pion's default
	// logger factory.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
}

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return ErrInvalidName
		}
	}
	return nil
}

// socketPath derives the Unix socket path for cfg.
func socketPath(cfg Config) string {
	return filepath.Join(cfg.RuntimeDir, fmt.Sprintf("zajel-headless-%s.sock", cfg.Name))
}

// Server is IpcDaemon's Unix domain socket listener.
type Server struct {
	cfg      Config
	log      logging.LeveledLogger
	handlers map[string]CommandHandler
	path     string

	listener *net.UnixListener
	closeCh  chan struct{}
	wg       sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// New constructs a Server. handlers maps a command name to the
// CommandHandler that serves it; commands absent from the table are
// rejected with bad_argument.
func New(cfg Config, handlers map[string]CommandHandler) (*Server, error) {
	if err := validateName(cfg.Name); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("ipc")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("ipc")
	}

	return &Server{
		cfg:      cfg,
		log:      log,
		handlers: handlers,
		path:     socketPath(cfg),
		closeCh:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// SocketPath returns the Unix socket path this Server binds to.
func (s *Server) SocketPath() string { return s.path }

// Start binds the socket and begins accepting connections. A
// pre-existing path is removed first, but only if it is itself a
// socket (checked without following symlinks), so Start never clobbers
// an unrelated file left behind by something else.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if fi, err := os.Lstat(s.path); err == nil {
		if fi.Mode()&os.ModeSocket != 0 {
			if err := os.Remove(s.path); err != nil {
				return err
			}
		}
	}

	addr, err := net.ResolveUnixAddr("unix", s.path)
	if err != nil {
		return err
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o700); err != nil {
		listener.Close()
		return err
	}
	s.listener = listener

	s.log.Infof("ipc: listening on %s", s.path)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes all connections and the listener, then unlinks the
// socket file if it is still present as a socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.log.Info("ipc: stopping")

	close(s.closeCh)
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.connsMu.Unlock()

	s.wg.Wait()

	if fi, err := os.Lstat(s.path); err == nil {
		if fi.Mode()&os.ModeSocket != 0 {
			os.Remove(s.path)
		}
	}

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				continue
			}
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	unixConn, ok := conn.(*net.UnixConn)
	if ok {
		allowed, supported, err := authenticatePeer(unixConn)
		if err != nil {
			s.log.Warnf("ipc: peer credential check failed: %v", err)
		} else if !supported {
			s.log.Warn("ipc: SO_PEERCRED unsupported, relying on filesystem permissions")
		} else if !allowed {
			s.log.Warn("ipc: rejecting connection from unauthorized uid")
			return
		}
	}

	initial := scannerInitialBuf
	if s.cfg.MaxMessageSize < initial {
		initial = s.cfg.MaxMessageSize
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, initial), s.cfg.MaxMessageSize)

	ctx := context.Background()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.handleLine(ctx, conn, line)
	}

	if err := scanner.Err(); err != nil {
		s.log.Debugf("ipc: connection read loop ended: %v", err)
	}
}

func (s *Server) handleLine(ctx context.Context, conn net.Conn, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		body, encErr := errorLine("", &wireError{
			Kind:    KindBadArgument,
			Message: "malformed request: not valid JSON",
		})
		s.writeLine(conn, body, encErr)
		return
	}

	handler, ok := s.handlers[req.Cmd]
	if !ok {
		body, encErr := errorLine(req.ID, &wireError{
			Kind:    KindBadArgument,
			Message: "unknown command: " + req.Cmd,
		})
		s.writeLine(conn, body, encErr)
		return
	}

	result, err := handler(ctx, req)
	if err == nil {
		body, encErr := successLine(req.ID, result)
		s.writeLine(conn, body, encErr)
		return
	}

	var cerr *ClientError
	if asClientError(err, &cerr) {
		body, encErr := errorLine(req.ID, &wireError{Kind: cerr.Kind, Message: cerr.Message})
		s.writeLine(conn, body, encErr)
		return
	}

	refID := newRefID()
	s.log.Errorf("ipc: internal error [%s] serving %q: %v", refID, req.Cmd, err)
	body, encErr := errorLine(req.ID, &wireError{
		Kind:    KindInternalError,
		Message: "internal error",
		RefID:   refID,
	})
	s.writeLine(conn, body, encErr)
}

func (s *Server) writeLine(conn net.Conn, body []byte, err error) {
	if err != nil {
		s.log.Errorf("ipc: failed to encode response: %v", err)
		return
	}
	body = append(body, '\n')
	if _, err := conn.Write(body); err != nil {
		s.log.Debugf("ipc: failed to write response: %v", err)
	}
}

func asClientError(err error, out **ClientError) bool {
	return errors.As(err, out)
}

func newRefID() string {
	return uuid.NewString()
}
