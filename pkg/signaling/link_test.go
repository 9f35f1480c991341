package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeCoordinator is a minimal in-process stand-in for the coordinator:
// it upgrades one connection, records the register frame, and lets the
// test script further frames onto it.
type fakeCoordinator struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newFakeCoordinator() *fakeCoordinator {
	fc := &fakeCoordinator{connCh: make(chan *websocket.Conn, 1)}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fc.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc.connCh <- conn
	}))
	return fc
}

func (fc *fakeCoordinator) wsURL() string {
	return "ws" + fc.server.URL[len("http"):]
}

func (fc *fakeCoordinator) close() { fc.server.Close() }

func TestLink_ConnectRegisters(t *testing.T) {
	fc := newFakeCoordinator()
	defer fc.close()

	link := New(Config{URL: fc.wsURL(), HeartbeatInterval: time.Hour})
	if err := link.Connect(newTestCtx(t), "pub-a", ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer link.Disconnect()

	conn := <-fc.connCh
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	frame, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if frame.Type != FrameTypeRegister {
		t.Errorf("frame.Type = %q, want %q", frame.Type, FrameTypeRegister)
	}
	if pub, _ := frame.requireString("publicKey"); pub != "pub-a" {
		t.Errorf("publicKey = %q, want %q", pub, "pub-a")
	}

	if got := link.State(); got != StateRegistered {
		t.Errorf("State() = %v, want %v", got, StateRegistered)
	}
}

func TestLink_DispatchesPairIncoming(t *testing.T) {
	fc := newFakeCoordinator()
	defer fc.close()

	received := make(chan PairIncoming, 1)
	link := New(Config{
		URL:               fc.wsURL(),
		HeartbeatInterval: time.Hour,
		Callbacks: Callbacks{
			OnPairIncoming: func(p PairIncoming) { received <- p },
		},
	})
	if err := link.Connect(newTestCtx(t), "pub-a", ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer link.Disconnect()

	conn := <-fc.connCh
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	if err := conn.WriteJSON(map[string]interface{}{
		"type":          "pair_incoming",
		"fromCode":      "ABC123",
		"fromPublicKey": "remote-pub",
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	select {
	case p := <-received:
		if p.FromCode != "ABC123" || p.FromPublicKey != "remote-pub" {
			t.Errorf("PairIncoming = %+v, want FromCode=ABC123 FromPublicKey=remote-pub", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnPairIncoming")
	}
}

func TestLink_DropsMalformedFrame(t *testing.T) {
	fc := newFakeCoordinator()
	defer fc.close()

	received := make(chan PairMatched, 1)
	link := New(Config{
		URL:               fc.wsURL(),
		HeartbeatInterval: time.Hour,
		Callbacks: Callbacks{
			OnPairMatched: func(p PairMatched) { received <- p },
		},
	})
	if err := link.Connect(newTestCtx(t), "pub-a", ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer link.Disconnect()

	conn := <-fc.connCh
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	// pair_matched missing isInitiator: must be dropped, not dispatched.
	if err := conn.WriteJSON(map[string]interface{}{
		"type":          "pair_matched",
		"peerCode":      "XYZ",
		"peerPublicKey": "remote-pub",
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	// Followed by a valid frame so we can positively confirm the link is
	// still alive and dispatching.
	if err := conn.WriteJSON(map[string]interface{}{
		"type":          "pair_matched",
		"peerCode":      "XYZ",
		"peerPublicKey": "remote-pub",
		"isInitiator":   true,
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	select {
	case p := <-received:
		if p.PeerCode != "XYZ" || !p.IsInitiator {
			t.Errorf("PairMatched = %+v, want PeerCode=XYZ IsInitiator=true", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnPairMatched")
	}
}

func TestLink_Disconnect_NoReconnect(t *testing.T) {
	fc := newFakeCoordinator()
	defer fc.close()

	link := New(Config{URL: fc.wsURL(), HeartbeatInterval: time.Hour})
	if err := link.Connect(newTestCtx(t), "pub-a", ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	conn := <-fc.connCh
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	if err := link.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := link.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestBackoffCalculator_Delay(t *testing.T) {
	b := newBackoffCalculator(zeroJitter{})
	if got := b.delay(0); got != backoffBase {
		t.Errorf("delay(0) = %v, want %v", got, backoffBase)
	}
	if got := b.delay(3); got != backoffBase*8 {
		t.Errorf("delay(3) = %v, want %v", got, backoffBase*8)
	}
	if got := b.delay(10); got != backoffCap {
		t.Errorf("delay(10) = %v, want capped at %v", got, backoffCap)
	}
}

type zeroJitter struct{}

func (zeroJitter) Float64() float64 { return 0 }
