package peer

import (
	"context"
	"testing"
	"time"

	"github.com/zajel/headless/pkg/cryptocore"
	"github.com/zajel/headless/pkg/peerstore"
	"github.com/zajel/headless/pkg/transport"
)

func mustIdentity(t *testing.T) *cryptocore.Identity {
	t.Helper()
	id, err := cryptocore.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	return id
}

func mustStore(t *testing.T) *peerstore.Store {
	t.Helper()
	s, err := peerstore.Open(t.TempDir()+"/peers.json", nil)
	if err != nil {
		t.Fatalf("peerstore.Open() error = %v", err)
	}
	return s
}

// TestEstablish_FullHandshake wires two Managers together with their
// SendSignal hooks looped directly into each other's HandleSignal (no
// real coordinator involved) and checks both sides converge on
// Established and each holds a session for the other.
func TestEstablish_FullHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aID, bID := mustIdentity(t), mustIdentity(t)
	aCrypto, bCrypto := cryptocore.NewCore(aID), cryptocore.NewCore(bID)

	connectedA := make(chan ConnectedPeer, 1)
	connectedB := make(chan ConnectedPeer, 1)

	var mgrA, mgrB *Manager

	mgrA = NewManager(aCrypto, mustStore(t), Hooks{
		NewChannel: func(cfg transport.Config) (*transport.Channel, error) { return transport.New(cfg) },
		SendSignal: func(peerID string, payload map[string]interface{}) error {
			return mgrB.HandleSignal(ctx, "a", payload)
		},
		OnPeerConnected: func(p ConnectedPeer) { connectedA <- p },
	}, Config{})

	mgrB = NewManager(bCrypto, mustStore(t), Hooks{
		NewChannel: func(cfg transport.Config) (*transport.Channel, error) { return transport.New(cfg) },
		SendSignal: func(peerID string, payload map[string]interface{}) error {
			return mgrA.HandleSignal(ctx, "b", payload)
		},
		OnPeerConnected: func(p ConnectedPeer) { connectedB <- p },
	}, Config{})

	aPub, bPub := aID.PublicKey(), bID.PublicKey()
	if err := mgrB.BeginEstablish(ctx, "a", aPub[:], false); err != nil {
		t.Fatalf("mgrB.BeginEstablish() error = %v", err)
	}
	if err := mgrA.BeginEstablish(ctx, "b", bPub[:], true); err != nil {
		t.Fatalf("mgrA.BeginEstablish() error = %v", err)
	}

	select {
	case p := <-connectedA:
		if p.State != StateEstablished {
			t.Errorf("a's view of b: state = %v, want Established", p.State)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for a to establish")
	}

	select {
	case p := <-connectedB:
		if p.State != StateEstablished {
			t.Errorf("b's view of a: state = %v, want Established", p.State)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for b to establish")
	}

	if !aCrypto.HasSession("b") {
		t.Error("a has no session with b after handshake")
	}
	if !bCrypto.HasSession("a") {
		t.Error("b has no session with a after handshake")
	}
}

func TestBeginEstablish_RejectsDuplicatePending(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(cryptocore.NewCore(mustIdentity(t)), mustStore(t), Hooks{
		NewChannel: func(cfg transport.Config) (*transport.Channel, error) { return transport.New(cfg) },
	}, Config{})

	if err := mgr.BeginEstablish(ctx, "peer-1", nil, false); err != nil {
		t.Fatalf("first BeginEstablish() error = %v", err)
	}
	if err := mgr.BeginEstablish(ctx, "peer-1", nil, false); err != ErrAlreadyPending {
		t.Errorf("second BeginEstablish() error = %v, want ErrAlreadyPending", err)
	}
}

func TestBeginEstablish_RejectsInvalidPeerID(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(cryptocore.NewCore(mustIdentity(t)), mustStore(t), Hooks{}, Config{})
	if err := mgr.BeginEstablish(ctx, "bad id!", nil, false); err == nil {
		t.Error("BeginEstablish() with invalid peer id: want error, got nil")
	}
}
