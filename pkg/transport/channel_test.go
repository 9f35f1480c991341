package transport

import (
	"context"
	"testing"
	"time"
)

// TestChannel_MessageRoundTrip establishes a local loopback WebRTC
// connection between two Channels (no ICE servers, non-trickled SDP
// exchanged after gathering completes) and exchanges a message.
func TestChannel_MessageRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aReceived := make(chan string, 1)
	bReceived := make(chan string, 1)

	a, err := New(Config{
		OnMessage:   func(data []byte) { aReceived <- string(data) },
		OnFileChunk: func(data []byte) {},
	})
	if err != nil {
		t.Fatalf("New(a) error = %v", err)
	}
	defer a.Close()

	b, err := New(Config{
		OnMessage:   func(data []byte) { bReceived <- string(data) },
		OnFileChunk: func(data []byte) {},
	})
	if err != nil {
		t.Fatalf("New(b) error = %v", err)
	}
	defer b.Close()

	if err := a.Create(true); err != nil {
		t.Fatalf("a.Create(initiator) error = %v", err)
	}
	if err := b.Create(false); err != nil {
		t.Fatalf("b.Create(responder) error = %v", err)
	}

	if _, err := a.CreateOffer(); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if err := a.WaitICEGatheringComplete(ctx); err != nil {
		t.Fatalf("a gathering error = %v", err)
	}

	if _, err := b.CreateAnswer(a.LocalDescriptionSDP()); err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	if err := b.WaitICEGatheringComplete(ctx); err != nil {
		t.Fatalf("b gathering error = %v", err)
	}

	if err := a.SetRemoteAnswer(b.LocalDescriptionSDP()); err != nil {
		t.Fatalf("SetRemoteAnswer() error = %v", err)
	}

	if err := a.AwaitMessageChannel(ctx, 5*time.Second); err != nil {
		t.Fatalf("a.AwaitMessageChannel() error = %v", err)
	}
	if err := b.AwaitMessageChannel(ctx, 5*time.Second); err != nil {
		t.Fatalf("b.AwaitMessageChannel() error = %v", err)
	}

	if err := a.SendMessage([]byte("hello from a")); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	select {
	case got := <-bReceived:
		if got != "hello from a" {
			t.Errorf("b received %q, want %q", got, "hello from a")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for b to receive message")
	}

	if err := b.SendMessage([]byte("hello from b")); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	select {
	case got := <-aReceived:
		if got != "hello from b" {
			t.Errorf("a received %q, want %q", got, "hello from b")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for a to receive message")
	}
}

func TestNew_RequiresHandlers(t *testing.T) {
	if _, err := New(Config{}); err != ErrNoHandler {
		t.Errorf("New() error = %v, want ErrNoHandler", err)
	}
}
