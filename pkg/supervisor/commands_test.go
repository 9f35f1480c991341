package supervisor

import (
	"context"
	"testing"

	"github.com/zajel/headless/internal/config"
	"github.com/zajel/headless/pkg/ipc"
	"github.com/zajel/headless/pkg/signaling"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	cfg := Config{
		Core: config.Config{
			PeerStorePath:  t.TempDir() + "/peers.json",
			MediaDir:       t.TempDir(),
			ReceiveDir:     t.TempDir(),
			CoordinatorURL: "wss://coordinator.example/ws",
		},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStringArg_MissingReturnsClientError(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{}}
	if _, err := stringArg(req, "peer_id"); err == nil {
		t.Fatalf("stringArg() error = nil, want missing argument error")
	}
}

func TestStringArg_WrongTypeReturnsClientError(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{"peer_id": 42}}
	if _, err := stringArg(req, "peer_id"); err == nil {
		t.Fatalf("stringArg() error = nil, want bad argument error")
	}
}

func TestStringArg_Present(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{"peer_id": "abc123"}}
	got, err := stringArg(req, "peer_id")
	if err != nil {
		t.Fatalf("stringArg() error = %v", err)
	}
	if got != "abc123" {
		t.Errorf("stringArg() = %q, want abc123", got)
	}
}

func TestOptionalStringArg_AbsentReturnsEmpty(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{}}
	if got := optionalStringArg(req, "description"); got != "" {
		t.Errorf("optionalStringArg() = %q, want empty", got)
	}
}

func TestStringSliceArg_RejectsNonStringElement(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{"members": []interface{}{"a", 7}}}
	if _, err := stringSliceArg(req, "members"); err == nil {
		t.Fatalf("stringSliceArg() error = nil, want bad argument error")
	}
}

func TestStringSliceArg_Present(t *testing.T) {
	req := ipc.Request{Args: map[string]interface{}{"members": []interface{}{"alice", "bob"}}}
	got, err := stringSliceArg(req, "members")
	if err != nil {
		t.Fatalf("stringSliceArg() error = %v", err)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("stringSliceArg() = %v, want [alice bob]", got)
	}
}

func TestCmdCreateGroup_RequiresName(t *testing.T) {
	s := newTestSupervisor(t)
	req := ipc.Request{Args: map[string]interface{}{"group_id": "g1"}}
	if _, err := s.cmdCreateGroup(context.Background(), req); err == nil {
		t.Fatalf("cmdCreateGroup() error = nil, want missing argument error")
	}
}

func TestCmdCreateGroup_Succeeds(t *testing.T) {
	s := newTestSupervisor(t)
	req := ipc.Request{Args: map[string]interface{}{
		"group_id": "g1",
		"name":     "Friends",
		"members":  []interface{}{s.MyPeerID()},
	}}
	result, err := s.cmdCreateGroup(context.Background(), req)
	if err != nil {
		t.Fatalf("cmdCreateGroup() error = %v", err)
	}
	m, ok := result.(map[string]interface{})
	if !ok || m["group_id"] != "g1" {
		t.Errorf("cmdCreateGroup() result = %v, want group_id g1", result)
	}
}

func TestCmdCreateChannel_ReturnsInviteLink(t *testing.T) {
	s := newTestSupervisor(t)
	req := ipc.Request{Args: map[string]interface{}{
		"channel_id": "c1",
		"name":       "Announcements",
	}}
	result, err := s.cmdCreateChannel(context.Background(), req)
	if err != nil {
		t.Fatalf("cmdCreateChannel() error = %v", err)
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("cmdCreateChannel() result = %v, want map", result)
	}
	link, _ := m["invite_link"].(string)
	if link == "" {
		t.Errorf("cmdCreateChannel() invite_link is empty")
	}
}

func TestCmdSubscribeChannel_RejectsMissingPrefix(t *testing.T) {
	s := newTestSupervisor(t)
	req := ipc.Request{Args: map[string]interface{}{"invite_link": "not-a-valid-link"}}
	if _, err := s.cmdSubscribeChannel(context.Background(), req); err == nil {
		t.Fatalf("cmdSubscribeChannel() error = nil, want invalid invite link error")
	}
}

func TestCmdSubscribeChannel_RoundTripsCreatedChannel(t *testing.T) {
	s := newTestSupervisor(t)
	created, err := s.cmdCreateChannel(context.Background(), ipc.Request{Args: map[string]interface{}{
		"channel_id": "c1",
		"name":       "Announcements",
	}})
	if err != nil {
		t.Fatalf("cmdCreateChannel() error = %v", err)
	}
	link := created.(map[string]interface{})["invite_link"].(string)

	subscriber := newTestSupervisor(t)
	result, err := subscriber.cmdSubscribeChannel(context.Background(), ipc.Request{Args: map[string]interface{}{"invite_link": link}})
	if err != nil {
		t.Fatalf("cmdSubscribeChannel() error = %v", err)
	}
	m := result.(map[string]interface{})
	if m["channel_id"] != "c1" || m["name"] != "Announcements" {
		t.Errorf("cmdSubscribeChannel() result = %v, want channel_id c1 name Announcements", m)
	}
}

func TestCmdAcceptPair_UnknownCode(t *testing.T) {
	s := newTestSupervisor(t)
	req := ipc.Request{Args: map[string]interface{}{"code": "NOPE00"}}
	if _, err := s.cmdAcceptPair(context.Background(), req); err == nil {
		t.Fatalf("cmdAcceptPair() error = nil, want unknown pairing code error")
	}
}

func TestCmdAcceptPair_AfterPairIncoming(t *testing.T) {
	s := newTestSupervisor(t)
	s.onPairIncoming(signaling.PairIncoming{FromCode: "ABC123", FromPublicKey: "remote-pub-key"})

	result, err := s.cmdAcceptPair(context.Background(), ipc.Request{Args: map[string]interface{}{"code": "ABC123"}})
	if err != nil {
		t.Fatalf("cmdAcceptPair() error = %v", err)
	}
	if result.(map[string]interface{})["public_key"] != "remote-pub-key" {
		t.Errorf("cmdAcceptPair() result = %v, want public_key remote-pub-key", result)
	}
}

func TestNewSupervisor_RemembersPairingCodeInCache(t *testing.T) {
	s := newTestSupervisor(t)
	peerKey, err := s.pairingCache.Lookup(s.PairingCode())
	if err != nil {
		t.Fatalf("pairingCache.Lookup() error = %v", err)
	}
	if peerKey != s.MyPeerID() {
		t.Errorf("pairingCache.Lookup() = %q, want %q", peerKey, s.MyPeerID())
	}
}

func TestCmdStatus_ReportsOwnIdentity(t *testing.T) {
	s := newTestSupervisor(t)
	result, err := s.cmdStatus(context.Background(), ipc.Request{})
	if err != nil {
		t.Fatalf("cmdStatus() error = %v", err)
	}
	m := result.(map[string]interface{})
	if m["peer_id"] != s.MyPeerID() {
		t.Errorf("cmdStatus() peer_id = %v, want %v", m["peer_id"], s.MyPeerID())
	}
	if m["pairing_code"] != s.PairingCode() {
		t.Errorf("cmdStatus() pairing_code = %v, want %v", m["pairing_code"], s.PairingCode())
	}
}
