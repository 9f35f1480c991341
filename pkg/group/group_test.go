package group

import (
	"encoding/json"
	"testing"
)

// captureFrame installs a SendFrame hook on e that stores the last
// frame sent to any member, decoded to its JSON fields.
func captureFrame(t *testing.T, e *Engine) *map[string]interface{} {
	t.Helper()
	var captured map[string]interface{}
	e.hooks.SendFrame = func(peerID string, raw []byte) error {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		captured = fields
		return nil
	}
	return &captured
}

// sendersOf exposes the sender keys an Engine currently holds for
// groupID, for wiring a second Engine's AcceptInvitation in tests.
func sendersOf(t *testing.T, e *Engine, groupID string) map[string][]byte {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.groups[groupID]
	out := make(map[string][]byte, len(st.keys.members))
	for id, key := range st.keys.members {
		cp := make([]byte, len(key))
		copy(cp, key)
		out[id] = cp
	}
	return out
}

func newPair(t *testing.T) (m1, m2 *Engine) {
	t.Helper()
	m1 = New("m1", Hooks{}, Config{})
	if _, err := m1.CreateGroup("g1", "test group", []string{"m2"}); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	m2 = New("m2", Hooks{}, Config{})
	if _, err := m2.AcceptInvitation("g1", "test group", []string{"m1", "m2"}, sendersOf(t, m1, "g1")); err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	return m1, m2
}

func TestGroup_SendReceiveRoundTrip(t *testing.T) {
	m1, m2 := newPair(t)

	received := make(chan GroupMessage, 1)
	m2.hooks.OnGroupMessage = func(msg GroupMessage) { received <- msg }

	frame := captureFrame(t, m1)
	if _, err := m1.Send("g1", []byte("hello group"), map[string]string{"m2": "peer-m2"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := m2.HandleFrame(*frame); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Content) != "hello group" {
			t.Errorf("Content = %q, want %q", msg.Content, "hello group")
		}
		if msg.AuthorDeviceID != "m1" || msg.SequenceNumber != 1 {
			t.Errorf("got author=%s seq=%d, want m1/1", msg.AuthorDeviceID, msg.SequenceNumber)
		}
	default:
		t.Fatal("OnGroupMessage was not called")
	}
}

func TestGroup_DuplicateMessageRejected(t *testing.T) {
	m1, m2 := newPair(t)

	var n int
	m2.hooks.OnGroupMessage = func(GroupMessage) { n++ }

	frame := captureFrame(t, m1)
	if _, err := m1.Send("g1", []byte("one"), map[string]string{"m2": "peer-m2"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := m2.HandleFrame(*frame); err != nil {
		t.Fatalf("first HandleFrame() error = %v", err)
	}
	if err := m2.HandleFrame(*frame); err != ErrDuplicateMessage {
		t.Errorf("replayed HandleFrame() error = %v, want ErrDuplicateMessage", err)
	}
	if n != 1 {
		t.Errorf("OnGroupMessage called %d times, want 1", n)
	}
}

func TestGroup_SequenceGapRejected(t *testing.T) {
	m1 := New("m1", Hooks{}, Config{})
	m1.CreateGroup("g1", "g", []string{"m2"})
	m2 := New("m2", Hooks{}, Config{MaxSeqGap: 2})
	m2.AcceptInvitation("g1", "g", []string{"m1", "m2"}, sendersOf(t, m1, "g1"))

	var frames []map[string]interface{}
	m1.hooks.SendFrame = func(peerID string, raw []byte) error {
		var f map[string]interface{}
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		frames = append(frames, f)
		return nil
	}
	for i := 0; i < 4; i++ {
		if _, err := m1.Send("g1", []byte("x"), map[string]string{"m2": "peer-m2"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	// frames[0..3] carry seq 1..4; with MaxSeqGap=2 and lastSeen=0, seq=4
	// exceeds the tolerance and must be rejected.
	if err := m2.HandleFrame(frames[3]); err != ErrSequenceRegression {
		t.Errorf("HandleFrame(seq=4) error = %v, want ErrSequenceRegression", err)
	}
	if err := m2.HandleFrame(frames[0]); err != nil {
		t.Errorf("HandleFrame(seq=1) error = %v, want nil", err)
	}
}

func TestGroup_ReorderedDeliveryTolerated(t *testing.T) {
	m1, m2 := newPair(t)

	var frames []map[string]interface{}
	m1.hooks.SendFrame = func(peerID string, raw []byte) error {
		var f map[string]interface{}
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		frames = append(frames, f)
		return nil
	}
	for i := 0; i < 3; i++ {
		if _, err := m1.Send("g1", []byte("x"), map[string]string{"m2": "peer-m2"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	order := []int{0, 2, 1} // seq 1, 3, 2 — matches the §4.7 reorder scenario
	for _, i := range order {
		if err := m2.HandleFrame(frames[i]); err != nil {
			t.Fatalf("HandleFrame(index=%d) error = %v", i, err)
		}
	}
	if err := m2.HandleFrame(frames[1]); err != ErrDuplicateMessage {
		t.Errorf("replay of seq=2 error = %v, want ErrDuplicateMessage", err)
	}

	msgs, _ := m2.Messages("g1")
	if len(msgs) != 3 {
		t.Errorf("len(Messages()) = %d, want 3", len(msgs))
	}
}

func TestGroup_CappedHistoryEvictsOldest(t *testing.T) {
	m1 := New("m1", Hooks{}, Config{MaxMessagesPerGroup: 2})
	m1.CreateGroup("g1", "g", nil)
	for i := 0; i < 5; i++ {
		if _, err := m1.Send("g1", []byte("x"), nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	msgs, _ := m1.Messages("g1")
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[0].SequenceNumber != 4 || msgs[1].SequenceNumber != 5 {
		t.Errorf("retained seqs = %d,%d, want 4,5", msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}
}

func TestGroup_LeaveZeroizesKeys(t *testing.T) {
	m1 := New("m1", Hooks{}, Config{})
	m1.CreateGroup("g1", "g", nil)
	key := m1.groups["g1"].keys.members["m1"]
	if err := m1.LeaveGroup("g1"); err != nil {
		t.Fatalf("LeaveGroup() error = %v", err)
	}
	for _, b := range key {
		if b != 0 {
			t.Fatal("sender key not zeroized after LeaveGroup")
		}
	}
	if _, ok := m1.Get("g1"); ok {
		t.Error("group still present after LeaveGroup")
	}
	if err := m1.LeaveGroup("g1"); err != ErrGroupNotFound {
		t.Errorf("second LeaveGroup() error = %v, want ErrGroupNotFound", err)
	}
}
