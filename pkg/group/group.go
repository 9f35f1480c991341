// Package group implements GroupEngine: sender-key group messaging with
// per-author sequence discipline and duplicate rejection.
package group

import (
	"fmt"
	"time"

	"github.com/zajel/headless/pkg/cryptocore"
)

// Group is one group's membership and bookkeeping state.
type Group struct {
	GroupID    string
	Name       string
	Members    map[string]struct{}
	MyDeviceID string
	CreatedAt  time.Time
}

func newGroup(groupID, name, myDeviceID string, members []string) *Group {
	m := make(map[string]struct{}, len(members)+1)
	for _, id := range members {
		m[id] = struct{}{}
	}
	m[myDeviceID] = struct{}{}
	return &Group{
		GroupID:    groupID,
		Name:       name,
		Members:    m,
		MyDeviceID: myDeviceID,
		CreatedAt:  time.Now(),
	}
}

func (g *Group) isMember(deviceID string) bool {
	_, ok := g.Members[deviceID]
	return ok
}

// GroupMessage is one delivered, sequence-numbered group message.
type GroupMessage struct {
	GroupID        string
	AuthorDeviceID string
	SequenceNumber uint64
	Content        []byte
	Timestamp      time.Time
	MessageID      string
}

func messageID(authorDeviceID string, seq uint64) string {
	return fmt.Sprintf("%s:%d", authorDeviceID, seq)
}

// senderKeyTable holds every member's sender key and the local
// member's outbound cipher, scoped to one group.
type senderKeyTable struct {
	mine    *cryptocore.SenderKeyCipher
	members map[string][]byte // deviceID -> sender key, includes our own
}

func newSenderKeyTable(myDeviceID string, myKey []byte) *senderKeyTable {
	return &senderKeyTable{
		mine:    cryptocore.NewSenderKeyCipher(myKey),
		members: map[string][]byte{myDeviceID: myKey},
	}
}

func (t *senderKeyTable) install(deviceID string, key []byte) {
	t.members[deviceID] = key
}

func (t *senderKeyTable) remove(deviceID string) {
	if key, ok := t.members[deviceID]; ok {
		for i := range key {
			key[i] = 0
		}
		delete(t.members, deviceID)
	}
}

func (t *senderKeyTable) zeroizeAll() {
	for id := range t.members {
		t.remove(id)
	}
}
