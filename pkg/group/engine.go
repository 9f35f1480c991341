package group

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/zajel/headless/pkg/cryptocore"
)

const (
	// DefaultMaxSeqGap bounds how far ahead of the last-seen sequence
	// number a newly arrived message from the same author may be.
	DefaultMaxSeqGap = 1000

	// DefaultMaxMessagesPerGroup caps the retained message history per
	// group; the earliest-stored message is evicted first. History is
	// kept in arrival order, so after reordered delivery the evicted
	// message is not necessarily the one with the lowest sequence number.
	DefaultMaxMessagesPerGroup = 5000
)

// Config bounds GroupEngine behavior.
type Config struct {
	MaxSeqGap           uint64
	MaxMessagesPerGroup int
	LoggerFactory       logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.MaxSeqGap == 0 {
		c.MaxSeqGap = DefaultMaxSeqGap
	}
	if c.MaxMessagesPerGroup <= 0 {
		c.MaxMessagesPerGroup = DefaultMaxMessagesPerGroup
	}
}

// Hooks are GroupEngine's only way to reach connected peers.
type Hooks struct {
	// SendFrame delivers a raw group_encrypted frame to one connected
	// member, over that peer's message data channel.
	SendFrame func(peerID string, frame []byte) error

	// SendInvitation delivers a group_invitation frame to one connected
	// member.
	SendInvitation func(peerID string, fields map[string]interface{}) error

	// OnGroupMessage is called once a received message has passed
	// duplicate and sequence checks and been decrypted.
	OnGroupMessage func(GroupMessage)
}

type groupState struct {
	group      *Group
	keys       *senderKeyTable
	mySeq      uint64            // next sequence number this device will send
	seen       map[string]struct{} // message_id set
	watermarks map[string]uint64   // author device id -> last accepted seq
	messages   []GroupMessage      // ordered oldest-first
}

// Engine is GroupEngine.
type Engine struct {
	cfg   Config
	hooks Hooks
	log   logging.LeveledLogger

	myDeviceID string

	mu     sync.Mutex
	groups map[string]*groupState
}

// New constructs an Engine. myDeviceID identifies this process in
// author_device_id and inviter_device_id fields.
func New(myDeviceID string, hooks Hooks, cfg Config) *Engine {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("group")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("group")
	}

	return &Engine{
		cfg:        cfg,
		hooks:      hooks,
		log:        log,
		myDeviceID: myDeviceID,
		groups:     make(map[string]*groupState),
	}
}

// CreateGroup starts a new group with the local device as the sole
// initial member, generating our own sender key.
func (e *Engine) CreateGroup(groupID, name string, members []string) (*Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.groups[groupID]; exists {
		return nil, ErrGroupExists
	}

	myKey, err := cryptocore.GenerateSenderKey()
	if err != nil {
		return nil, err
	}

	g := newGroup(groupID, name, e.myDeviceID, members)
	e.groups[groupID] = &groupState{
		group:      g,
		keys:       newSenderKeyTable(e.myDeviceID, myKey),
		seen:       make(map[string]struct{}),
		watermarks: make(map[string]uint64),
	}
	return g, nil
}

// AcceptInvitation installs a group learned via a group_invitation
// frame: if the group does not yet exist locally, it is created with
// the invitation's member list and a fresh sender key for this device;
// any sender keys the invitation carried are installed either way.
func (e *Engine) AcceptInvitation(groupID, name string, members []string, senderKeys map[string][]byte) (*Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, exists := e.groups[groupID]
	if !exists {
		myKey, err := cryptocore.GenerateSenderKey()
		if err != nil {
			return nil, err
		}
		g := newGroup(groupID, name, e.myDeviceID, members)
		st = &groupState{
			group:      g,
			keys:       newSenderKeyTable(e.myDeviceID, myKey),
			seen:       make(map[string]struct{}),
			watermarks: make(map[string]uint64),
		}
		e.groups[groupID] = st
	}
	for deviceID, key := range senderKeys {
		st.keys.install(deviceID, key)
	}
	return st.group, nil
}

// InviteToGroup sends peerID a group_invitation frame naming the
// group's current members and every sender key we currently hold,
// including our own.
func (e *Engine) InviteToGroup(groupID, peerID string) error {
	e.mu.Lock()
	st, ok := e.groups[groupID]
	if !ok {
		e.mu.Unlock()
		return ErrGroupNotFound
	}
	members := make([]string, 0, len(st.group.Members))
	for id := range st.group.Members {
		members = append(members, id)
	}
	keys := make(map[string]interface{}, len(st.keys.members))
	for id, key := range st.keys.members {
		keys[id] = base64.StdEncoding.EncodeToString(key)
	}
	name := st.group.Name
	e.mu.Unlock()

	if e.hooks.SendInvitation == nil {
		return nil
	}
	return e.hooks.SendInvitation(peerID, map[string]interface{}{
		"type":              "group_invitation",
		"group_id":          groupID,
		"name":              name,
		"inviter_device_id": e.myDeviceID,
		"members":           members,
		"sender_keys":       keys,
	})
}

// LeaveGroup zeroizes every sender key held for groupID and forgets the
// group.
func (e *Engine) LeaveGroup(groupID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	st.keys.zeroizeAll()
	delete(e.groups, groupID)
	return nil
}

// Send encrypts content under our sender key and fans it out to every
// connected member in connectedMembers (device id -> peer id), returning
// the message record as stored locally.
func (e *Engine) Send(groupID string, content []byte, connectedMembers map[string]string) (GroupMessage, error) {
	e.mu.Lock()
	st, ok := e.groups[groupID]
	if !ok {
		e.mu.Unlock()
		return GroupMessage{}, ErrGroupNotFound
	}

	st.mySeq++
	seq := st.mySeq
	ts := time.Now()
	inner, err := encodeInner(seq, content, ts)
	if err != nil {
		e.mu.Unlock()
		return GroupMessage{}, err
	}
	ciphertext, err := st.keys.mine.Seal(inner)
	if err != nil {
		e.mu.Unlock()
		return GroupMessage{}, err
	}

	msg := GroupMessage{
		GroupID:        groupID,
		AuthorDeviceID: e.myDeviceID,
		SequenceNumber: seq,
		Content:        content,
		Timestamp:      ts,
		MessageID:      messageID(e.myDeviceID, seq),
	}
	st.seen[msg.MessageID] = struct{}{}
	appendCapped(st, msg, e.cfg.MaxMessagesPerGroup)
	e.mu.Unlock()

	frame, err := encodeEnvelope(groupID, e.myDeviceID, ciphertext)
	if err != nil {
		return msg, err
	}
	if e.hooks.SendFrame != nil {
		for deviceID, peerID := range connectedMembers {
			if deviceID == e.myDeviceID {
				continue
			}
			if err := e.hooks.SendFrame(peerID, frame); err != nil {
				e.log.Warnf("group: send to %s failed: %v", peerID, err)
			}
		}
	}
	return msg, nil
}

// HandleFrame processes an inbound group_encrypted frame through the
// six-step receive algorithm: lookup, membership check, sender-key
// lookup, decrypt, sequence/duplicate check, deliver.
func (e *Engine) HandleFrame(fields map[string]interface{}) error {
	groupID, authorDeviceID, ciphertext, ok := decodeFields(fields)
	if !ok {
		return ErrGroupNotFound
	}

	e.mu.Lock()
	st, ok := e.groups[groupID]
	if !ok {
		e.mu.Unlock()
		return ErrGroupNotFound
	}
	if !st.group.isMember(authorDeviceID) {
		e.mu.Unlock()
		return ErrNotMember
	}
	key, ok := st.keys.members[authorDeviceID]
	if !ok {
		e.mu.Unlock()
		return ErrNoSenderKey
	}
	e.mu.Unlock()

	plaintext, err := cryptocore.OpenSenderKeyMessage(key, ciphertext)
	if err != nil {
		return err
	}
	seq, content, ts, err := decodeInner(plaintext)
	if err != nil {
		return err
	}
	msgID := messageID(authorDeviceID, seq)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := st.seen[msgID]; dup {
		return ErrDuplicateMessage
	}
	lastSeen := st.watermarks[authorDeviceID]
	if seq > lastSeen+e.cfg.MaxSeqGap {
		return ErrSequenceRegression
	}
	if seq > lastSeen {
		st.watermarks[authorDeviceID] = seq
	}

	st.seen[msgID] = struct{}{}
	msg := GroupMessage{
		GroupID:        groupID,
		AuthorDeviceID: authorDeviceID,
		SequenceNumber: seq,
		Content:        content,
		Timestamp:      ts,
		MessageID:      msgID,
	}
	appendCapped(st, msg, e.cfg.MaxMessagesPerGroup)

	if e.hooks.OnGroupMessage != nil {
		e.hooks.OnGroupMessage(msg)
	}
	return nil
}

// appendCapped appends msg to the group's message history, evicting
// the oldest entry when the history exceeds max (Property 3).
func appendCapped(st *groupState, msg GroupMessage, max int) {
	st.messages = append(st.messages, msg)
	if len(st.messages) > max {
		st.messages = st.messages[len(st.messages)-max:]
	}
}

// Messages returns the retained history for groupID, oldest first.
func (e *Engine) Messages(groupID string) ([]GroupMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := make([]GroupMessage, len(st.messages))
	copy(out, st.messages)
	return out, nil
}

// Get returns the Group record for groupID.
func (e *Engine) Get(groupID string) (*Group, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.groups[groupID]
	if !ok {
		return nil, false
	}
	return st.group, true
}
