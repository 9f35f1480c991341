package group

import "errors"

var (
	// ErrGroupExists is returned by CreateGroup for a group_id already in
	// use.
	ErrGroupExists = errors.New("group: already exists")

	// ErrGroupNotFound is returned when an operation names an unknown
	// group_id.
	ErrGroupNotFound = errors.New("group: not found")

	// ErrNotMember is returned when send/receive names a device id not in
	// the group's member set.
	ErrNotMember = errors.New("group: not a member")

	// ErrDuplicateMessage is returned for a message_id already seen.
	ErrDuplicateMessage = errors.New("group: duplicate message")

	// ErrSequenceRegression is returned for a negative or too-far-ahead
	// sequence number from a given author.
	ErrSequenceRegression = errors.New("group: sequence number rejected")

	// ErrNoSenderKey is returned when encrypt/decrypt is attempted
	// without a sender key installed for the relevant member.
	ErrNoSenderKey = errors.New("group: no sender key")
)
