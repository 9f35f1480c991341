package group

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// innerPayload is the plaintext sealed under the author's sender key.
// The envelope (group id, author, routing) travels outside the
// ciphertext so a receiver can pick the right key before decrypting.
type innerPayload struct {
	SequenceNumber uint64 `json:"sequence_number"`
	Content        string `json:"content"` // base64
	Timestamp      string `json:"timestamp"`
}

func encodeInner(seq uint64, content []byte, ts time.Time) ([]byte, error) {
	return json.Marshal(innerPayload{
		SequenceNumber: seq,
		Content:        base64.StdEncoding.EncodeToString(content),
		Timestamp:      ts.UTC().Format(time.RFC3339Nano),
	})
}

func decodeInner(raw []byte) (seq uint64, content []byte, ts time.Time, err error) {
	var p innerPayload
	if err = json.Unmarshal(raw, &p); err != nil {
		return 0, nil, time.Time{}, err
	}
	content, err = base64.StdEncoding.DecodeString(p.Content)
	if err != nil {
		return 0, nil, time.Time{}, err
	}
	ts, err = time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return 0, nil, time.Time{}, err
	}
	return p.SequenceNumber, content, ts, nil
}

// envelope is the group_encrypted data frame's JSON fields, as sent by
// pkg/peer over a peer's message data channel.
type envelope struct {
	Type           string `json:"type"`
	GroupID        string `json:"group_id"`
	AuthorDeviceID string `json:"author_device_id"`
	Ciphertext     string `json:"ciphertext"`
}

const frameTypeGroupEncrypted = "group_encrypted"

func encodeEnvelope(groupID, authorDeviceID, ciphertext string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:           frameTypeGroupEncrypted,
		GroupID:        groupID,
		AuthorDeviceID: authorDeviceID,
		Ciphertext:     ciphertext,
	})
}

func decodeFields(fields map[string]interface{}) (groupID, authorDeviceID, ciphertext string, ok bool) {
	groupID, ok1 := fields["group_id"].(string)
	authorDeviceID, ok2 := fields["author_device_id"].(string)
	ciphertext, ok3 := fields["ciphertext"].(string)
	return groupID, authorDeviceID, ciphertext, ok1 && ok2 && ok3
}
