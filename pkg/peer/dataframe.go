package peer

import "encoding/json"

// dataFrameType discriminates the JSON objects exchanged over the
// "message" data channel.
type dataFrameType string

const (
	dataFrameHandshake       dataFrameType = "handshake"
	dataFrameEncrypted       dataFrameType = "encrypted"
	dataFrameFileStart       dataFrameType = "file_start"
	dataFrameFileChunk       dataFrameType = "file_chunk"
	dataFrameFileComplete    dataFrameType = "file_complete"
	dataFrameGroupInvitation dataFrameType = "group_invitation"
	dataFrameGroupEncrypted  dataFrameType = "group_encrypted"
)

type dataFrame struct {
	Type   dataFrameType
	Fields map[string]interface{}
}

func decodeDataFrame(raw []byte) (dataFrame, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return dataFrame{}, err
	}
	typ, _ := fields["type"].(string)
	return dataFrame{Type: dataFrameType(typ), Fields: fields}, nil
}

func (f dataFrame) str(key string) (string, bool) {
	v, ok := f.Fields[key].(string)
	return v, ok && v != ""
}

func encodeDataFrame(typ dataFrameType, fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["type"] = string(typ)
	return json.Marshal(fields)
}

// GroupInvitation is the validated payload of a group_invitation frame,
// surfaced to the GroupEngine once PeerManager's binding checks pass.
type GroupInvitation struct {
	GroupID         string
	Name            string
	InviterDeviceID string
	Members         []string
	SenderKeys      map[string][]byte
}

func (f dataFrame) asGroupInvitation() (GroupInvitation, bool) {
	groupID, ok := f.str("group_id")
	if !ok {
		return GroupInvitation{}, false
	}
	name, _ := f.str("name")
	inviter, ok := f.str("inviter_device_id")
	if !ok {
		return GroupInvitation{}, false
	}
	rawMembers, ok := f.Fields["members"].([]interface{})
	if !ok {
		return GroupInvitation{}, false
	}
	members := make([]string, 0, len(rawMembers))
	for _, m := range rawMembers {
		s, ok := m.(string)
		if !ok {
			return GroupInvitation{}, false
		}
		members = append(members, s)
	}
	rawKeys, ok := f.Fields["sender_keys"].(map[string]interface{})
	if !ok {
		return GroupInvitation{}, false
	}
	senderKeys := make(map[string][]byte, len(rawKeys))
	for member, v := range rawKeys {
		s, ok := v.(string)
		if !ok {
			return GroupInvitation{}, false
		}
		senderKeys[member] = []byte(s)
	}
	return GroupInvitation{
		GroupID:         groupID,
		Name:            name,
		InviterDeviceID: inviter,
		Members:         members,
		SenderKeys:      senderKeys,
	}, true
}
