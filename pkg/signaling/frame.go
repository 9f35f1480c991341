package signaling

import "encoding/json"

// FrameType discriminates the tagged-union frames exchanged with the
// coordinator: frames are a sum type discriminated by "type", validated
// before dispatch.
type FrameType string

// Inbound frame types the daemon reacts to.
const (
	FrameTypePairIncoming FrameType = "pair_incoming"
	FrameTypePairMatched  FrameType = "pair_matched"
	FrameTypeWebRTCSignal FrameType = "webrtc_signal"
	FrameTypeCallSignal   FrameType = "call_signal"
	FrameTypeChunkData    FrameType = "chunk_data"
	FrameTypeHeartbeatAck FrameType = "heartbeat_ack"
)

// Outbound frame types the daemon sends.
const (
	FrameTypeRegister    FrameType = "register"
	FrameTypeHeartbeat   FrameType = "heartbeat"
	FrameTypePairRequest FrameType = "pair_request"
)

// rawFrame is the wire shape of every frame: a type tag plus an
// arbitrary field bag, decoded generically and validated per type before
// any field is trusted.
type rawFrame struct {
	Type   FrameType              `json:"type"`
	Fields map[string]interface{} `json:"-"`
}

// decodeFrame parses one line of newline-delimited JSON into its type tag
// and field bag.
func decodeFrame(line []byte) (rawFrame, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(line, &fields); err != nil {
		return rawFrame{}, ErrInvalidFrame
	}
	typ, ok := fields["type"].(string)
	if !ok || typ == "" {
		return rawFrame{}, ErrInvalidFrame
	}
	return rawFrame{Type: FrameType(typ), Fields: fields}, nil
}

func (f rawFrame) requireString(key string) (string, bool) {
	v, ok := f.Fields[key].(string)
	return v, ok && v != ""
}

func (f rawFrame) requireBool(key string) (bool, bool) {
	v, ok := f.Fields[key].(bool)
	return v, ok
}

// validate enforces the per-type required-field floor. Unknown types
// are reported via ErrUnknownFrameType (caller logs and drops); missing
// required fields return ErrInvalidFrame.
func (f rawFrame) validate() error {
	switch f.Type {
	case FrameTypePairIncoming:
		if _, ok := f.requireString("fromCode"); !ok {
			return ErrInvalidFrame
		}
		if _, ok := f.requireString("fromPublicKey"); !ok {
			return ErrInvalidFrame
		}
	case FrameTypePairMatched:
		if _, ok := f.requireString("peerCode"); !ok {
			return ErrInvalidFrame
		}
		if _, ok := f.requireString("peerPublicKey"); !ok {
			return ErrInvalidFrame
		}
		if _, ok := f.requireBool("isInitiator"); !ok {
			return ErrInvalidFrame
		}
	case FrameTypeWebRTCSignal, FrameTypeCallSignal, FrameTypeChunkData:
		if _, ok := f.requireString("from"); !ok {
			return ErrInvalidFrame
		}
		if _, ok := f.Fields["payload"]; !ok {
			return ErrInvalidFrame
		}
	case FrameTypeHeartbeatAck:
		// No required fields beyond the type tag.
	default:
		return ErrUnknownFrameType
	}
	return nil
}

// PairIncoming is the validated payload of a pair_incoming frame.
type PairIncoming struct {
	FromCode      string
	FromPublicKey string
}

func (f rawFrame) asPairIncoming() PairIncoming {
	code, _ := f.requireString("fromCode")
	pub, _ := f.requireString("fromPublicKey")
	return PairIncoming{FromCode: code, FromPublicKey: pub}
}

// PairMatched is the validated payload of a pair_matched frame.
type PairMatched struct {
	PeerCode      string
	PeerPublicKey string
	IsInitiator   bool
}

func (f rawFrame) asPairMatched() PairMatched {
	code, _ := f.requireString("peerCode")
	pub, _ := f.requireString("peerPublicKey")
	init, _ := f.requireBool("isInitiator")
	return PairMatched{PeerCode: code, PeerPublicKey: pub, IsInitiator: init}
}

// SignalEnvelope is the validated payload of webrtc_signal, call_signal,
// and chunk_data frames: a sender and an opaque payload.
type SignalEnvelope struct {
	From    string
	Payload interface{}
}

func (f rawFrame) asSignalEnvelope() SignalEnvelope {
	from, _ := f.requireString("from")
	return SignalEnvelope{From: from, Payload: f.Fields["payload"]}
}

// encodeFrame serializes an outbound frame with its type tag merged in.
func encodeFrame(typ FrameType, fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["type"] = string(typ)
	return json.Marshal(fields)
}
