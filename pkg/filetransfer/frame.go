package filetransfer

import "encoding/json"

type frameType string

const (
	frameTypeFileStart    frameType = "file_start"
	frameTypeFileChunk    frameType = "file_chunk"
	frameTypeFileComplete frameType = "file_complete"
)

// encodeControlFrame serializes a file_start/file_complete frame, sent
// over the "message" (control) data channel.
func encodeControlFrame(typ frameType, fields map[string]interface{}) ([]byte, error) {
	return encodeFrame(typ, fields)
}

// encodeBulkFrame serializes a file_chunk frame, sent over the "file"
// (bulk) data channel.
func encodeBulkFrame(typ frameType, fields map[string]interface{}) ([]byte, error) {
	return encodeFrame(typ, fields)
}

func encodeFrame(typ frameType, fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["type"] = string(typ)
	return json.Marshal(fields)
}

type decodedFrame struct {
	Type   string
	Fields map[string]interface{}
}

func decodeFrame(raw []byte) (decodedFrame, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return decodedFrame{}, err
	}
	typ, _ := fields["type"].(string)
	return decodedFrame{Type: typ, Fields: fields}, nil
}

func (f decodedFrame) str(key string) (string, bool) {
	v, ok := f.Fields[key].(string)
	return v, ok
}

func (f decodedFrame) number(key string) (float64, bool) {
	v, ok := f.Fields[key].(float64)
	return v, ok
}
