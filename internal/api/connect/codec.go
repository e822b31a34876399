package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go messages as JSON under the "json" codec name,
// replacing connect's protobuf-only JSON codec.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSONCodec returns the codec option shared by handlers and clients.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
