package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"portrpc/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Browsers only speak JSON over native messaging, so this is the default.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) DecodeResponse(data []byte) (*message.Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "json codec")
	}
	// "null" leaves the map nil
	if fields == nil {
		return nil, ErrNotObject
	}

	resp := &message.Response{Raw: data}
	if raw, ok := fields["id"]; ok && !jsonNull(raw) {
		var id uint64
		if err := json.Unmarshal(raw, &id); err == nil {
			resp.ID = id
			resp.HasID = true
		}
	}
	if raw, ok := fields["result"]; ok && !jsonNull(raw) {
		resp.Result = message.RawValue(raw)
	}
	if raw, ok := fields["error"]; ok && !jsonNull(raw) {
		resp.Error = jsonErrorMessage(raw)
		resp.HasError = true
	}
	return resp, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func jsonNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonErrorMessage accepts a plain string (net/rpc) or a JSON-RPC 2.0 error
// object; anything else is reported verbatim.
func jsonErrorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
