package codec

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"portrpc/message"
)

// MsgpackCodec serializes with MessagePack. It only works with peers that are
// not browsers, e.g. a host reached over a socket or a WebSocket.
// Pros: compact, binary-safe. Cons: not human-readable in debug traces.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) DecodeResponse(data []byte) (*message.Response, error) {
	var fields map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "msgpack codec")
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	resp := &message.Response{Raw: data}
	if raw, ok := fields["id"]; ok && !msgpackNil(raw) {
		var v any
		if err := msgpack.Unmarshal(raw, &v); err == nil {
			resp.ID, resp.HasID = unsignedID(v)
		}
	}
	if raw, ok := fields["result"]; ok && !msgpackNil(raw) {
		resp.Result = message.RawValue(raw)
	}
	if raw, ok := fields["error"]; ok && !msgpackNil(raw) {
		resp.Error = msgpackErrorMessage(raw)
		resp.HasError = true
	}
	return resp, nil
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}

// msgpackNil reports an absent value. Decoding nil into a RawMessage
// yields an empty slice rather than the nil code itself.
func msgpackNil(raw msgpack.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && raw[0] == msgpcode.Nil)
}

// unsignedID accepts any integer encoding that holds a non-negative value.
func unsignedID(v any) (uint64, bool) {
	switch n := v.(type) {
	case int8:
		return uint64(n), n >= 0
	case int16:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case int:
		return uint64(n), n >= 0
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	}
	return 0, false
}

func msgpackErrorMessage(raw msgpack.RawMessage) string {
	var s string
	if err := msgpack.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `msgpack:"message"`
	}
	if err := msgpack.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var v any
	if err := msgpack.Unmarshal(raw, &v); err == nil {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%x", []byte(raw))
}
