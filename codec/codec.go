// Package codec serializes requests and parses responses for one channel.
//
// Encoding is plain marshaling. Decoding a response is done in two steps:
// first the message is split into its top-level fields still in encoded form,
// then each field is inspected for presence. That keeps "result": 0 apart from
// a missing result, and lets the caller decode the result straight into its
// reply value with the same codec.
package codec

import (
	"strings"

	"github.com/pkg/errors"

	"portrpc/message"
)

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeMsgpack CodecType = 1
)

var (
	// ErrNotObject is returned for a message that decodes to something other
	// than a map, e.g. null or an array.
	ErrNotObject = errors.New("codec: message is not an object")
	// ErrUnknownCodec is returned by ParseType for an unsupported name.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	// DecodeResponse parses an inbound message without interpreting it.
	DecodeResponse(data []byte) (*message.Response, error)
	Type() CodecType // 0=JSON, 1=MessagePack
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeMsgpack {
		return &MsgpackCodec{}
	}

	return &JSONCodec{}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeMsgpack:
		return "msgpack"
	}
	return "unknown"
}

// ParseType maps a codec name as used on the command line to its type.
func ParseType(name string) (CodecType, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return CodecTypeJSON, nil
	case "msgpack", "messagepack":
		return CodecTypeMsgpack, nil
	}
	return 0, errors.Wrap(ErrUnknownCodec, name)
}
