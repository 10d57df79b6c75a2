// Package message defines the request and response envelopes exchanged with
// the peer process.
//
// A request always carries exactly one positional parameter: the peer side is
// usually Go's net/rpc, which accepts a single argument per method, so an array
// holding one value is the least common denominator of both conventions.
//
//	request:  {"id": 0, "method": "example.Sqrt", "params": [2]}
//	response: {"id": 0, "result": 1.4142135623730951}
//	          {"id": 1, "error": "domain error"}
package message

import "fmt"

// Request is one outgoing call.
type Request struct {
	ID     uint64 `json:"id" msgpack:"id"`
	Method string `json:"method" msgpack:"method"`
	Params []any  `json:"params" msgpack:"params"`
}

// NewRequest wraps arg as the single element of the params array.
// Callers with several logical arguments must pack them into one value.
func NewRequest(id uint64, method string, arg any) *Request {
	return &Request{
		ID:     id,
		Method: method,
		Params: []any{arg},
	}
}

// RawValue is a single value still encoded in the format of the codec that
// produced it. It is decoded into the caller's reply with the same codec.
type RawValue []byte

// Response is a decoded inbound message. Field presence is recorded
// explicitly: a key holding null is treated as absent, because net/rpc hosts
// always send both "result" and "error" with one of them null.
type Response struct {
	ID       uint64
	HasID    bool
	Result   RawValue // nil when "result" is absent or null
	Error    string
	HasError bool
	Raw      []byte // the whole message as received, for diagnostics
}

// HasResult reports whether a non-null result is present.
func (r *Response) HasResult() bool {
	return r.Result != nil
}

func (r *Response) String() string {
	id := "none"
	if r.HasID {
		id = fmt.Sprint(r.ID)
	}
	return fmt.Sprintf("id=%s result=%t error=%q", id, r.HasResult(), r.Error)
}

// Invocation is a call as seen by client middleware, before an identifier is
// assigned.
type Invocation struct {
	Method string
	Arg    any
}
