package client

import (
	"github.com/pkg/errors"

	"portrpc/codec"
	"portrpc/message"
)

// Call is an asynchronous call started by Client.Go.
type Call struct {
	Method string
	Arg    any
	Result message.RawValue // raw result, valid when Error is nil
	Error  error
	Done   chan *Call // receives the call itself once complete

	codec codec.Codec
}

// Decode decodes the result into reply, or returns the call's error.
func (call *Call) Decode(reply any) error {
	if call.Error != nil {
		return call.Error
	}
	return errors.Wrap(call.codec.Decode(call.Result, reply), "decode result")
}
