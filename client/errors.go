package client

import (
	"github.com/pkg/errors"

	"portrpc/transport"
)

var (
	// ErrDisconnected is matched by every error a call gets when the channel
	// it was sent on fails.
	ErrDisconnected = errors.New("rpc: disconnected")
	// ErrInvalidResponse means the matching response carried neither a
	// result nor an error.
	ErrInvalidResponse = errors.New("rpc: invalid response")
	// ErrClosed is returned for pending and later calls once Close is called.
	ErrClosed = errors.New("rpc: client is closed")
	// ErrDuplicateID is returned when an injected id generator produces an
	// id that is still in flight.
	ErrDuplicateID = errors.New("rpc: duplicate call id")
)

// DisconnectError rejects the calls that were in flight when the channel
// failed. Cause is why the channel failed, nil for a clean close.
type DisconnectError struct {
	Cause error
}

func (e *DisconnectError) Error() string {
	if e.Cause == nil {
		return ErrDisconnected.Error()
	}
	return ErrDisconnected.Error() + ": " + e.Cause.Error()
}

func (e *DisconnectError) Unwrap() error {
	return e.Cause
}

func (e *DisconnectError) Is(target error) bool {
	return target == ErrDisconnected
}

// RemoteError is an error reported by the peer for one call.
type RemoteError struct {
	Message string
}

// Error returns the peer's message as is.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "rpc: remote error"
	}
	return e.Message
}

// Retryable reports whether err may go away on a fresh channel: the call was
// lost with its channel, never answered. The method may still have run on
// the peer.
func Retryable(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, transport.ErrConnClosed)
}
