// Package transport implements the channel manager: it owns the single logical
// connection of a client to its peer process.
//
// The connection is created lazily by EnsureConnection and reused until it
// closes. A dedicated goroutine (readLoop) reads frames and hands each one to
// the owner; when the channel fails it reports the disconnect once, and the
// next EnsureConnection dials a fresh connection.
//
//	caller ──EnsureConnection──► Manager ──Dial──► Channel (stdio / socket / websocket)
//	                                │
//	readLoop: ◄── frame ── Channel  └──► Handler.HandleMessage(conn, frame)
//	          ◄── error ── Channel  ───► Handler.HandleDisconnect(conn, err)
//
// The manager knows nothing about requests and responses; frames are opaque.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrUnavailable means the channel mechanism cannot be used at all, e.g.
	// the host executable is missing. It is returned by Dial, so it surfaces
	// to the call that triggered the connection.
	ErrUnavailable = errors.New("transport: channel unavailable")
	// ErrConnClosed is returned by Send on a closed connection.
	ErrConnClosed = errors.New("transport: connection is closed")
	// ErrManagerClosed is returned by EnsureConnection after Close.
	ErrManagerClosed = errors.New("transport: manager is closed")
)

// Channel is one established bidirectional message stream to the peer.
// Send may be called concurrently with Recv, but not with itself.
type Channel interface {
	Send(frame []byte) error
	// Recv blocks until the next frame arrives. A clean shutdown by the peer
	// is reported as io.EOF.
	Recv() ([]byte, error)
	Close() error
}

// Dialer establishes channels. Every call must return a new, independent channel.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// Handler receives the events of every connection created by a Manager.
// Both methods are called from the connection's read goroutine.
type Handler interface {
	HandleMessage(conn *Conn, frame []byte)
	// HandleDisconnect is called once per connection, after its last
	// HandleMessage. A nil err means a clean close.
	HandleDisconnect(conn *Conn, err error)
}

// State of a connection.
type State int

const (
	StateDisconnected State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
