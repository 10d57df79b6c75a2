package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Conn is one connection instance. Its state only moves forward:
// Open → Closed. A closed Conn is never reopened; the manager dials a new one.
type Conn struct {
	id      string
	channel Channel
	sending sync.Mutex // frames from concurrent callers must not interleave

	mu    sync.Mutex
	state State
	err   error // why the read loop ended, nil for a clean close

	retired atomic.Bool   // set once by Manager.Retire
	done    chan struct{} // closed when the read loop has exited
}

func newConn(ch Channel) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		channel: ch,
		state:   StateOpen,
		done:    make(chan struct{}),
	}
}

// ID is a random identifier of this connection instance, used in logs.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the reason the connection closed, or nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Retired reports whether the owner has already processed the disconnect.
func (c *Conn) Retired() bool {
	return c.retired.Load()
}

// Done is closed when the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes one frame. A failure is returned to the caller only; it does
// not close the connection; a broken channel is reported by the read loop.
func (c *Conn) Send(frame []byte) error {
	if c.State() != StateOpen {
		return ErrConnClosed
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	return c.channel.Send(frame)
}

// Close closes the channel. Closing by the owner is a clean close.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	return c.channel.Close()
}

// fail records the read error, unless the connection was already closed.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.err = normalizeCloseErr(err)
}

func normalizeCloseErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
