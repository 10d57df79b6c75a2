package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"portrpc/protocol"
)

// streamChannel frames messages over a byte stream with protocol.Encode and
// protocol.Decode. Reader and writer may be two halves of a pipe pair
// (stdin/stdout of a child process) or the same socket.
type streamChannel struct {
	r        io.Reader
	w        io.Writer
	closers  []io.Closer
	maxFrame uint32

	closeOnce sync.Once
	closeErr  error
}

// NewStreamChannel frames messages over a separate reader and writer, e.g.
// the stdout and stdin of a process. Close closes the writer first so the
// peer sees EOF, then the reader. A zero maxFrame means protocol.MaxFrameSize.
func NewStreamChannel(r io.ReadCloser, w io.WriteCloser, maxFrame uint32) Channel {
	return &streamChannel{
		r:        r,
		w:        w,
		closers:  []io.Closer{w, r},
		maxFrame: maxFrame,
	}
}

// NewConnChannel frames messages over one full-duplex connection.
func NewConnChannel(conn io.ReadWriteCloser, maxFrame uint32) Channel {
	return &streamChannel{
		r:        conn,
		w:        conn,
		closers:  []io.Closer{conn},
		maxFrame: maxFrame,
	}
}

func (s *streamChannel) Send(frame []byte) error {
	return protocol.Encode(s.w, frame)
}

func (s *streamChannel) Recv() ([]byte, error) {
	return protocol.Decode(s.r, s.maxFrame)
}

func (s *streamChannel) Close() error {
	s.closeOnce.Do(func() {
		for _, c := range s.closers {
			if err := c.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// NetDialer connects to a peer listening on a stream socket, e.g. a host
// process exposing a unix socket instead of being spawned by us.
type NetDialer struct {
	Network      string // "tcp", "unix", ...
	Address      string
	Timeout      time.Duration
	MaxFrameSize uint32
}

func (d *NetDialer) Dial(ctx context.Context) (Channel, error) {
	if d.Address == "" {
		return nil, errors.Wrap(ErrUnavailable, "no address to dial")
	}
	network := d.Network
	if network == "" {
		network = "tcp"
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, network, d.Address)
	if err != nil {
		return nil, err
	}
	return NewConnChannel(conn, d.MaxFrameSize), nil
}
