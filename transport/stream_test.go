package transport

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrpc/protocol"
)

func TestConnChannel(t *testing.T) {
	a, b := net.Pipe()
	client := NewConnChannel(a, 0)
	peer := NewConnChannel(b, 0)
	defer peer.Close()

	go func() {
		frame, err := peer.Recv()
		if err != nil {
			return
		}
		_ = peer.Send(append([]byte("echo:"), frame...))
	}()

	require.NoError(t, client.Send([]byte(`{"id":0}`)))
	reply, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, `echo:{"id":0}`, string(reply))

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close(), "close is idempotent")
}

func TestConnChannelFrameLimit(t *testing.T) {
	a, b := net.Pipe()
	client := NewConnChannel(a, 8)
	defer client.Close()

	go func() {
		_ = protocol.Encode(b, []byte("this frame is too long"))
		b.Close()
	}()

	_, err := client.Recv()
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
}

func TestStreamChannelPeerEOF(t *testing.T) {
	r, w := io.Pipe()
	ch := NewStreamChannel(r, nopWriteCloser{io.Discard}, 0)

	go func() {
		_ = protocol.Encode(w, []byte("last"))
		w.Close()
	}()

	frame, err := ch.Recv()
	require.NoError(t, err)
	assert.Equal(t, "last", string(frame))

	_, err = ch.Recv()
	assert.Equal(t, io.EOF, err)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestNetDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		peer := NewConnChannel(conn, 0)
		defer peer.Close()
		for {
			frame, err := peer.Recv()
			if err != nil {
				return
			}
			if err := peer.Send(frame); err != nil {
				return
			}
		}
	}()

	d := &NetDialer{Address: ln.Addr().String()}
	ch, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send([]byte("hello")))
	frame, err := ch.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))
}

func TestNetDialerNoAddress(t *testing.T) {
	_, err := (&NetDialer{}).Dial(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}
