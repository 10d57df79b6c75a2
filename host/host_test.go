package host

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrpc/codec"
	"portrpc/transport"
)

type Arith struct{}

func (*Arith) Sqrt(x, result *float64) error {
	if *x < 0 {
		return errors.New("square root of negative number")
	}
	*result = math.Sqrt(*x)
	return nil
}

type Args struct {
	A, B int
}

func (*Arith) Add(args *Args, reply *int) error {
	*reply = args.A + args.B
	return nil
}

// startHost serves h on an in-memory pipe pair and returns the peer end.
func startHost(t *testing.T, h *Host) transport.Channel {
	t.Helper()
	hostIn, peerOut := io.Pipe()
	peerIn, hostOut := io.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeChannel(transport.NewStreamChannel(hostIn, hostOut, 0))
	}()

	peer := transport.NewStreamChannel(peerIn, peerOut, 0)
	t.Cleanup(func() {
		peer.Close()
		<-done
	})
	return peer
}

func roundTrip(t *testing.T, peer transport.Channel, request string) string {
	t.Helper()
	require.NoError(t, peer.Send([]byte(request)))
	frame, err := peer.Recv()
	require.NoError(t, err)
	return string(frame)
}

func TestHostJSON(t *testing.T) {
	h := New()
	require.NoError(t, h.RegisterName("example", &Arith{}))
	peer := startHost(t, h)

	assert.JSONEq(t, `{"id":0,"result":2,"error":null}`,
		roundTrip(t, peer, `{"id":0,"method":"example.Sqrt","params":[4]}`))
	assert.JSONEq(t, `{"id":1,"result":null,"error":"square root of negative number"}`,
		roundTrip(t, peer, `{"id":1,"method":"example.Sqrt","params":[-2]}`))
	assert.JSONEq(t, `{"id":"abc","result":5,"error":null}`,
		roundTrip(t, peer, `{"id":"abc","method":"example.Add","params":[{"A":2,"B":3}]}`))
}

func TestHostBadRequests(t *testing.T) {
	h := New()
	require.NoError(t, h.RegisterName("example", &Arith{}))
	peer := startHost(t, h)

	resp := roundTrip(t, peer, `{"id":3,"method":"example.Cbrt","params":[8]}`)
	assert.Contains(t, resp, `"id":3`)
	assert.Contains(t, resp, "can't find method")

	resp = roundTrip(t, peer, `{"id":4,"method":"example.Sqrt"}`)
	assert.Contains(t, resp, `"id":4`)
	assert.Contains(t, resp, "no params")

	// Garbage does not stop the host
	resp = roundTrip(t, peer, `not json`)
	assert.Contains(t, resp, `"id":null`)
	assert.Contains(t, resp, "ill-formed")

	assert.JSONEq(t, `{"id":5,"result":3,"error":null}`,
		roundTrip(t, peer, `{"id":5,"method":"example.Sqrt","params":[9]}`))
}

func TestHostMethodMap(t *testing.T) {
	h := New(WithMethodMap(map[string]string{"sqrt": "example.Sqrt"}))
	require.NoError(t, h.RegisterName("example", &Arith{}))
	peer := startHost(t, h)

	assert.JSONEq(t, `{"id":0,"result":2,"error":null}`,
		roundTrip(t, peer, `{"id":0,"method":"sqrt","params":[4]}`))

	resp := roundTrip(t, peer, `{"id":1,"method":"example.Sqrt","params":[4]}`)
	assert.Contains(t, resp, "unknown.example.Sqrt")
}

func TestHostMsgpack(t *testing.T) {
	h := New(WithCodec(codec.CodecTypeMsgpack))
	require.NoError(t, h.RegisterName("example", &Arith{}))
	peer := startHost(t, h)

	c := codec.GetCodec(codec.CodecTypeMsgpack)
	req, err := c.Encode(map[string]any{"id": 7, "method": "example.Sqrt", "params": []any{16.0}})
	require.NoError(t, err)
	require.NoError(t, peer.Send(req))

	frame, err := peer.Recv()
	require.NoError(t, err)
	resp, err := c.DecodeResponse(frame)
	require.NoError(t, err)
	assert.True(t, resp.HasID)
	assert.Equal(t, uint64(7), resp.ID)
	assert.False(t, resp.HasError)

	var result float64
	require.NoError(t, c.Decode(resp.Result, &result))
	assert.Equal(t, 4.0, result)
}
