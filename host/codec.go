package host

import (
	"net/rpc"
	"sync"

	"github.com/pkg/errors"

	"portrpc/codec"
	"portrpc/transport"
)

var errMissingParams = errors.New("host: request has no params")

type wireRequest struct {
	ID     any    `json:"id" msgpack:"id"`
	Method string `json:"method" msgpack:"method"`
	Params []any  `json:"params" msgpack:"params"`
}

// wireResponse always carries both result and error, one of them null, the
// way net/rpc/jsonrpc does.
type wireResponse struct {
	ID     any `json:"id" msgpack:"id"`
	Result any `json:"result" msgpack:"result"`
	Error  any `json:"error" msgpack:"error"`
}

// serverCodec adapts a framed channel to net/rpc. Request ids may be any
// value; they are echoed back unchanged, keyed by the sequence number net/rpc
// assigns to each request.
type serverCodec struct {
	ch      transport.Channel
	codec   codec.Codec
	methods map[string]string

	params []any // of the request being read

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]any
}

// NewServerCodec serves requests arriving on ch. A non-nil methods map
// translates wire method names to registered "Service.Method" names, since
// Go only exports capitalized methods; unmapped names fail with "can't find
// service".
func NewServerCodec(ch transport.Channel, c codec.Codec, methods map[string]string) rpc.ServerCodec {
	return &serverCodec{
		ch:      ch,
		codec:   c,
		methods: methods,
		pending: make(map[uint64]any),
	}
}

func (c *serverCodec) ReadRequestHeader(r *rpc.Request) error {
	frame, err := c.ch.Recv()
	if err != nil {
		return err
	}

	var req wireRequest
	if err := c.codec.Decode(frame, &req); err != nil {
		// An empty method makes net/rpc answer "ill-formed" and keep serving
		req = wireRequest{}
	}
	c.params = req.Params

	method := req.Method
	if c.methods != nil && method != "" {
		name, ok := c.methods[method]
		if !ok {
			// Not an error here, so the caller sees which method is missing
			name = "unknown." + method
		}
		method = name
	}
	r.ServiceMethod = method

	c.mu.Lock()
	c.seq++
	c.pending[c.seq] = req.ID
	r.Seq = c.seq
	c.mu.Unlock()
	return nil
}

func (c *serverCodec) ReadRequestBody(x any) error {
	if x == nil {
		return nil
	}
	if len(c.params) == 0 {
		return errMissingParams
	}
	// Re-encode the first param so it can be decoded into the method's type
	data, err := c.codec.Encode(c.params[0])
	if err != nil {
		return errors.Wrap(err, "host: encode params")
	}
	return errors.Wrap(c.codec.Decode(data, x), "host: decode params")
}

func (c *serverCodec) WriteResponse(r *rpc.Response, x any) error {
	c.mu.Lock()
	id, ok := c.pending[r.Seq]
	if !ok {
		c.mu.Unlock()
		return errors.New("host: invalid sequence number in response")
	}
	delete(c.pending, r.Seq)
	c.mu.Unlock()

	resp := wireResponse{ID: id}
	if r.Error == "" {
		resp.Result = x
	} else {
		resp.Error = r.Error
	}
	frame, err := c.codec.Encode(resp)
	if err != nil {
		return errors.Wrap(err, "host: encode response")
	}
	return c.ch.Send(frame)
}

func (c *serverCodec) Close() error {
	return c.ch.Close()
}
