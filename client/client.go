// Package client implements an RPC client that multiplexes concurrent calls
// over one lazily established channel to a peer process, typically a
// WebExtensions native messaging host.
//
// Every call gets an id from a per-client counter and waits in the pending
// set until the response with the same id arrives or the channel fails:
//
//	Call ──► middleware ──► invoke: register id ──► Conn.Send({id, method, params})
//	                                   ▲
//	read loop ── frame ──► HandleMessage ──► pending[id] ──► resolve / reject
//	          ── error ──► HandleDisconnect ──► reject every pending call
//
// A failed channel is not reopened until the next call.
package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"portrpc/codec"
	"portrpc/loadbalance"
	"portrpc/message"
	"portrpc/metrics"
	"portrpc/middleware"
	"portrpc/registry"
	"portrpc/transport"
)

type result struct {
	value message.RawValue
	err   error
}

type pendingCall struct {
	id     uint64
	method string
	conn   *transport.Conn
	done   chan result // buffered; written once by whoever removes the call from the map
}

// Client is safe for concurrent use.
type Client struct {
	app        string
	opts       options
	logger     *zap.Logger
	ownsLogger bool
	codec      codec.Codec
	manager    *transport.Manager
	handler    middleware.HandlerFunc
	metrics    *metrics.Collector

	mu      sync.Mutex // guards everything below; never held while sending
	pending map[uint64]*pendingCall
	nextID  func() uint64
	conn    *transport.Conn // last connection seen, for connect tracing
	closed  bool
}

var _ transport.Handler = (*Client)(nil)

// NewClient creates a client for the native messaging host registered as
// applicationID. Nothing is started until the first call.
func NewClient(applicationID string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		app:     applicationID,
		opts:    o,
		codec:   codec.GetCodec(o.codecType),
		metrics: o.metrics,
		pending: make(map[uint64]*pendingCall),
		nextID:  o.nextID,
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = newLogger(o.debug); err != nil {
			return nil, errors.Wrap(err, "create logger")
		}
		c.ownsLogger = true
	}
	c.logger = logger.Named("client").With(zap.String("app", applicationID))

	if c.nextID == nil {
		c.nextID = counter()
	}

	dialer := o.dialer
	if dialer == nil {
		if applicationID == "" {
			return nil, errors.New("client: application id or dialer is required")
		}
		if o.registry == nil {
			o.registry = registry.NewDirRegistry()
		}
		if o.balancer == nil {
			o.balancer = &loadbalance.RoundRobinBalancer{}
		}
		dialer = &hostDialer{
			app:      applicationID,
			registry: o.registry,
			balancer: o.balancer,
			origin:   o.origin,
			stderr:   o.stderr,
			maxFrame: o.maxFrameSize,
			logger:   c.logger,
			debug:    o.debug,
		}
	}

	transportLogger := logger.Named("transport").With(zap.String("app", applicationID))
	c.manager = transport.NewManager(dialer, c, transportLogger, o.debug)
	c.handler = middleware.Chain(o.middlewares...)(c.invoke)
	return c, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// counter returns ids 0, 1, 2, ... It relies on the client lock.
func counter() func() uint64 {
	var next uint64
	return func() uint64 {
		id := next
		next++
		return id
	}
}

// Call invokes method with arg as its only parameter and decodes the result
// into reply, which may be nil to discard it.
func (c *Client) Call(ctx context.Context, method string, arg any, reply any) error {
	value, err := c.handler(ctx, &message.Invocation{Method: method, Arg: arg})
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return errors.Wrap(c.codec.Decode(value, reply), "decode result")
}

// Go invokes method asynchronously. The returned Call is sent on its Done
// channel once it completes.
func (c *Client) Go(ctx context.Context, method string, arg any) *Call {
	call := &Call{
		Method: method,
		Arg:    arg,
		Done:   make(chan *Call, 1),
		codec:  c.codec,
	}
	go func() {
		call.Result, call.Error = c.handler(ctx, &message.Invocation{Method: method, Arg: arg})
		call.Done <- call
	}()
	return call
}

// Pending returns the number of calls waiting for a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails pending calls with ErrClosed and closes the channel. Later
// calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.rejectAll(ErrClosed)
	if conn := c.manager.Current(); conn != nil {
		c.manager.Retire(conn)
	}
	c.mu.Unlock()

	err := c.manager.Close()
	if c.ownsLogger {
		_ = c.logger.Sync()
	}
	return err
}

// invoke is the innermost handler of the middleware chain.
func (c *Client) invoke(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
	p, err := c.register(ctx, inv.Method)
	if err != nil {
		return nil, err
	}

	frame, err := c.codec.Encode(message.NewRequest(p.id, inv.Method, inv.Arg))
	if err != nil {
		c.fail(p, errors.Wrap(err, "encode request"))
	} else {
		if c.opts.debug {
			c.logger.Debug("post",
				zap.String("conn", p.conn.ID()),
				zap.Uint64("id", p.id),
				zap.String("method", inv.Method),
				zap.ByteString("request", frame))
		}
		if err := p.conn.Send(frame); err != nil {
			c.fail(p, errors.Wrap(err, "send request"))
		}
	}

	select {
	case r := <-p.done:
		return r.value, r.err
	case <-ctx.Done():
		// A response may win the race; then it is returned instead
		c.fail(p, ctx.Err())
		r := <-p.done
		return r.value, r.err
	}
}

// register obtains the connection and adds a pending call for it.
func (c *Client) register(ctx context.Context, method string) (*pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	id := c.nextID()
	if _, dup := c.pending[id]; dup {
		return nil, errors.Wrapf(ErrDuplicateID, "id %d", id)
	}
	p := &pendingCall{
		id:     id,
		method: method,
		conn:   conn,
		done:   make(chan result, 1),
	}
	c.pending[id] = p
	c.metrics.SetPending(len(c.pending))
	return p, nil
}

// connection returns an open connection, dialing if needed. A connection
// that died but whose disconnect has not been processed yet is processed
// here first, so its calls never mix with the new connection's.
// c.mu must be held.
func (c *Client) connection(ctx context.Context) (*transport.Conn, error) {
	if cur := c.manager.Current(); cur != nil && cur.State() != transport.StateOpen {
		c.disconnected(cur, cur.Err())
	}

	conn, err := c.manager.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}
	if conn != c.conn {
		c.conn = conn
		c.metrics.Connected()
		if c.opts.debug {
			c.logger.Debug("connected", zap.String("conn", conn.ID()))
		}
	}
	return conn, nil
}

// fail completes p with err unless someone else removed it first.
func (c *Client) fail(p *pendingCall, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[p.id] != p {
		return
	}
	delete(c.pending, p.id)
	c.metrics.SetPending(len(c.pending))
	p.done <- result{err: err}
}

// rejectAll fails every pending call. c.mu must be held.
func (c *Client) rejectAll(err error) {
	for id, p := range c.pending {
		delete(c.pending, id)
		p.done <- result{err: err}
	}
	c.metrics.SetPending(0)
}

// rejectConn fails the pending calls sent over conn and returns how many.
// Calls already registered on a newer connection are left alone.
// c.mu must be held.
func (c *Client) rejectConn(conn *transport.Conn, err error) int {
	n := 0
	for id, p := range c.pending {
		if p.conn != conn {
			continue
		}
		delete(c.pending, id)
		p.done <- result{err: err}
		n++
	}
	c.metrics.SetPending(len(c.pending))
	return n
}

// disconnected processes the failure of conn once, no matter whether the
// read loop or a new call noticed it first. c.mu must be held.
func (c *Client) disconnected(conn *transport.Conn, cause error) {
	if !c.manager.Retire(conn) {
		return
	}
	c.metrics.Disconnected(cause)
	rejected := c.rejectConn(conn, &DisconnectError{Cause: cause})
	if cause != nil {
		c.logger.Error("channel failed",
			zap.String("conn", conn.ID()),
			zap.Int("rejected", rejected),
			zap.Error(cause))
	} else if c.opts.debug {
		c.logger.Debug("disconnected", zap.String("conn", conn.ID()), zap.Int("rejected", rejected))
	}
}

// HandleDisconnect is called by the read loop of conn when it ends.
func (c *Client) HandleDisconnect(conn *transport.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected(conn, err)
}

// HandleMessage routes one inbound frame to its pending call.
func (c *Client) HandleMessage(conn *transport.Conn, frame []byte) {
	resp, err := c.codec.DecodeResponse(frame)

	c.mu.Lock()
	defer c.mu.Unlock()

	if conn.Retired() {
		if c.opts.debug {
			c.logger.Debug("message after disconnect", zap.String("conn", conn.ID()), zap.ByteString("message", frame))
		}
		return
	}
	if err != nil {
		c.anomaly(metrics.AnomalyUndecodable, conn, frame, err)
		return
	}
	if c.opts.debug {
		c.logger.Debug("received", zap.String("conn", conn.ID()), zap.Stringer("response", resp))
	}
	if !resp.HasID {
		c.anomaly(metrics.AnomalyMissingID, conn, frame, nil)
		return
	}

	p, ok := c.pending[resp.ID]
	if !ok {
		c.anomaly(metrics.AnomalyUnknownID, conn, frame, nil)
		return
	}
	delete(c.pending, resp.ID)
	c.metrics.SetPending(len(c.pending))

	switch {
	case resp.HasResult():
		p.done <- result{value: resp.Result}
	case resp.HasError:
		p.done <- result{err: &RemoteError{Message: resp.Error}}
	default:
		c.anomaly(metrics.AnomalyInvalidResponse, conn, frame, nil, zap.String("method", p.method))
		p.done <- result{err: ErrInvalidResponse}
	}
}

// maxLoggedMessage bounds how much of a bad message goes into the log.
const maxLoggedMessage = 512

func (c *Client) anomaly(kind string, conn *transport.Conn, frame []byte, err error, extra ...zap.Field) {
	c.metrics.Anomaly(kind)
	if len(frame) > maxLoggedMessage {
		frame = frame[:maxLoggedMessage]
	}
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("conn", conn.ID()),
		zap.ByteString("message", frame),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Error("unexpected message", append(fields, extra...)...)
}
