// Package host runs the peer side of the protocol: a native messaging host
// that reads framed requests on stdin and writes responses on stdout, with
// methods registered on a net/rpc server.
//
// stdout belongs to the protocol, so nothing else may be printed there;
// logs go to stderr, which browsers forward to their console.
package host

import (
	"net/rpc"
	"os"

	"go.uber.org/zap"

	"portrpc/codec"
	"portrpc/transport"
)

type options struct {
	codecType codec.CodecType
	methods   map[string]string
	maxFrame  uint32
	logger    *zap.Logger
}

type Option func(*options)

func WithCodec(t codec.CodecType) Option {
	return func(o *options) {
		o.codecType = t
	}
}

// WithMethodMap translates wire method names, e.g. "hello" → "Addon.Hello".
func WithMethodMap(methods map[string]string) Option {
	return func(o *options) {
		o.methods = methods
	}
}

func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrame = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Host serves registered receivers over one channel at a time.
type Host struct {
	server *rpc.Server
	opts   options
	logger *zap.Logger
}

func New(opts ...Option) *Host {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{server: rpc.NewServer(), opts: o, logger: logger.Named("host")}
}

// RegisterName publishes the exported methods of rcvr as "name.Method".
func (h *Host) RegisterName(name string, rcvr any) error {
	return h.server.RegisterName(name, rcvr)
}

// ServeChannel answers requests from ch until it is closed. Requests are
// handled concurrently; responses go out in completion order.
func (h *Host) ServeChannel(ch transport.Channel) {
	h.logger.Debug("serving", zap.String("codec", h.opts.codecType.String()))
	h.server.ServeCodec(NewServerCodec(ch, codec.GetCodec(h.opts.codecType), h.opts.methods))
	h.logger.Debug("channel closed")
}

// ServeStdio serves the process's stdin and stdout, which is how browsers
// talk to a host.
func (h *Host) ServeStdio() {
	h.ServeChannel(transport.NewStreamChannel(os.Stdin, os.Stdout, h.opts.maxFrame))
}

// Serve registers rcvr under name and serves stdin and stdout until the
// browser closes the pipe.
func Serve(name string, rcvr any, opts ...Option) error {
	h := New(opts...)
	if err := h.RegisterName(name, rcvr); err != nil {
		return err
	}
	h.ServeStdio()
	return nil
}
