package client

import (
	"io"

	"go.uber.org/zap"

	"portrpc/codec"
	"portrpc/loadbalance"
	"portrpc/metrics"
	"portrpc/middleware"
	"portrpc/registry"
	"portrpc/transport"
)

type options struct {
	debug        bool
	nextID       func() uint64
	logger       *zap.Logger
	codecType    codec.CodecType
	dialer       transport.Dialer
	registry     registry.Registry
	balancer     loadbalance.Balancer
	origin       string
	stderr       io.Writer
	maxFrameSize uint32
	middlewares  []middleware.Middleware
	metrics      *metrics.Collector
}

type Option func(*options)

// WithDebug traces every request, response and connection change at debug
// level.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithIDGenerator replaces the default counter starting at 0. The generator
// is called under the client lock, so it needs no locking of its own.
func WithIDGenerator(next func() uint64) Option {
	return func(o *options) {
		o.nextID = next
	}
}

// WithLogger sets the logger. The default is a zap production logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithCodec(t codec.CodecType) Option {
	return func(o *options) {
		o.codecType = t
	}
}

// WithDialer connects through d instead of looking up the host manifest of
// the application.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithRegistry sets where host manifests are looked up. The default is the
// browsers' manifest directories.
func WithRegistry(r registry.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithBalancer sets how a host is picked when several are registered.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *options) {
		o.balancer = b
	}
}

// WithOrigin is passed to the host the way a browser passes the caller's
// extension id.
func WithOrigin(origin string) Option {
	return func(o *options) {
		o.origin = origin
	}
}

// WithStderr receives the host's stderr; the default is os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithMiddleware wraps every call; the first middleware is the outermost.
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, m...)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}
