package client

import (
	"context"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"portrpc/loadbalance"
	"portrpc/registry"
	"portrpc/transport"
)

// hostDialer starts the native messaging host registered for an application,
// the way a browser does: the executable from its manifest, run in its own
// directory, with the manifest path and caller origin as arguments.
type hostDialer struct {
	app      string
	registry registry.Registry
	balancer loadbalance.Balancer
	origin   string
	stderr   io.Writer
	maxFrame uint32
	logger   *zap.Logger
	debug    bool
}

func (d *hostDialer) Dial(ctx context.Context) (transport.Channel, error) {
	hosts, err := d.registry.Discover(ctx, d.app)
	if err != nil {
		return nil, errors.Wrapf(err, "discover host %s", d.app)
	}
	host, err := d.balancer.Pick(hosts)
	if err != nil {
		return nil, errors.Wrapf(transport.ErrUnavailable, "host %s: %v", d.app, err)
	}

	origin := d.origin
	if origin == "" {
		origin = defaultOrigin(host)
	}
	if d.debug {
		d.logger.Debug("starting host",
			zap.String("path", host.Path),
			zap.String("manifest", host.ManifestPath),
			zap.String("balancer", d.balancer.Name()))
	}

	dialer := &transport.CommandDialer{
		Path:         host.Path,
		Args:         host.Args(origin),
		Dir:          filepath.Dir(host.Path),
		Stderr:       d.stderr,
		MaxFrameSize: d.maxFrame,
	}
	return dialer.Dial(ctx)
}

// defaultOrigin is the first caller the manifest allows.
func defaultOrigin(m *registry.HostManifest) string {
	if len(m.AllowedExtensions) > 0 {
		return m.AllowedExtensions[0]
	}
	if len(m.AllowedOrigins) > 0 {
		return m.AllowedOrigins[0]
	}
	return ""
}
