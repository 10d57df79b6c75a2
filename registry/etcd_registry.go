package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// KeyPrefix is where host manifests are stored in etcd:
//
//	Key:   /portrpc/hosts/{Name}/{Path}
//	Value: JSON-encoded HostManifest
//
// Registration uses leases: if the registering process dies, the lease
// expires and the host disappears from discovery.
const KeyPrefix = "/portrpc/hosts/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger

	// keepalives outlive the Register call; they stop on Close
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{client: c, logger: logger, ctx: ctx, cancel: cancel}, nil
}

func hostKey(name, path string) string {
	return KeyPrefix + name + "/" + path
}

func hostPrefix(name string) string {
	return KeyPrefix + name + "/"
}

// Register stores m under a lease of ttl seconds and keeps the lease alive
// until Close.
func (r *EtcdRegistry) Register(ctx context.Context, m HostManifest, ttl int64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	val, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}

	if ttl <= 0 {
		_, err = r.client.Put(ctx, hostKey(m.Name, m.Path), string(val))
		return errors.Wrap(err, "put manifest")
	}

	// leaseID is local: one registry may register several hosts concurrently
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "grant lease")
	}
	if _, err := r.client.Put(ctx, hostKey(m.Name, m.Path), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrap(err, "put manifest")
	}

	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return errors.Wrap(err, "keep lease alive")
	}
	go func() {
		// Drain responses so the keepalive channel never fills up
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("host", m.Name), zap.String("path", m.Path))
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, name string, path string) error {
	_, err := r.client.Delete(ctx, hostKey(name, path))
	return errors.Wrap(err, "delete manifest")
}

func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]HostManifest, error) {
	resp, err := r.client.Get(ctx, hostPrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "get manifests")
	}

	hosts := make([]HostManifest, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var m HostManifest
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			r.logger.Warn("skip malformed manifest", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		hosts = append(hosts, m)
	}
	return hosts, nil
}

// Watch re-reads the full list on every change under the name prefix rather
// than applying individual events.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []HostManifest {
	out := make(chan []HostManifest, 1)

	go func() {
		defer close(out)

		send := func() bool {
			hosts, err := r.Discover(ctx, name)
			if err != nil {
				r.logger.Warn("discover hosts", zap.String("host", name), zap.Error(err))
				return ctx.Err() == nil
			}
			select {
			case out <- hosts:
				return true
			case <-ctx.Done():
				return false
			}
		}

		watchChan := r.client.Watch(ctx, hostPrefix(name), clientv3.WithPrefix())
		if !send() {
			return
		}
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				r.logger.Warn("watch hosts", zap.String("host", name), zap.Error(err))
				continue
			}
			if !send() {
				return
			}
		}
	}()

	return out
}

// Close stops lease keepalives and closes the etcd client. Leased entries
// expire after their ttl.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
