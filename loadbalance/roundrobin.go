package loadbalance

import (
	"sync/atomic"

	"portrpc/registry"
)

// RoundRobinBalancer starts with the first host and moves to the next one on
// every pick, so a host that keeps dropping the channel is skipped on the
// following reconnect.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(hosts []registry.HostManifest) (*registry.HostManifest, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	index := (b.counter.Add(1) - 1) % uint64(len(hosts))
	return &hosts[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
