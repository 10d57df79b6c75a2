// Package loadbalance picks one host when several manifests are registered
// for the same application.
//
// A client holds one channel at a time, so a pick happens on every dial, not
// on every call. Three strategies are implemented:
//   - RoundRobin:      Fail over to the next host on each reconnect
//   - WeightedRandom:  Prefer hosts by their manifest weight
//   - Affinity:        Always the same host for the same key, e.g. an origin
package loadbalance

import (
	"github.com/pkg/errors"

	"portrpc/registry"
)

// ErrNoHosts is returned by Pick when the list is empty.
var ErrNoHosts = errors.New("loadbalance: no hosts available")

// Balancer selects the host for the next connection.
type Balancer interface {
	// Pick selects one host from the available list. Must be goroutine-safe.
	Pick(hosts []registry.HostManifest) (*registry.HostManifest, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New creates a balancer by name. key is only used by "affinity".
func New(name string, key string) (Balancer, error) {
	switch name {
	case "", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "random", "weighted":
		return &WeightedRandomBalancer{}, nil
	case "affinity":
		return NewAffinityBalancer(key), nil
	}
	return nil, errors.Errorf("loadbalance: unknown strategy %q", name)
}
