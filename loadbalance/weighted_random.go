package loadbalance

import (
	"math/rand"

	"portrpc/registry"
)

// WeightedRandomBalancer picks hosts with probability proportional to their
// weight. Manifests without a weight count as 1.
type WeightedRandomBalancer struct{}

func weightOf(h *registry.HostManifest) int {
	if h.Weight <= 0 {
		return 1
	}
	return h.Weight
}

func (b *WeightedRandomBalancer) Pick(hosts []registry.HostManifest) (*registry.HostManifest, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	total := 0
	for i := range hosts {
		total += weightOf(&hosts[i])
	}

	r := rand.Intn(total)
	for i := range hosts {
		r -= weightOf(&hosts[i])
		if r < 0 {
			return &hosts[i], nil
		}
	}
	return &hosts[len(hosts)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
