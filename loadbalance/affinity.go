package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"portrpc/registry"
)

const affinityReplicas = 100

// AffinityBalancer maps its key onto a hash ring of hosts, so the same key
// keeps landing on the same host while the host list is unchanged, and only
// keys owned by a removed host move elsewhere.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
//
// Each host gets affinityReplicas virtual nodes hashed from "{path}#{i}".
type AffinityBalancer struct {
	key string
}

func NewAffinityBalancer(key string) *AffinityBalancer {
	return &AffinityBalancer{key: key}
}

// Pick builds the ring from hosts on every call; host lists are short and
// picks only happen on dial.
func (b *AffinityBalancer) Pick(hosts []registry.HostManifest) (*registry.HostManifest, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	ring := make([]uint32, 0, len(hosts)*affinityReplicas)
	nodes := make(map[uint32]int, len(hosts)*affinityReplicas)
	for i := range hosts {
		for r := 0; r < affinityReplicas; r++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", hosts[i].Path, r)))
			if _, taken := nodes[hash]; taken {
				continue
			}
			ring = append(ring, hash)
			nodes[hash] = i
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i] < ring[j] })

	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i] >= hash })
	if idx == len(ring) {
		idx = 0
	}
	return &hosts[nodes[ring[idx]]], nil
}

func (b *AffinityBalancer) Name() string {
	return "Affinity"
}
