package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrpc/registry"
)

var testHosts = []registry.HostManifest{
	{Name: "h", Path: "/opt/a", Weight: 10},
	{Name: "h", Path: "/opt/b", Weight: 5},
	{Name: "h", Path: "/opt/c", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var got []string
	for i := 0; i < 4; i++ {
		h, err := b.Pick(testHosts)
		require.NoError(t, err)
		got = append(got, h.Path)
	}
	assert.Equal(t, []string{"/opt/a", "/opt/b", "/opt/c", "/opt/a"}, got)
}

func TestEmptyHosts(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewAffinityBalancer("k")} {
		_, err := b.Pick(nil)
		assert.ErrorIs(t, err, ErrNoHosts, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		h, err := b.Pick(testHosts)
		require.NoError(t, err)
		counts[h.Path]++
	}

	// Weights are 10:5:10
	ratio := float64(counts["/opt/a"]) / float64(counts["/opt/b"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomWithoutWeights(t *testing.T) {
	hosts := []registry.HostManifest{{Path: "/opt/a"}, {Path: "/opt/b"}}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		h, err := (&WeightedRandomBalancer{}).Pick(hosts)
		require.NoError(t, err)
		seen[h.Path] = true
	}
	assert.Len(t, seen, 2)
}

func TestAffinity(t *testing.T) {
	b := NewAffinityBalancer("portrpc@example.org")

	first, err := b.Pick(testHosts)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		h, err := b.Pick(testHosts)
		require.NoError(t, err)
		assert.Equal(t, first.Path, h.Path)
	}

	// Different keys spread over the hosts
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		h, err := NewAffinityBalancer(fmt.Sprintf("key-%d", i)).Pick(testHosts)
		require.NoError(t, err)
		seen[h.Path] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":           "RoundRobin",
		"roundrobin": "RoundRobin",
		"random":     "WeightedRandom",
		"affinity":   "Affinity",
	} {
		b, err := New(name, "k")
		require.NoError(t, err)
		assert.Equal(t, want, b.Name())
	}

	_, err := New("fastest", "")
	assert.Error(t, err)
}
