package loadbalance

import (
	"math/rand/v2"

	"mini-jsonrpc/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to
// their weight. Non-positive weights count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(ep)
	}

	r := rand.IntN(totalWeight)
	for i := range endpoints {
		r -= weightOf(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
