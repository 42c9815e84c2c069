package balance

import (
	"fmt"
	"math/rand"

	"duplexrpc/discovery"
)

// WeightedRandomBalancer picks peers probabilistically by weight: a peer
// with weight 10 gets roughly 2x the traffic of one with weight 5.
//
// Algorithm:
//  1. Sum all weights → totalWeight
//  2. Generate random number r in [0, totalWeight)
//  3. Subtract each peer's weight from r until r < 0
//  4. The peer that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(peers []discovery.Peer) (*discovery.Peer, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("balance: no peers available")
	}

	totalWeight := 0
	for _, p := range peers {
		totalWeight += p.Weight
	}
	if totalWeight <= 0 {
		return &peers[rand.Intn(len(peers))], nil
	}

	r := rand.Intn(totalWeight)
	for _, p := range peers {
		r -= p.Weight
		if r < 0 {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("balance: unexpected fallthrough in weighted selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
