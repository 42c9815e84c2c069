// Package balance provides strategies for picking which discovered peer
// to dial next.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity peers, even rotation
//   - WeightedRandom:  heterogeneous peers (different CPU/memory)
//   - ConsistentHash:  affinity-sensitive calls (same key, same peer)
package balance

import "duplexrpc/discovery"

// Balancer picks one peer from a discovered list. Implementations must
// be goroutine-safe — Pick runs on every DialDiscovered.
type Balancer interface {
	Pick(peers []discovery.Peer) (*discovery.Peer, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
