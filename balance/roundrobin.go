package balance

import (
	"fmt"
	"sync/atomic"

	"duplexrpc/discovery"
)

// RoundRobinBalancer distributes picks evenly across peers in order,
// using an atomic counter for lock-free, goroutine-safe rotation.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(peers []discovery.Peer) (*discovery.Peer, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("balance: no peers available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(peers))
	return &peers[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
