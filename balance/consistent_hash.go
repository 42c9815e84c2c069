package balance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"duplexrpc/discovery"
)

// ConsistentHashBalancer maps a call key to a peer using a hash ring —
// the same key always lands on the same peer (until the ring changes),
// giving cache/session affinity for stateful calls.
//
// Each peer gets 100 virtual nodes on the ring; without them a handful
// of peers can cluster together and take an uneven share of traffic.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*discovery.Peer
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes
// per peer.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*discovery.Peer),
	}
}

// Add places a peer onto the ring with its virtual nodes, each hashed
// from "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(peer *discovery.Peer) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", peer.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = peer
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick hashes key and returns the peer at the first ring position >=
// that hash, wrapping around to the first node if the hash exceeds all
// of them.
//
// Pick takes a string key rather than a peer list because consistent
// hashing is key-based; it does not implement Balancer directly.
func (b *ConsistentHashBalancer) Pick(key string) (*discovery.Peer, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("balance: hash ring is empty")
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
