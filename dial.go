package duplexrpc

import (
	"fmt"
	"net"

	"duplexrpc/balance"
	"duplexrpc/discovery"
)

// DialDiscovered looks up service in d, picks one peer with b, dials it,
// and wraps the resulting connection in a new Endpoint. It supplements
// the core spec with the connection-establishment path the teacher's
// client/server split used to own, adapted to the symmetric model: there
// is still exactly one net.Dial, but what comes back is an Endpoint that
// can both call and serve.
func DialDiscovered(service string, d discovery.Discovery, b balance.Balancer, opts ...Option) (*Endpoint, error) {
	peers, err := d.Discover(service)
	if err != nil {
		return nil, fmt.Errorf("duplexrpc: discover %q: %w", service, err)
	}
	peer, err := b.Pick(peers)
	if err != nil {
		return nil, fmt.Errorf("duplexrpc: pick peer for %q: %w", service, err)
	}

	conn, err := net.Dial("tcp", peer.Addr)
	if err != nil {
		return nil, fmt.Errorf("duplexrpc: dial %s: %w", peer.Addr, err)
	}
	return NewEndpoint(conn, opts...), nil
}
