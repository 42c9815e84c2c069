// Package discovery lets endpoints find each other by service name
// instead of a hardcoded address. An Endpoint that wants to be dialable
// registers a Peer entry under a TTL lease; one that wants to reach it
// discovers or watches the same name and dials whatever address comes
// back.
package discovery

import "context"

// Peer describes one reachable duplexrpc endpoint.
type Peer struct {
	Addr    string // dial address, e.g. "127.0.0.1:8080"
	Weight  int    // relative weight for balance.WeightedRandom
	Version string // deployment version, for staged rollouts
}

// Discovery is the interface for peer registration and lookup.
// EtcdDiscovery is the production implementation.
type Discovery interface {
	// Register adds peer under service with a TTL lease (seconds) and
	// renews it for as long as ctx stays alive. The entry disappears
	// automatically if the caller stops renewing it, whether by crashing
	// or by cancelling ctx — callers do not need an explicit Deregister
	// on the unclean-shutdown path, and a Listener can tie a peer's
	// registered lifetime to its own Shutdown by cancelling the context
	// it passed in rather than leaving a renewal goroutine running after
	// the listener itself is gone.
	Register(ctx context.Context, service string, peer Peer, ttlSeconds int64) error

	// Deregister removes a peer immediately, for graceful shutdown.
	Deregister(service string, addr string) error

	// Discover returns every peer currently registered under service.
	Discover(service string) ([]Peer, error)

	// Watch emits an updated peer list whenever service's registrations
	// change.
	Watch(service string) <-chan []Peer
}
