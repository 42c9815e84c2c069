// Package discovery's EtcdDiscovery stores peer entries in etcd as a
// distributed phonebook:
//
//	Key:   /duplexrpc/{service}/{addr}
//	Value: JSON-encoded Peer
//
// Registration uses a TTL lease with background KeepAlive: if the
// registering process dies, the lease expires and the entry vanishes on
// its own.
package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdDiscovery implements Discovery on top of etcd v3.
type EtcdDiscovery struct {
	client *clientv3.Client
}

// NewEtcdDiscovery connects to the given etcd endpoints.
func NewEtcdDiscovery(endpoints []string) (*EtcdDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDiscovery{client: c}, nil
}

func peerKey(service, addr string) string {
	return "/duplexrpc/" + service + "/" + addr
}

func peerPrefix(service string) string {
	return "/duplexrpc/" + service + "/"
}

// Register grants a TTL lease, writes the peer under it, and starts a
// background KeepAlive that renews the lease until ctx is cancelled.
// leaseID stays a local variable rather than a struct field: several
// callers can share one EtcdDiscovery safely since nothing is mutated
// on the receiver. Unlike a Register that renews forever in the
// background, tying the KeepAlive loop to ctx lets a Listener stop
// renewing the instant it starts shutting down instead of leaking a
// goroutine that outlives the listener itself — the lease then simply
// expires after ttlSeconds rather than being kept alive indefinitely.
func (d *EtcdDiscovery) Register(ctx context.Context, service string, peer Peer, ttlSeconds int64) error {
	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(peer)
	if err != nil {
		return err
	}

	if _, err := d.client.Put(ctx, peerKey(service, peer.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	keepAlive, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-keepAlive:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Deregister removes a peer's key outright.
func (d *EtcdDiscovery) Deregister(service string, addr string) error {
	_, err := d.client.Delete(context.Background(), peerKey(service, addr))
	return err
}

// Discover lists every peer currently registered under service.
func (d *EtcdDiscovery) Discover(service string) ([]Peer, error) {
	resp, err := d.client.Get(context.Background(), peerPrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var p Peer
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			continue
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// Watch re-fetches and republishes the full peer list on every change
// under service's prefix — simpler than reconstructing incremental diffs
// from individual watch events, at the cost of an extra Get per change.
func (d *EtcdDiscovery) Watch(service string) <-chan []Peer {
	ch := make(chan []Peer, 1)
	go func() {
		watch := d.client.Watch(context.Background(), peerPrefix(service), clientv3.WithPrefix())
		for range watch {
			peers, err := d.Discover(service)
			if err != nil {
				continue
			}
			ch <- peers
		}
	}()
	return ch
}
