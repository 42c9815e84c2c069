package duplexrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"duplexrpc/discovery"
)

// Listener accepts incoming connections and turns each into a running
// Endpoint, the symmetric-model replacement for the teacher's
// server.Server accept loop. Graceful Shutdown follows the same shape:
// stop advertising, close the listener, then wait for in-flight
// endpoints to finish (bounded by a timeout).
type Listener struct {
	ln       net.Listener
	opts     []Option
	wg       sync.WaitGroup
	shutdown atomic.Bool

	discovery       discovery.Discovery
	serviceName     string
	advertiseAddr   string
	cancelAdvertise context.CancelFunc
}

// Listen opens a listener on (network, address) for Serve to Accept on.
func Listen(network, address string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, opts: opts}, nil
}

// Addr returns the listener's bound address, useful when address was
// passed as ":0" and the actual port is assigned by the OS.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Advertise registers advertiseAddr under serviceName in d with a TTL
// lease, so peers can find this listener via discovery.Discovery rather
// than a hardcoded address. advertiseAddr is typically the routable
// address corresponding to this listener (":8080" isn't enough — etcd
// needs something a remote peer can actually dial). weight is published
// alongside the address for balance.WeightedRandomBalancer and similar;
// pass 1 for an even split across peers if weighting doesn't matter to
// this service.
//
// The lease's renewal context belongs to the Listener, not to the
// caller: Shutdown cancels it so the lease starts expiring the moment
// this listener stops accepting, instead of a renewal goroutine quietly
// outliving the listener that Advertise was called on.
func (l *Listener) Advertise(d discovery.Discovery, serviceName, advertiseAddr string, weight int, ttlSeconds int64) error {
	ctx, cancel := context.WithCancel(context.Background())
	peer := discovery.Peer{Addr: advertiseAddr, Weight: weight}
	if err := d.Register(ctx, serviceName, peer, ttlSeconds); err != nil {
		cancel()
		return err
	}
	l.discovery = d
	l.serviceName = serviceName
	l.advertiseAddr = advertiseAddr
	l.cancelAdvertise = cancel
	return nil
}

// Serve accepts connections until the listener is closed. Each accepted
// connection becomes a fresh Endpoint; onAccept is called to register
// methods on it before Serve starts draining its receive loop, so no
// envelope can arrive before the endpoint is ready to handle it.
func (l *Listener) Serve(onAccept func(*Endpoint)) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.shutdown.Load() {
				return nil
			}
			return err
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			ep := NewEndpoint(conn, l.opts...)
			onAccept(ep)
			_ = ep.Run(context.Background())
		}()
	}
}

// Shutdown deregisters from discovery (if Advertise was called), stops
// accepting new connections, and waits up to timeout for in-flight
// endpoints' Run loops to return on their own (i.e. their connections to
// close).
func (l *Listener) Shutdown(timeout time.Duration) error {
	if l.discovery != nil {
		l.cancelAdvertise()
		_ = l.discovery.Deregister(l.serviceName, l.advertiseAddr)
	}

	l.shutdown.Store(true)
	l.ln.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("duplexrpc: timed out waiting for endpoints to finish")
	}
}
