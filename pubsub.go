package duplexrpc

import (
	"context"
	"log"
	"sync"
)

// handlerFunc is the untyped adapter a subscription stores: bytes in,
// nothing out (errors, if any, are the handler's own business — the RPC
// layer above turns them into reply envelopes; pub/sub itself has no
// reply concept).
type handlerFunc func(ctx context.Context, payload []byte)

// defaultHandlerFunc additionally receives the unmatched key.
type defaultHandlerFunc func(ctx context.Context, key Key, payload []byte)

// pubsub routes incoming (key, payload) envelopes to registered
// handlers and runs the receive loop that drives that routing. The
// subscription table is guarded by a plain sync.Mutex: unlike
// the connection's read/write lanes, table lookups never suspend on I/O,
// so there's nothing for a cooperative channel-mutex to buy here — the
// invariant that matters (never hold the lock across handler
// invocation) holds regardless of which mutex flavor guards the map.
type pubsub struct {
	conn *connection

	tableMu  sync.Mutex
	handlers map[Key]handlerFunc
	fallback defaultHandlerFunc
}

func newPubsub(conn *connection) *pubsub {
	return &pubsub{
		conn:     conn,
		handlers: make(map[Key]handlerFunc),
	}
}

// subscribe registers or replaces the handler for key. Replacement is
// atomic from the dispatcher's perspective: a lookup either sees the
// old handler run to completion or the new one, never a half-updated
// entry.
func (p *pubsub) subscribe(key Key, h handlerFunc) {
	p.tableMu.Lock()
	p.handlers[key] = h
	p.tableMu.Unlock()
}

// unsubscribe removes key's handler; a no-op if absent.
func (p *pubsub) unsubscribe(key Key) {
	p.tableMu.Lock()
	delete(p.handlers, key)
	p.tableMu.Unlock()
}

// subscribeDefault installs the single catch-all handler invoked when
// an envelope's key matches no explicit entry. Only one default handler
// exists at a time; a later call replaces the former.
func (p *pubsub) subscribeDefault(h defaultHandlerFunc) {
	p.tableMu.Lock()
	p.fallback = h
	p.tableMu.Unlock()
}

// publish serializes an already-encoded payload under key and sends it.
func (p *pubsub) publish(ctx context.Context, key Key, payload []byte) error {
	return p.conn.send(ctx, Envelope{Key: key, Payload: payload})
}

// run is the main loop: while the connection is open, receive one
// envelope, then spawn an independent goroutine to dispatch it. It
// returns when the connection is no longer open (receive fails).
//
// Dispatching on a freshly spawned goroutine, rather than inline, is
// what lets a handler issue a nested call back to the peer and still
// have the receive loop keep pumping incoming frames while that nested
// call is in flight.
func (p *pubsub) run(ctx context.Context) error {
	for p.conn.isOpen() {
		env, err := p.conn.receive(ctx)
		if err != nil {
			return err
		}
		go p.dispatch(ctx, env)
	}
	return nil
}

// dispatch looks up env.Key under the table lock, copies the handler
// reference out, releases the lock, then invokes the handler outside
// it. Copying out before invoking is what lets a handler freely
// subscribe or unsubscribe itself without deadlocking on its own lock.
func (p *pubsub) dispatch(ctx context.Context, env Envelope) {
	defer func() {
		// A handler panic is a codec mismatch or a user-handler bug; it
		// must not take down the receive loop.
		if r := recover(); r != nil {
			log.Printf("duplexrpc: handler for key %q panicked: %v", env.Key, r)
		}
	}()

	p.tableMu.Lock()
	h, ok := p.handlers[env.Key]
	fallback := p.fallback
	p.tableMu.Unlock()

	if ok {
		h(ctx, env.Payload)
		return
	}
	if fallback != nil {
		fallback(ctx, env.Key, env.Payload)
	}
}

func (p *pubsub) isOpen() bool {
	return p.conn.isOpen()
}

func (p *pubsub) close() error {
	return p.conn.close()
}
