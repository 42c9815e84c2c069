package duplexrpc

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"duplexrpc/codec"
	"duplexrpc/middleware"
	"duplexrpc/transport"
)

// IgnoreResult is the sentinel return type for Call that means "don't
// wait for a reply" — no anonymous key is allocated and the call
// returns as soon as the envelope is written.
type IgnoreResult struct{}

var ignoreResultType = reflect.TypeOf(IgnoreResult{})
var unitType = reflect.TypeOf(struct{}{})

// wireBody and wireReply are the inner tuples carried in an Envelope's
// Payload (optional reply key plus user payload; success plus result),
// with exported fields and the reply key held as a wireKey, the same
// trick connection.go uses for wireEnvelope: Key has unexported fields
// so a reflection-based codec can't serialize it directly.
type wireBody struct {
	ReplyKey *wireKey
	Payload  []byte
}

type wireReply struct {
	Success bool
	Result  []byte
}

// keyPool hands out anonymous reply keys: smallest free id, or the next
// unused one if none has been released yet, the same allocate/release
// discipline as wirecall::ipc_endpoint's id pool.
type keyPool struct {
	mu   sync.Mutex
	next uint64
	free map[uint64]struct{}
}

func (p *keyPool) allocate() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) > 0 {
		var min uint64
		first := true
		for id := range p.free {
			if first || id < min {
				min, first = id, false
			}
		}
		delete(p.free, min)
		return min
	}
	id := p.next
	p.next++
	return id
}

func (p *keyPool) release(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == nil {
		p.free = make(map[uint64]struct{})
	}
	p.free[id] = struct{}{}
}

type pendingReply struct {
	success bool
	result  []byte
	closed  bool
}

// Endpoint is a symmetric RPC peer: it both serves methods registered
// with AddMethod and issues calls with Call, over the same duplex
// connection, at the same time — there is no client/server distinction
// at this layer.
type Endpoint struct {
	conn  *connection
	ps    *pubsub
	codec codec.Codec
	keys  keyPool

	methodsMu sync.Mutex
	methods   map[string]*methodAdapter

	pendingMu sync.Mutex
	pending   map[uint64]chan pendingReply

	heartbeatCancel context.CancelFunc

	chain middleware.Middleware
}

// Use installs a middleware chain in front of every locally-served
// method. A later call to Use replaces the previous chain; it applies
// to methods registered before it as well as after, since dispatch
// always consults the current chain at call time.
func (ep *Endpoint) Use(mw ...middleware.Middleware) {
	ep.chain = middleware.Chain(mw...)
}

type options struct {
	codec             codec.Codec
	heartbeatInterval time.Duration
}

// Option configures a new Endpoint.
type Option func(*options)

// WithCodec selects the wire codec (default JSON).
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithHeartbeat sets the heartbeat interval; zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeatInterval = d }
}

// NewEndpoint wraps conn (typically a net.Conn) in a fresh Endpoint.
// The heartbeat loop starts immediately; Run must be called separately
// to start draining incoming envelopes.
func NewEndpoint(conn transport.Conn, opts ...Option) *Endpoint {
	o := options{
		codec:             &codec.JSONCodec{},
		heartbeatInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := newConnection(conn, o.codec)
	ep := &Endpoint{
		conn:    c,
		ps:      newPubsub(c),
		codec:   o.codec,
		methods: make(map[string]*methodAdapter),
		pending: make(map[uint64]chan pendingReply),
	}
	ep.ps.subscribeDefault(ep.handleUnknownMethod)

	hbCtx, cancel := context.WithCancel(context.Background())
	ep.heartbeatCancel = cancel
	if o.heartbeatInterval > 0 {
		go c.heartbeatLoop(hbCtx, o.heartbeatInterval)
	}
	return ep
}

// Run drives the receive loop until the connection closes (a receive
// fails). ctx is handed to every dispatched handler and bounds the wait
// for the connection's read lock; cancelling it does not interrupt a
// read already in progress, so Run does not return on cancellation
// alone. It must be running for either AddMethod handlers or
// outstanding Call replies to ever be delivered.
func (ep *Endpoint) Run(ctx context.Context) error {
	return ep.ps.run(ctx)
}

// IsOpen reports whether the underlying connection is still usable.
func (ep *Endpoint) IsOpen() bool {
	return ep.ps.isOpen()
}

// Close shuts down the connection and completes every outstanding Call
// with ErrClosed rather than leaving its caller blocked forever.
func (ep *Endpoint) Close() error {
	ep.heartbeatCancel()
	err := ep.ps.close()

	ep.pendingMu.Lock()
	pending := ep.pending
	ep.pending = make(map[uint64]chan pendingReply)
	ep.pendingMu.Unlock()

	for id, ch := range pending {
		ep.ps.unsubscribe(anonymousKey(id))
		ep.keys.release(id)
		select {
		case ch <- pendingReply{closed: true}:
		default:
		}
	}
	return err
}

// AddMethod registers fn under name. fn's signature is reflected once
// at registration time (see method.go); it may optionally take a
// leading context.Context, any number of further arguments, and return
// (result, error), just result, just error, or nothing.
func (ep *Endpoint) AddMethod(name string, fn any) error {
	adapter, err := newMethodAdapter(fn)
	if err != nil {
		return err
	}

	ep.methodsMu.Lock()
	ep.methods[name] = adapter
	ep.methodsMu.Unlock()

	ep.ps.subscribe(NamedKey(name), func(ctx context.Context, payload []byte) {
		ep.serveMethod(ctx, name, adapter, payload)
	})
	return nil
}

// RemoveMethod unregisters name; a no-op if it was never registered.
func (ep *Endpoint) RemoveMethod(name string) {
	ep.methodsMu.Lock()
	delete(ep.methods, name)
	ep.methodsMu.Unlock()
	ep.ps.unsubscribe(NamedKey(name))
}

func (ep *Endpoint) serveMethod(ctx context.Context, name string, adapter *methodAdapter, payload []byte) {
	var wb wireBody
	if err := ep.codec.Decode(payload, &wb); err != nil {
		// Malformed request envelope — no reply key is recoverable from
		// it, so there's nothing to answer back to.
		return
	}

	dispatch := middleware.HandlerFunc(func(ctx context.Context, method string, argPayload []byte) ([]byte, error) {
		return adapter.invoke(ctx, ep.codec, argPayload)
	})
	if ep.chain != nil {
		dispatch = ep.chain(dispatch)
	}
	resultBytes, callErr := dispatch(ctx, name, wb.Payload)

	rep := wireReply{Success: callErr == nil}
	if callErr != nil {
		rep.Result = []byte(callErr.Error())
	} else {
		rep.Result = resultBytes
	}

	if wb.ReplyKey == nil {
		return
	}
	replyPayload, err := ep.codec.Encode(rep)
	if err != nil {
		return
	}
	_ = ep.ps.publish(ctx, wb.ReplyKey.toKey(), replyPayload)
}

// handleUnknownMethod answers a call to an unregistered name with a
// failure reply carrying a backtick-quoted "Invalid method key" message.
func (ep *Endpoint) handleUnknownMethod(ctx context.Context, key Key, payload []byte) {
	var wb wireBody
	if err := ep.codec.Decode(payload, &wb); err != nil {
		return
	}
	if wb.ReplyKey == nil {
		return
	}
	rep := wireReply{
		Success: false,
		Result:  []byte(fmt.Sprintf("Invalid method key `%s`", key.String())),
	}
	replyPayload, err := ep.codec.Encode(rep)
	if err != nil {
		return
	}
	_ = ep.ps.publish(ctx, wb.ReplyKey.toKey(), replyPayload)
}

func (ep *Endpoint) registerPending(id uint64, ch chan pendingReply) {
	ep.pendingMu.Lock()
	ep.pending[id] = ch
	ep.pendingMu.Unlock()
}

// claimPending removes id's pending channel, if it is still registered,
// and returns it. Reply delivery, the ctx.Done() timeout path, and Close
// all race to tear down the same call's subscription and id. The first
// two go through claimPending; Close takes every entry out at once by
// swapping the whole map under the same pendingMu. Removal from the map
// under that one lock is the single point of arbitration, so whichever
// of them removes the entry is the only one that will ever unsubscribe
// or release id, and the others find it gone and do nothing.
func (ep *Endpoint) claimPending(id uint64) (chan pendingReply, bool) {
	ep.pendingMu.Lock()
	ch, ok := ep.pending[id]
	if ok {
		delete(ep.pending, id)
	}
	ep.pendingMu.Unlock()
	return ch, ok
}

// Call invokes the peer's method named name with args, and waits for
// its reply. R's zero value also selects calling convention: IgnoreResult
// means fire-and-forget (no reply key, Call returns as soon as the
// envelope is sent); struct{} ("unit") still waits for a reply but
// expects it to carry no result bytes.
func Call[R any](ctx context.Context, ep *Endpoint, name string, args ...any) (R, error) {
	var zero R

	payload, err := encodeArgs(ep.codec, args)
	if err != nil {
		return zero, err
	}

	if reflect.TypeOf(zero) == ignoreResultType {
		wb := wireBody{Payload: payload}
		body, err := ep.codec.Encode(wb)
		if err != nil {
			return zero, err
		}
		return zero, ep.ps.publish(ctx, NamedKey(name), body)
	}

	id := ep.keys.allocate()
	replyKey := anonymousKey(id)
	ch := make(chan pendingReply, 1)
	ep.registerPending(id, ch)

	ep.ps.subscribe(replyKey, func(ctx context.Context, payload []byte) {
		ch, ok := ep.claimPending(id)
		if !ok {
			// Already claimed by the ctx.Done() timeout path or by
			// Close: their cleanup already ran, so this reply is
			// simply too late to deliver.
			return
		}
		var wr wireReply
		if err := ep.codec.Decode(payload, &wr); err != nil {
			ch <- pendingReply{success: false, result: []byte(err.Error())}
		} else {
			ch <- pendingReply{success: wr.Success, result: wr.Result}
		}
		ep.ps.unsubscribe(replyKey)
		ep.keys.release(id)
	})

	// abandon gives up on this call's reply: it only unsubscribes and
	// releases id if this call still owns the pending entry, so it is
	// safe to call even when a reply or a concurrent Close has already
	// claimed and torn it down.
	abandon := func() {
		if _, ok := ep.claimPending(id); ok {
			ep.ps.unsubscribe(replyKey)
			ep.keys.release(id)
		}
	}

	wk := toWireKey(replyKey)
	wb := wireBody{ReplyKey: &wk, Payload: payload}
	body, err := ep.codec.Encode(wb)
	if err != nil {
		abandon()
		return zero, err
	}

	if err := ep.ps.publish(ctx, NamedKey(name), body); err != nil {
		abandon()
		return zero, err
	}

	select {
	case pr := <-ch:
		if pr.closed {
			return zero, ErrClosed
		}
		if !pr.success {
			return zero, &HostError{Message: string(pr.result)}
		}
		if reflect.TypeOf(zero) == unitType {
			if len(pr.result) != 0 {
				return zero, fmt.Errorf("duplexrpc: unit-returning call got non-empty result")
			}
			return zero, nil
		}
		var out R
		if err := ep.codec.Decode(pr.result, &out); err != nil {
			return zero, err
		}
		return out, nil
	case <-ctx.Done():
		abandon()
		return zero, ctx.Err()
	}
}
