// Package duplexrpc is a symmetric, bidirectional RPC library over a
// duplex byte stream. Either end of a connection may register methods
// (AddMethod) and call the other end's methods (Call); a method handler
// may itself call back into the peer while it is still running.
//
// The stack is four layers, leaf first: transport.Buffered turns a raw
// net.Conn into byte-at-a-time read/write with batched flushes;
// asyncmutex.Mutex serializes readers and writers of a Connection; a
// pub/sub dispatch table routes incoming (key, payload) envelopes to
// handlers; the RPC endpoint in this package layers request/reply
// semantics and typed argument/return serialization on top of pub/sub
// using a pool of anonymous reply keys.
package duplexrpc

import "fmt"

// Key identifies an envelope on the wire. It is one of two variants:
// a user-chosen named key (a registered method or topic) or an
// endpoint-allocated anonymous key correlating a call with its reply.
// The two variants never compare equal even if their underlying bits
// match.
type Key struct {
	named     bool
	name      string
	anonymous uint64
}

// NamedKey builds a named key from a user-chosen string. Method
// registration and calls both key off this form.
func NamedKey(name string) Key {
	return Key{named: true, name: name}
}

// anonymousKey builds an anonymous key from the reply-key pool.
func anonymousKey(id uint64) Key {
	return Key{named: false, anonymous: id}
}

// IsNamed reports whether this key is the named variant.
func (k Key) IsNamed() bool { return k.named }

// Name returns the key's name; only meaningful when IsNamed is true.
func (k Key) Name() string { return k.name }

// Anonymous returns the key's numeric id; only meaningful when IsNamed
// is false.
func (k Key) Anonymous() uint64 { return k.anonymous }

// String renders the key for diagnostics; used verbatim, backtick-quoted,
// in the default handler's "Invalid method key" error.
func (k Key) String() string {
	if k.named {
		return k.name
	}
	return fmt.Sprintf("#%d", k.anonymous)
}

// Envelope is the unit exchanged over the wire: a key plus an opaque
// payload. Envelopes carry no type information of their own — both ends
// agree on payload shape by convention per key.
type Envelope struct {
	Key     Key
	Payload []byte
}

// The RPC layer (rpc.go) wraps each Envelope's Payload in its own inner
// tuple — an optional reply key plus the user payload on the way out,
// success/result on the way back — using wire-safe mirrors of Key the
// same way wireEnvelope does for Envelope itself.
