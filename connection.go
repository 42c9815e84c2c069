package duplexrpc

import (
	"context"
	"time"

	"duplexrpc/asyncmutex"
	"duplexrpc/codec"
	"duplexrpc/transport"
)

// connection serializes typed Envelope send/receive over a buffered
// transport, using one asyncmutex for the read lane and one for the
// write lane, so concurrent Send calls interleave cleanly and a slow
// reader never blocks a writer on the same connection.
type connection struct {
	buf   *transport.Buffered
	codec codec.Codec

	readMu  *asyncmutex.Mutex
	writeMu *asyncmutex.Mutex
}

func newConnection(conn transport.Conn, c codec.Codec) *connection {
	return &connection{
		buf:     transport.New(conn),
		codec:   c,
		readMu:  asyncmutex.New(),
		writeMu: asyncmutex.New(),
	}
}

// wireKey mirrors Key with exported fields so codecs (which work by
// reflection) can serialize it.
type wireKey struct {
	Named     bool
	Name      string
	Anonymous uint64
}

func toWireKey(k Key) wireKey {
	return wireKey{Named: k.named, Name: k.name, Anonymous: k.anonymous}
}

func (w wireKey) toKey() Key {
	return Key{named: w.Named, name: w.Name, anonymous: w.Anonymous}
}

type wireEnvelope struct {
	Key     wireKey
	Payload []byte
}

// send acquires the write lock, encodes the whole message into a byte
// buffer, writes those bytes through the buffered transport, and
// flushes while still holding the lock — this is what guarantees a
// message's bytes are contiguous on the wire even when multiple
// goroutines call send concurrently.
func (c *connection) send(ctx context.Context, env Envelope) error {
	lock, err := c.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	body, err := c.codec.Encode(wireEnvelope{Key: toWireKey(env.Key), Payload: env.Payload})
	if err != nil {
		return err
	}
	if err := transport.WriteFrame(c.buf, transport.Header{
		Type:      transport.MsgEnvelope,
		CodecType: byte(c.codec.Type()),
		BodyLen:   uint32(len(body)),
	}, body); err != nil {
		return err
	}
	return c.buf.Flush()
}

// sendHeartbeat writes a zero-body heartbeat frame, under the same
// write lock as any other message.
func (c *connection) sendHeartbeat(ctx context.Context) error {
	lock, err := c.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := transport.WriteFrame(c.buf, transport.Header{Type: transport.MsgHeartbeat}, nil); err != nil {
		return err
	}
	return c.buf.Flush()
}

// receive acquires the read lock and decodes one envelope, skipping
// over any heartbeat frames transparently. Concurrent receive calls are
// queued by the read lock — only one receiver runs at a time.
func (c *connection) receive(ctx context.Context) (Envelope, error) {
	lock, err := c.readMu.Lock(ctx)
	if err != nil {
		return Envelope{}, err
	}
	defer lock.Unlock()

	for {
		h, body, err := transport.ReadFrame(c.buf)
		if err != nil {
			return Envelope{}, err
		}
		if h.Type == transport.MsgHeartbeat {
			continue
		}
		var we wireEnvelope
		if err := c.codec.Decode(body, &we); err != nil {
			return Envelope{}, err
		}
		return Envelope{Key: we.Key.toKey(), Payload: we.Payload}, nil
	}
}

func (c *connection) isOpen() bool {
	return c.buf.IsOpen()
}

func (c *connection) close() error {
	err := c.buf.Close()
	c.buf.Cancel()
	return err
}

// heartbeatLoop periodically sends heartbeat frames until ctx is
// cancelled or a send fails (the connection is broken).
func (c *connection) heartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(ctx); err != nil {
				return
			}
		}
	}
}
