// Frame header on top of Buffered: it solves the sticky-packet problem
// the same way mini-RPC's protocol package did, by prefixing every
// message with a fixed-size header carrying a body length, but trimmed
// down from that package's 14-byte header. There is no sequence number
// here — correlating a request with its reply is the RPC layer's job
// (an anonymous reply Key), not the framing layer's.
package transport

import (
	"encoding/binary"
	"fmt"
)

// Magic bytes identify a duplexrpc frame, rejecting connections from an
// unrelated protocol speaking the same port.
const (
	magic0 byte = 0x64 // 'd'
	magic1 byte = 0x72 // 'r'
	magic2 byte = 0x70 // 'p'
	version     = 0x01

	// HeaderSize is magic(3) + version(1) + msgType(1) + codec(1) + bodyLen(4).
	HeaderSize = 10
)

// MsgType distinguishes an ordinary envelope frame from a heartbeat
// probe, which carries no body and exists purely to detect a dead
// connection sooner than a read timeout would.
type MsgType byte

const (
	MsgEnvelope  MsgType = 0
	MsgHeartbeat MsgType = 1
)

// Header is the fixed-size frame header preceding every body on the
// wire. CodecType is carried so a receiver always knows which codec to
// use for decoding, even if that never changes in practice for a given
// connection.
type Header struct {
	Type      MsgType
	CodecType byte
	BodyLen   uint32
}

// WriteFrame writes a complete frame (header + body) through w. The
// caller must hold the connection's write lock so concurrent frames
// don't interleave.
func WriteFrame(w *Buffered, h Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1], buf[2] = magic0, magic1, magic2
	buf[3] = version
	buf[4] = byte(h.Type)
	buf[5] = h.CodecType
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one complete frame (header + body) from r, validating
// the magic number and version.
func ReadFrame(r *Buffered) (Header, []byte, error) {
	buf := make([]byte, HeaderSize)
	for i := range buf {
		c, err := r.ReadByte()
		if err != nil {
			return Header{}, nil, err
		}
		buf[i] = c
	}

	if buf[0] != magic0 || buf[1] != magic1 || buf[2] != magic2 {
		return Header{}, nil, fmt.Errorf("transport: invalid magic number %x", buf[0:3])
	}
	if buf[3] != version {
		return Header{}, nil, fmt.Errorf("transport: unsupported frame version %d", buf[3])
	}

	h := Header{
		Type:      MsgType(buf[4]),
		CodecType: buf[5],
		BodyLen:   binary.BigEndian.Uint32(buf[6:10]),
	}

	body := make([]byte, h.BodyLen)
	for i := range body {
		c, err := r.ReadByte()
		if err != nil {
			return Header{}, nil, err
		}
		body[i] = c
	}

	return h, body, nil
}
