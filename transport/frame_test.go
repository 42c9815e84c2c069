package transport

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	writer := New(&fakeConn{r: bytes.NewReader(nil), w: wire})
	if err := WriteFrame(writer, Header{Type: MsgEnvelope, BodyLen: 5}, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reader := New(&fakeConn{r: bytes.NewReader(writer.conn.(*fakeConn).w.Bytes())})
	h, body, err := ReadFrame(reader)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.Type != MsgEnvelope || h.BodyLen != 5 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if string(body) != "hello" {
		t.Fatalf("got body %q", body)
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	bad := append([]byte{0, 0, 0, version, byte(MsgEnvelope), 0}, 0, 0, 0, 0)
	reader := New(&fakeConn{r: bytes.NewReader(bad)})
	if _, _, err := ReadFrame(reader); err == nil {
		t.Fatal("expected error for bad magic number")
	}
}

func TestReadFrameEOFMidHeader(t *testing.T) {
	reader := New(&fakeConn{r: bytes.NewReader([]byte{magic0, magic1})})
	if _, _, err := ReadFrame(reader); err != io.EOF && err != io.ErrUnexpectedEOF {
		t.Fatalf("expected EOF-like error, got %v", err)
	}
}

func TestHeartbeatFrameHasNoBody(t *testing.T) {
	var wire bytes.Buffer
	writer := New(&fakeConn{r: bytes.NewReader(nil), w: wire})
	if err := WriteFrame(writer, Header{Type: MsgHeartbeat, BodyLen: 0}, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_ = writer.Flush()

	reader := New(&fakeConn{r: bytes.NewReader(writer.conn.(*fakeConn).w.Bytes())})
	h, body, err := ReadFrame(reader)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.Type != MsgHeartbeat || len(body) != 0 {
		t.Fatalf("unexpected heartbeat frame: %+v body=%v", h, body)
	}
}
