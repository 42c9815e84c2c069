package duplexrpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newEndpointPair(t *testing.T) (*Endpoint, *Endpoint) {
	t.Helper()
	a, b := net.Pipe()
	ea := NewEndpoint(a, WithHeartbeat(0))
	eb := NewEndpoint(b, WithHeartbeat(0))

	ctx, cancel := context.WithCancel(context.Background())
	go ea.Run(ctx)
	go eb.Run(ctx)

	t.Cleanup(func() {
		cancel()
		ea.Close()
		eb.Close()
	})
	return ea, eb
}

func TestSimpleCall(t *testing.T) {
	client, server := newEndpointPair(t)

	if err := server.AddMethod("sum", func(a, b int32) int32 { return a + b }); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	got, err := Call[int32](context.Background(), client, "sum", int32(20), int32(22))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestNestedCall(t *testing.T) {
	client, server := newEndpointPair(t)

	// The client also serves "name" so the server's "greeting" handler can
	// call back into it mid-flight.
	if err := client.AddMethod("name", func() string { return "client" }); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if err := server.AddMethod("greeting", func(ctx context.Context, timeOfDay int32) (string, error) {
		periods := []string{"morning", "afternoon", "evening"}
		name, err := Call[string](ctx, server, "name")
		if err != nil {
			return "", err
		}
		return "good " + periods[timeOfDay] + " " + name, nil
	}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	got, err := Call[string](context.Background(), client, "greeting", int32(1))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "good afternoon client" {
		t.Fatalf("got %q", got)
	}
}

func TestFireAndForgetCallback(t *testing.T) {
	client, server := newEndpointPair(t)

	seen := make(chan string, 1)
	if err := server.AddMethod("notify", func(msg string) {
		seen <- msg
	}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	if _, err := Call[IgnoreResult](context.Background(), client, "notify", "hello"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case msg := <-seen:
		if msg != "hello" {
			t.Fatalf("got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("fire-and-forget call was never delivered")
	}
}

func TestRemoteExceptionPropagates(t *testing.T) {
	client, server := newEndpointPair(t)

	if err := server.AddMethod("explode", func() (int32, error) {
		panic("boom")
	}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	_, err := Call[int32](context.Background(), client, "explode")
	if err == nil {
		t.Fatal("expected an error")
	}
	hostErr, ok := err.(*HostError)
	if !ok {
		t.Fatalf("expected *HostError, got %T: %v", err, err)
	}
	if hostErr.Message != "boom" {
		t.Fatalf("want message %q, got %q", "boom", hostErr.Message)
	}
}

func TestUnknownMethodError(t *testing.T) {
	client, _ := newEndpointPair(t)

	_, err := Call[struct{}](context.Background(), client, "invalid")
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "Invalid method key `invalid`"
	if err.(*HostError).Message != want {
		t.Fatalf("want %q, got %q", want, err.(*HostError).Message)
	}
}

func TestArgumentSignatureMismatch(t *testing.T) {
	client, server := newEndpointPair(t)

	if err := server.AddMethod("number", func() uint64 { return 7 }); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	_, err := Call[uint64](context.Background(), client, "number", int32(123))
	if err == nil {
		t.Fatal("expected an error for the extra argument")
	}
	if _, ok := err.(*HostError); !ok {
		t.Fatalf("expected a host-side error, got %T: %v", err, err)
	}
}

func TestReturnSignatureMismatch(t *testing.T) {
	client, server := newEndpointPair(t)

	if err := server.AddMethod("number", func() uint64 { return 7 }); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	_, err := Call[string](context.Background(), client, "number")
	if err == nil {
		t.Fatal("expected a local deserialization error")
	}
	if _, ok := err.(*HostError); ok {
		t.Fatal("expected a local decode error, not a host error")
	}
}

func TestFireAndForgetDoesNotAllocateAnonymousKey(t *testing.T) {
	client, server := newEndpointPair(t)
	if err := server.AddMethod("noop", func() {}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := Call[IgnoreResult](context.Background(), client, "noop"); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	if client.keys.next != 0 {
		t.Fatalf("expected no anonymous keys allocated, next=%d", client.keys.next)
	}
}

func TestCallContextCancelReleasesReplyKey(t *testing.T) {
	client, server := newEndpointPair(t)
	blocked := make(chan struct{})
	server.AddMethod("never", func(ctx context.Context) (int32, error) {
		<-blocked // never unblocks within this test: the call never gets a reply
		return 0, nil
	})

	callCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Call[int32](callCtx, client, "never")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Call did not return after context cancellation")
	}

	client.pendingMu.Lock()
	n := len(client.pending)
	client.pendingMu.Unlock()
	if n != 0 {
		t.Fatalf("expected no leftover pending entries, got %d", n)
	}

	client.keys.mu.Lock()
	_, released := client.keys.free[0]
	client.keys.mu.Unlock()
	if !released {
		t.Fatal("expected the call's reply key 0 to be released back to the pool")
	}
}

func TestCloseCompletesPendingCallsWithErrClosed(t *testing.T) {
	a, b := net.Pipe()
	client := NewEndpoint(a, WithHeartbeat(0))
	server := NewEndpoint(b, WithHeartbeat(0))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	// The server never replies (no method registered, and we won't run
	// client.Run so even the default-handler reply never gets read) — this
	// leaves the call genuinely pending until Close steps in.
	done := make(chan error, 1)
	go func() {
		_, err := Call[int32](ctx, client, "slow")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock the pending call")
	}
}
