package duplexrpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"duplexrpc/codec"
)

func pipeConnections() (*connection, *connection) {
	a, b := net.Pipe()
	return newConnection(a, &codec.JSONCodec{}), newConnection(b, &codec.JSONCodec{})
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := pipeConnections()
	defer client.close()
	defer server.close()

	ctx := context.Background()
	want := Envelope{Key: NamedKey("sum"), Payload: []byte(`[1,2]`)}

	go func() {
		if err := client.send(ctx, want); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	got, err := server.receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !got.Key.IsNamed() || got.Key.Name() != "sum" || string(got.Payload) != `[1,2]` {
		t.Fatalf("got %+v", got)
	}
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	client, server := pipeConnections()
	defer client.close()
	defer server.close()

	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env := Envelope{Key: NamedKey("k"), Payload: []byte{byte(i)}}
			if err := client.send(ctx, env); err != nil {
				t.Errorf("send: %v", err)
			}
		}(i)
	}

	seen := make(map[byte]bool)
	for i := 0; i < n; i++ {
		env, err := server.receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if len(env.Payload) != 1 {
			t.Fatalf("corrupted/interleaved payload: %v", env.Payload)
		}
		seen[env.Payload[0]] = true
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct payloads, saw %d", n, len(seen))
	}
}

func TestHeartbeatFramesAreSkippedTransparently(t *testing.T) {
	client, server := pipeConnections()
	defer client.close()
	defer server.close()

	ctx := context.Background()
	go func() {
		_ = client.sendHeartbeat(ctx)
		_ = client.send(ctx, Envelope{Key: NamedKey("real"), Payload: []byte("1")})
	}()

	env, err := server.receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if env.Key.Name() != "real" {
		t.Fatalf("expected to skip the heartbeat and see the real envelope, got %+v", env)
	}
}

func TestReceiveFailsAfterClose(t *testing.T) {
	client, server := pipeConnections()
	defer client.close()

	_ = server.close()
	if _, err := server.receive(context.Background()); err == nil {
		t.Fatal("expected receive to fail once closed")
	}
}

func TestHeartbeatLoopStopsOnContextCancel(t *testing.T) {
	client, server := pipeConnections()
	defer client.close()
	defer server.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.heartbeatLoop(ctx, 5*time.Millisecond)
		close(done)
	}()

	go func() {
		for {
			if _, err := server.receive(context.Background()); err != nil {
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeatLoop did not stop after context cancellation")
	}
}
