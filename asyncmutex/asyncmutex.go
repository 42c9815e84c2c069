// Package asyncmutex provides a cooperative mutual-exclusion primitive
// whose sole state is a single-slot channel holding one token. Unlike
// sync.Mutex, acquiring it can be cancelled by a context, which is what
// a connection needs to unblock a waiter on Close.
//
// Ported from the token-channel mutex in wirecall's async_mutex.hpp:
// lock() awaits receipt of the token and returns a handle that must
// release it exactly once; unlock() puts the token back.
package asyncmutex

import (
	"context"
	"sync/atomic"
)

// Mutex is a channel-backed mutex. The zero value is not usable; use
// New.
type Mutex struct {
	token chan struct{}
}

// New returns an unlocked Mutex.
func New() *Mutex {
	m := &Mutex{token: make(chan struct{}, 1)}
	m.token <- struct{}{}
	return m
}

// Lock blocks the calling goroutine until it acquires the mutex, or
// until ctx is done. FIFO among waiters is provided by Go's channel
// receive queue.
func (m *Mutex) Lock(ctx context.Context) (*Lock, error) {
	select {
	case <-m.token:
		return &Lock{mutex: m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock attempts to acquire the mutex without blocking. ok is false
// if the mutex is currently held.
func (m *Mutex) TryLock() (lock *Lock, ok bool) {
	select {
	case <-m.token:
		return &Lock{mutex: m}, true
	default:
		return nil, false
	}
}

func (m *Mutex) unlock() {
	select {
	case m.token <- struct{}{}:
	default:
		// A token is already present: this is a double-unlock, which
		// the original library treats as a bug and aborts on.
		panic("asyncmutex: unlock of already-unlocked mutex")
	}
}

// Lock is an RAII-style handle returned by Mutex.Lock/TryLock. It must
// be released exactly once, via Unlock or a deferred Unlock.
type Lock struct {
	mutex    *Mutex
	released atomic.Bool
}

// Unlock releases the mutex. Calling Unlock more than once on the same
// handle is a no-op on the second and later calls — only the handle's
// own double-release is guarded; a foreign double-unlock of the mutex
// itself still panics.
func (l *Lock) Unlock() {
	if l == nil {
		return
	}
	if l.released.CompareAndSwap(false, true) {
		l.mutex.unlock()
	}
}
