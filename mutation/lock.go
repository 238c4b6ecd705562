package mutation

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedLock serializes work per resource key. It is a cooperative queue, not
// a preemptive mutex: a second caller for the same key waits its turn, and a
// waiter can abandon the queue when its context ends. Handles live for the
// coordinator's lifetime; resource cardinality within one session is bounded,
// so they are never reclaimed.
type keyedLock struct {
	handles *xsync.MapOf[string, *lockHandle]
}

type lockHandle struct {
	ch      chan struct{}
	waiters atomic.Int32
}

func newKeyedLock() *keyedLock {
	return &keyedLock{handles: xsync.NewMapOf[string, *lockHandle]()}
}

// Waiters reports how many callers currently hold or wait on the key.
func (l *keyedLock) Waiters(key string) int {
	h, ok := l.handles.Load(key)
	if !ok {
		return 0
	}
	return int(h.waiters.Load())
}

// Acquire blocks until the key's lock is held or the context ends. The
// returned release function must be called exactly once.
func (l *keyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	h, _ := l.handles.LoadOrCompute(key, func() *lockHandle {
		return &lockHandle{ch: make(chan struct{}, 1)}
	})
	h.waiters.Add(1)

	select {
	case h.ch <- struct{}{}:
		return func() {
			<-h.ch
			h.waiters.Add(-1)
		}, nil
	case <-ctx.Done():
		h.waiters.Add(-1)
		return nil, ctx.Err()
	}
}
