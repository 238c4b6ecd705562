package cachestore

import (
	"sync/atomic"

	"github.com/morabah/posalpro-sync/querykey"
)

// RefetchTask is one background revalidation in flight. It exists so
// cancellation is explicit: a subscriber that detaches before the fetch
// completes abandons the task, and an abandoned task never writes to the
// store.
type RefetchTask struct {
	key       querykey.Key
	abandoned atomic.Bool
	done      chan struct{}
}

func newRefetchTask(key querykey.Key) *RefetchTask {
	return &RefetchTask{key: key, done: make(chan struct{})}
}

// Key returns the key being revalidated.
func (t *RefetchTask) Key() querykey.Key { return t.key }

// Abandon marks the task so its result is discarded.
func (t *RefetchTask) Abandon() { t.abandoned.Store(true) }

// Abandoned reports whether the task was abandoned.
func (t *RefetchTask) Abandoned() bool { return t.abandoned.Load() }

// Done is closed when the task finishes, whether or not it wrote.
func (t *RefetchTask) Done() <-chan struct{} { return t.done }
