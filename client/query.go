package client

import (
	"context"
	"sync"

	"github.com/morabah/posalpro-sync/cachestore"
	"github.com/morabah/posalpro-sync/mutation"
	"github.com/morabah/posalpro-sync/querykey"
	"github.com/morabah/posalpro-sync/repository"
)

// Query is the read handle handed to the UI: the served snapshot, its
// staleness, and refetch/subscribe hooks.
type Query[V any] struct {
	Data    V
	IsStale bool

	key   querykey.Key
	store *cachestore.Store
	fetch cachestore.TypedFetchFn[V]
	task  *cachestore.RefetchTask
}

// Key returns the query's cache key.
func (q *Query[V]) Key() querykey.Key { return q.key }

// Refetch bypasses staleness and blocks on a fresh fetch, updating both the
// store and the handle.
func (q *Query[V]) Refetch(ctx context.Context) (V, error) {
	value, err := q.fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	q.store.Set(q.key, value)
	q.Data = value
	q.IsStale = false
	return value, nil
}

// Subscribe registers for snapshot updates on the query's key and returns the
// unsubscribe function. Unsubscribing abandons any revalidation this handle
// started, so a detached component never causes a cache write.
func (q *Query[V]) Subscribe(fn func(V)) func() {
	unsub := q.store.Subscribe(q.key, func(entry cachestore.Entry) {
		if value, ok := entry.Value.(V); ok {
			fn(value)
		}
	})
	return func() {
		if q.task != nil {
			q.task.Abandon()
		}
		unsub()
	}
}

// State is the lifecycle of a Mutation handle as the UI observes it.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	// Terminal states mirror the coordinator's outcome.
	StateConfirmed  State = State(mutation.StatusConfirmed)
	StateUnverified State = State(mutation.StatusUnverified)
	StateFailed     State = State(mutation.StatusFailed)
)

// Mutation is the write handle handed to the UI. A handle runs one mutation
// at a time and exposes its observable state; an unverified outcome is shown
// as saved with a soft "could not confirm" notice, never as an error.
type Mutation[T repository.Record] struct {
	coord *mutation.Coordinator[T]
	mu    sync.Mutex
	state State
}

// Status returns the handle's current state.
func (m *Mutation[T]) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mutate drives one coordinated write and records the terminal state.
func (m *Mutation[T]) Mutate(ctx context.Context, intent mutation.Intent, write mutation.WriteFn[T]) (mutation.Outcome, error) {
	m.mu.Lock()
	m.state = StatePending
	m.mu.Unlock()

	outcome, err := m.coord.Mutate(ctx, intent, write)

	m.mu.Lock()
	m.state = State(outcome.Status)
	m.mu.Unlock()
	return outcome, err
}
