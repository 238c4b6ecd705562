package cachestore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/morabah/posalpro-sync/querykey"
)

// ErrInvalidResultType is returned by the typed GetOrFetch wrapper when the
// cached snapshot does not match the requested type.
var ErrInvalidResultType = errors.New("cachestore: cached snapshot has unexpected type")

// FetchFn loads the authoritative snapshot for a key on miss or refetch.
type FetchFn func(ctx context.Context) (any, error)

// Entry is one cached snapshot with its staleness bookkeeping.
// StaleAfter >= FetchedAt always holds.
type Entry struct {
	Key         querykey.Key
	Value       any
	FetchedAt   time.Time
	StaleAfter  time.Time
	Subscribers int
}

// Stale reports whether the entry is past its staleness window at now.
func (e Entry) Stale(now time.Time) bool {
	return !now.Before(e.StaleAfter)
}

type entryState struct {
	mu          sync.Mutex
	populated   bool
	value       any
	fetchedAt   time.Time
	staleAfter  time.Time
	lastTouched time.Time
	nextSubID   int
	subs        map[int]func(Entry)
}

func (st *entryState) snapshot(key querykey.Key) Entry {
	return Entry{
		Key:         key,
		Value:       st.value,
		FetchedAt:   st.fetchedAt,
		StaleAfter:  st.staleAfter,
		Subscribers: len(st.subs),
	}
}

// Store is the client-resident key→snapshot map: staleness timers,
// subscription notification, prefix and predicate invalidation, and
// garbage collection of unobserved entries. It is process-local and always
// constructed explicitly with an injectable clock, never a package singleton,
// so staleness and eviction timing stay deterministic under test.
type Store struct {
	cfg     Config
	clock   clockwork.Clock
	log     zerolog.Logger
	entries *xsync.MapOf[string, *entryState]
	keys    *xsync.MapOf[string, querykey.Key]
	group   singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the clock used for staleness and GC decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger injects the store's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New constructs a Store from the validated config.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		log:     zerolog.Nop(),
		entries: xsync.NewMapOf[string, *entryState](),
		keys:    xsync.NewMapOf[string, querykey.Key](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Len returns the number of live entries.
func (s *Store) Len() int { return s.entries.Size() }

// Get returns the entry for the key, or a miss. A stale entry is still
// returned; callers decide whether to refetch.
func (s *Store) Get(key querykey.Key) (Entry, bool) {
	st, ok := s.entries.Load(key.String())
	if !ok {
		return Entry{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.populated {
		return Entry{}, false
	}
	st.lastTouched = s.clock.Now()
	return st.snapshot(key), true
}

// Set stores a fresh snapshot for the key and notifies subscribers.
func (s *Store) Set(key querykey.Key, value any) {
	st := s.state(key)
	now := s.clock.Now()

	st.mu.Lock()
	st.populated = true
	st.value = value
	st.fetchedAt = now
	st.staleAfter = now.Add(s.cfg.StaleTTL)
	st.lastTouched = now
	entry := st.snapshot(key)
	callbacks := make([]func(Entry), 0, len(st.subs))
	for _, fn := range st.subs {
		callbacks = append(callbacks, fn)
	}
	st.mu.Unlock()

	for _, fn := range callbacks {
		fn(entry)
	}

	s.log.Debug().
		Str("tenantId", key.Tenant()).
		Str("key", key.String()).
		Time("staleAfter", entry.StaleAfter).
		Msg("cache set")

	if s.cfg.MaxEntries > 0 && s.entries.Size() > s.cfg.MaxEntries {
		s.evictOverCap()
	}
}

// InvalidateKey evicts a single entry. Reports whether one existed.
func (s *Store) InvalidateKey(key querykey.Key) bool {
	_, existed := s.entries.LoadAndDelete(key.String())
	s.keys.Delete(key.String())
	if existed {
		s.log.Debug().
			Str("tenantId", key.Tenant()).
			Str("key", key.String()).
			Msg("cache invalidate")
	}
	return existed
}

// InvalidatePrefix evicts every entry whose canonical key starts with the
// prefix. Returns the eviction count.
func (s *Store) InvalidatePrefix(prefix string) int {
	return s.Invalidate(func(k querykey.Key) bool {
		return strings.HasPrefix(k.String(), prefix)
	})
}

// Invalidate evicts every entry matching the predicate over the key tuple.
func (s *Store) Invalidate(pred func(querykey.Key) bool) int {
	evicted := 0
	s.keys.Range(func(canonical string, key querykey.Key) bool {
		if pred(key) {
			if _, existed := s.entries.LoadAndDelete(canonical); existed {
				evicted++
			}
			s.keys.Delete(canonical)
		}
		return true
	})
	if evicted > 0 {
		s.log.Debug().Int("evicted", evicted).Msg("cache invalidate by predicate")
	}
	return evicted
}

// InvalidateAll drops the whole store. Used when a session switches tenants.
func (s *Store) InvalidateAll() int {
	return s.Invalidate(func(querykey.Key) bool { return true })
}

// Subscribe registers a callback for snapshot updates on the key and returns
// the unsubscribe function. An entry with subscribers is never garbage
// collected.
func (s *Store) Subscribe(key querykey.Key, fn func(Entry)) func() {
	st := s.state(key)

	st.mu.Lock()
	id := st.nextSubID
	st.nextSubID++
	st.subs[id] = fn
	st.lastTouched = s.clock.Now()
	st.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.subs, id)
			st.lastTouched = s.clock.Now()
			st.mu.Unlock()
		})
	}
}

// GetOrFetch implements the read path: a fresh hit returns immediately, a
// stale hit is served as-is while a background refetch runs, and a miss
// blocks on the fetch. Concurrent fetches for one key are collapsed into a
// single flight. A non-nil RefetchTask means the served snapshot was stale
// and a revalidation is in flight; callers that detach before it completes
// abandon it.
func (s *Store) GetOrFetch(ctx context.Context, key querykey.Key, fetch FetchFn) (Entry, *RefetchTask, error) {
	if entry, ok := s.Get(key); ok {
		if !entry.Stale(s.clock.Now()) {
			return entry, nil, nil
		}
		task := s.Refetch(key, fetch)
		return entry, task, nil
	}

	value, err, _ := s.group.Do(key.String(), func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return Entry{}, nil, err
	}
	s.Set(key, value)
	entry, _ := s.Get(key)
	return entry, nil, nil
}

// Refetch launches the background revalidation task for a key. The task is
// explicit and abandonable: once abandoned it completes without touching the
// store, so cancelled reads never write cache state.
func (s *Store) Refetch(key querykey.Key, fetch FetchFn) *RefetchTask {
	task := newRefetchTask(key)
	go func() {
		defer close(task.done)
		value, err, _ := s.group.Do(key.String(), func() (any, error) {
			return fetch(context.Background())
		})
		if err != nil {
			s.log.Debug().
				Str("key", key.String()).
				Err(err).
				Msg("background refetch failed")
			return
		}
		if task.Abandoned() {
			return
		}
		s.Set(key, value)
	}()
	return task
}

// Sweep evicts zero-subscriber entries idle past the retention window and
// returns the eviction count. Driven by the injected clock so tests control
// it directly.
func (s *Store) Sweep() int {
	cutoff := s.clock.Now().Add(-s.cfg.GCRetention)
	evicted := 0
	s.entries.Range(func(canonical string, st *entryState) bool {
		st.mu.Lock()
		collectable := len(st.subs) == 0 && st.lastTouched.Before(cutoff)
		st.mu.Unlock()
		if collectable {
			s.entries.Delete(canonical)
			s.keys.Delete(canonical)
			evicted++
		}
		return true
	})
	if evicted > 0 {
		s.log.Debug().Int("evicted", evicted).Msg("cache gc sweep")
	}
	return evicted
}

// RunGC sweeps on an interval until the context ends.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.GCRetention / 2
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// evictOverCap drops zero-subscriber entries ahead of retention when the
// store exceeds its cap.
func (s *Store) evictOverCap() {
	over := s.entries.Size() - s.cfg.MaxEntries
	if over <= 0 {
		return
	}
	s.entries.Range(func(canonical string, st *entryState) bool {
		st.mu.Lock()
		collectable := len(st.subs) == 0
		st.mu.Unlock()
		if collectable {
			s.entries.Delete(canonical)
			s.keys.Delete(canonical)
			over--
		}
		return over > 0
	})
}

func (s *Store) state(key querykey.Key) *entryState {
	st, _ := s.entries.LoadOrCompute(key.String(), func() *entryState {
		return &entryState{subs: make(map[int]func(Entry))}
	})
	s.keys.Store(key.String(), key)
	return st
}
