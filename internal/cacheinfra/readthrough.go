// Package cacheinfra provides the server-side read-through layer that sits
// beneath the repository boundary. It memoizes hot detail reads with sturdyc
// and honors the repository bypass flag so verification re-reads always hit
// the authoritative store.
package cacheinfra

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"

	"github.com/morabah/posalpro-sync/repository"
)

// KeySeparator delimits read-through key segments.
const KeySeparator = "::"

// Config holds the sturdyc tuning for a read-through layer.
type Config struct {
	// Capacity is the maximum number of memoized entries.
	Capacity int

	// NumShards is the shard count for concurrent access.
	NumShards int

	// TTL is the entry time-to-live.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted at capacity, 1-100.
	EvictionPercentage int

	// EarlyRefresh enables sturdyc's stampede-preventing early refreshes.
	// Nil disables them.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys that resolved to nothing, so
	// repeated reads of deleted rows skip the database.
	MissingRecordStorage bool

	// EvictionInterval overrides how often expired entries are checked.
	// Zero keeps sturdyc's default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns tuning suited to detail reads over frequently
// mutated domains: short TTL, missing-record storage on.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                30 * time.Second,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 5 * time.Second,
			MaxAsyncRefreshTime: 10 * time.Second,
			SyncRefreshTime:     15 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

func (c Config) toOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// ReadThrough memoizes detail reads for one record type. Keys are
// tenant-prefixed so invalidation never crosses tenants.
type ReadThrough[T any] struct {
	client *sturdyc.Client[T]
}

// NewReadThrough constructs the layer from a validated config.
func NewReadThrough[T any](cfg Config) (*ReadThrough[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[T](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.toOptions()...)
	return &ReadThrough[T]{client: client}, nil
}

// DetailKey builds the memo key for one record.
func DetailKey(tenantID, domain, id string) string {
	return strings.Join([]string{tenantID, domain, id}, KeySeparator)
}

// GetOrFetch serves the memoized value or loads it through fetch. A context
// carrying the repository bypass flag skips the memo, hits the source, and
// refreshes the memo with what it saw.
func (r *ReadThrough[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if repository.BypassFromContext(ctx) {
		value, err := fetch(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		r.client.Set(key, value)
		return value, nil
	}
	return r.client.GetOrFetch(ctx, key, fetch)
}

// Delete drops one memoized entry.
func (r *ReadThrough[T]) Delete(key string) {
	r.client.Delete(key)
}

// DeleteByPrefix drops every memoized entry under the prefix, e.g. all of a
// tenant's records after a bulk change.
func (r *ReadThrough[T]) DeleteByPrefix(prefix string) {
	for _, key := range r.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			r.client.Delete(key)
		}
	}
}
