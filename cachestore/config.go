package cachestore

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the staleness and garbage-collection tuning for a Store.
type Config struct {
	// StaleTTL is how long a snapshot is served without triggering a
	// background refetch. Tuned in seconds, not minutes: the cached domains
	// mutate frequently and responsiveness wins over hit rate.
	StaleTTL time.Duration

	// GCRetention is how long a zero-subscriber entry survives past its last
	// touch before eviction. Must exceed StaleTTL and stay bounded so memory
	// growth is capped.
	GCRetention time.Duration

	// MaxEntries caps the store. When exceeded, zero-subscriber entries are
	// evicted ahead of their retention window.
	MaxEntries int
}

// DefaultConfig returns the tuning used by the dashboard sessions.
func DefaultConfig() Config {
	return Config{
		StaleTTL:    5 * time.Second,
		GCRetention: 60 * time.Second,
		MaxEntries:  10000,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.StaleTTL,
			validation.Required,
			validation.Min(100*time.Millisecond)),
		validation.Field(&c.GCRetention,
			validation.Required,
			validation.By(c.retentionExceedsTTL)),
		validation.Field(&c.MaxEntries, validation.Min(1)),
	)
}

func (c Config) retentionExceedsTTL(any) error {
	if c.GCRetention <= c.StaleTTL {
		return errors.New("must be greater than StaleTTL")
	}
	if c.GCRetention > time.Hour {
		return errors.New("must be bounded to at most an hour")
	}
	return nil
}
