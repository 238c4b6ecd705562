// Package di wires the protocol stack for one client session: the cache
// store, the verification engine, and per-domain clients sharing a single
// clock and logger.
package di

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/morabah/posalpro-sync/cachestore"
	"github.com/morabah/posalpro-sync/client"
	"github.com/morabah/posalpro-sync/mutation"
	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
	"github.com/morabah/posalpro-sync/verify"
)

// Config aggregates the tunables of the session stack.
type Config struct {
	Store  cachestore.Config
	Verify verify.Config
}

// DefaultConfig returns the production defaults for both layers.
func DefaultConfig() Config {
	return Config{
		Store:  cachestore.DefaultConfig(),
		Verify: verify.DefaultConfig(),
	}
}

// Validate checks both layer configurations.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Verify.Validate()
}

// Container owns the session-wide singletons: one cache store, one clock,
// one logger. Domain clients are built from it with NewDomain.
type Container struct {
	cfg   Config
	store *cachestore.Store
	clock clockwork.Clock
	log   zerolog.Logger
}

// Option configures a Container.
type Option func(*containerOptions)

type containerOptions struct {
	clock clockwork.Clock
	log   zerolog.Logger
}

// WithClock injects the session clock. Tests pass a fake clock to drive
// staleness, GC and verification grace deterministically.
func WithClock(clock clockwork.Clock) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// WithLogger injects the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *containerOptions) { o.log = log }
}

// NewContainer builds the session stack from the validated config.
func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	o := containerOptions{clock: clockwork.NewRealClock(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := cachestore.New(cfg.Store,
		cachestore.WithClock(o.clock),
		cachestore.WithLogger(o.log))
	if err != nil {
		return nil, err
	}

	return &Container{cfg: cfg, store: store, clock: o.clock, log: o.log}, nil
}

// NewContainerWithDefaults builds the stack with default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

// Store returns the session cache store.
func (c *Container) Store() *cachestore.Store { return c.store }

// Clock returns the session clock.
func (c *Container) Clock() clockwork.Clock { return c.clock }

// Config returns a copy of the session configuration.
func (c *Container) Config() Config { return c.cfg }

// BindTenant attaches the session tenant, resolved once from the
// authenticated identity, to the context.
func (c *Container) BindTenant(ctx context.Context, tenantID string) context.Context {
	return tenant.WithTenant(ctx, tenantID)
}

// SwitchTenant rebinds the session to another tenant. The entire cache is
// invalidated: no entry populated under the previous tenant may survive.
func (c *Container) SwitchTenant(ctx context.Context, tenantID string) context.Context {
	c.store.InvalidateAll()
	return tenant.WithTenant(ctx, tenantID)
}

// NewDomain wires a domain client over the base repository: tenant scoping,
// verification, mutation coordination and the shared store. Package-level
// because Go methods cannot introduce the record's type parameter.
func NewDomain[T repository.Record](c *Container, domain string, base repository.Repository[T]) (*client.Client[T], error) {
	scoped := tenant.Scope(base)
	verifier, err := verify.NewEngine(scoped, c.cfg.Verify,
		verify.WithClock(c.clock),
		verify.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	coord := mutation.NewCoordinator(domain, scoped, c.store, verifier,
		mutation.WithLogger(c.log))
	return client.New(domain, scoped, c.store, coord), nil
}
