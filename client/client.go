// Package client exposes the UI cache interface: Query handles for cached
// reads and Mutation handles for coordinated writes.
package client

import (
	"context"

	"github.com/morabah/posalpro-sync/cachestore"
	"github.com/morabah/posalpro-sync/mutation"
	"github.com/morabah/posalpro-sync/querykey"
	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
)

// Client is the UI-facing binding for one entity domain: cached reads with
// stale-while-revalidate and coordinated writes. The UI layer consumes only
// Query and Mutation handles; it never touches the store or repository
// directly.
type Client[T repository.Record] struct {
	domain string
	repo   *tenant.Scoped[T]
	store  *cachestore.Store
	coord  *mutation.Coordinator[T]
}

// New builds the domain client.
func New[T repository.Record](domain string, repo *tenant.Scoped[T], store *cachestore.Store, coord *mutation.Coordinator[T]) *Client[T] {
	return &Client[T]{domain: domain, repo: repo, store: store, coord: coord}
}

// Domain returns the entity domain the client serves.
func (c *Client[T]) Domain() string { return c.domain }

// List serves one page of the domain under the session tenant. The returned
// handle may hold a stale snapshot while a background revalidation runs.
func (c *Client[T]) List(ctx context.Context, q repository.ListQuery) (*Query[repository.Page[T]], error) {
	tenantID, err := c.repo.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	key, err := querykey.List(c.domain, tenantID, q.KeyParams()...)
	if err != nil {
		return nil, err
	}
	// Re-bind the session tenant: background revalidations run detached from
	// the originating context.
	fetch := func(ctx context.Context) (repository.Page[T], error) {
		return c.repo.Find(tenant.WithTenant(ctx, tenantID), q)
	}
	return runQuery(ctx, c.store, key, fetch)
}

// Detail serves a single entity by id.
func (c *Client[T]) Detail(ctx context.Context, id string) (*Query[T], error) {
	tenantID, err := c.repo.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	key := querykey.Detail(c.domain, tenantID, id)
	fetch := func(ctx context.Context) (T, error) {
		return c.repo.FindByID(tenant.WithTenant(ctx, tenantID), id)
	}
	return runQuery(ctx, c.store, key, fetch)
}

// Mutation returns a fresh write handle for the domain.
func (c *Client[T]) Mutation() *Mutation[T] {
	return &Mutation[T]{coord: c.coord, state: StateIdle}
}

// Stats serves a domain aggregate computed by fetch. It is a package-level
// function because Go methods cannot introduce the aggregate's type
// parameter.
func Stats[T repository.Record, A any](ctx context.Context, c *Client[T], fetch cachestore.TypedFetchFn[A]) (*Query[A], error) {
	tenantID, err := c.repo.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	key := querykey.Stats(c.domain, tenantID)
	return runQuery(ctx, c.store, key, fetch)
}

func runQuery[V any](ctx context.Context, store *cachestore.Store, key querykey.Key, fetch cachestore.TypedFetchFn[V]) (*Query[V], error) {
	value, task, err := cachestore.GetOrFetch(ctx, store, key, fetch)
	if err != nil {
		return nil, err
	}
	return &Query[V]{
		Data:    value,
		IsStale: task != nil,
		key:     key,
		store:   store,
		fetch:   fetch,
		task:    task,
	}, nil
}
