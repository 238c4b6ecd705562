package cachestore

import (
	"context"
	"fmt"

	"github.com/morabah/posalpro-sync/querykey"
)

// TypedFetchFn is the typed form of FetchFn used with the generic wrapper.
type TypedFetchFn[T any] func(ctx context.Context) (T, error)

// GetOrFetch is the type-safe wrapper over Store.GetOrFetch. A non-nil task
// means the returned value is a stale snapshot being revalidated in the
// background.
func GetOrFetch[T any](ctx context.Context, s *Store, key querykey.Key, fetch TypedFetchFn[T]) (T, *RefetchTask, error) {
	entry, task, err := s.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, nil, err
	}
	if entry.Value == nil {
		var zero T
		return zero, task, nil
	}
	value, ok := entry.Value.(T)
	if !ok {
		var zero T
		return zero, nil, fmt.Errorf("%w: key %s holds %T", ErrInvalidResultType, key, entry.Value)
	}
	return value, task, nil
}
