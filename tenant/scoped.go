package tenant

import (
	"context"

	"github.com/morabah/posalpro-sync/repository"
)

// Scoped wraps a repository so that every call carries the tenant resolved
// from the context, or fails closed with *MissingTenantError when none is
// bound. It is the single chokepoint between the protocol and the entity
// repository; call sites never pass tenant ids by hand.
type Scoped[T repository.Record] struct {
	base repository.Repository[T]
}

// Scope wraps the base repository with mandatory tenant resolution.
func Scope[T repository.Record](base repository.Repository[T]) *Scoped[T] {
	return &Scoped[T]{base: base}
}

// TenantID resolves the session tenant or fails closed.
func (s *Scoped[T]) TenantID(ctx context.Context) (string, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return "", &MissingTenantError{Op: "resolve"}
	}
	return tc.TenantID, nil
}

// Find lists a page under the session tenant.
func (s *Scoped[T]) Find(ctx context.Context, q repository.ListQuery) (repository.Page[T], error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return repository.Page[T]{}, &MissingTenantError{Op: "find"}
	}
	return s.base.Find(ctx, tc.TenantID, q)
}

// FindByID reads a single record under the session tenant.
func (s *Scoped[T]) FindByID(ctx context.Context, id string) (T, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		var zero T
		return zero, &MissingTenantError{Op: "findByID"}
	}
	return s.base.FindByID(ctx, tc.TenantID, id)
}

// Write applies a patch under the session tenant.
func (s *Scoped[T]) Write(ctx context.Context, id string, patch repository.Patch) (T, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		var zero T
		return zero, &MissingTenantError{Op: "write"}
	}
	return s.base.Write(ctx, tc.TenantID, id, patch)
}

// UniqueWithin checks an application-side uniqueness constraint scoped to the
// tenant: the natural key is unique per (tenant, field), never globally.
// excludeID ignores the record being updated.
func (s *Scoped[T]) UniqueWithin(ctx context.Context, field, value, excludeID string) (bool, error) {
	page, err := s.Find(ctx, repository.ListQuery{
		Filters: []repository.Filter{repository.Eq(field, value)},
		Limit:   2,
	})
	if err != nil {
		return false, err
	}
	for _, item := range page.Items {
		if item.RecordID() != excludeID {
			return false, nil
		}
	}
	return true, nil
}
