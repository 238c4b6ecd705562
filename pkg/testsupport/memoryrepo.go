package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/morabah/posalpro-sync/cursor"
	"github.com/morabah/posalpro-sync/repository"
)

// ApplyFn folds a patch into a record. present reports whether a record
// already exists for the id; create patches see present == false.
type ApplyFn[T repository.Record] func(current T, present bool, tenantID, id string, patch repository.Patch) (T, error)

// MemoryRepository is a tenant-partitioned in-memory Repository and
// RowSource with deterministic (sort, id) ordering. It tracks per-method
// call counts and supports write fault injection, which is what the protocol
// tests need to observe caching and single-flight behavior.
type MemoryRepository[T repository.Record] struct {
	mu    sync.RWMutex
	rows  map[string]map[string]T
	apply ApplyFn[T]
	calls map[string]int

	writeErr error

	// BeforeWrite, when set, runs inside Write before the patch is applied.
	// Tests use it to detect overlapping writes.
	BeforeWrite func(id string)
}

// NewMemoryRepository builds the repository with the given patch fold.
func NewMemoryRepository[T repository.Record](apply ApplyFn[T]) *MemoryRepository[T] {
	return &MemoryRepository[T]{
		rows:  make(map[string]map[string]T),
		apply: apply,
		calls: make(map[string]int),
	}
}

// Seed inserts records directly, bypassing the write path.
func (m *MemoryRepository[T]) Seed(tenantID string, records ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.rows[tenantID]
	if bucket == nil {
		bucket = make(map[string]T)
		m.rows[tenantID] = bucket
	}
	for _, rec := range records {
		bucket[rec.RecordID()] = rec
	}
}

// FailNextWrites makes every subsequent Write return err until reset with
// nil.
func (m *MemoryRepository[T]) FailNextWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// CallCount reports how many times the named method ran.
func (m *MemoryRepository[T]) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

func (m *MemoryRepository[T]) track(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

// SelectRows implements repository.RowSource with deterministic ordering and
// the keyset resumption predicate.
func (m *MemoryRepository[T]) SelectRows(_ context.Context, tenantID string, sel repository.Selection) ([]T, error) {
	m.track("SelectRows")
	m.mu.RLock()
	bucket := m.rows[tenantID]
	matched := make([]T, 0, len(bucket))
	for _, rec := range bucket {
		if matchesFilters(rec, sel.Filters) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	desc := sel.SortOrder == repository.Desc
	sort.Slice(matched, func(i, j int) bool {
		pi := positionOf(matched[i], sel.SortBy)
		pj := positionOf(matched[j], sel.SortBy)
		if desc {
			return positionLess(pj, pi)
		}
		return positionLess(pi, pj)
	})

	if sel.After != nil {
		after := repository.Position{SortValue: sel.After.SortValue, ID: sel.After.ID}
		filtered := matched[:0]
		for _, rec := range matched {
			pos := positionOf(rec, sel.SortBy)
			if desc {
				if positionLess(pos, after) {
					filtered = append(filtered, rec)
				}
			} else {
				if positionLess(after, pos) {
					filtered = append(filtered, rec)
				}
			}
		}
		matched = filtered
	}

	if sel.Limit > 0 && len(matched) > sel.Limit {
		matched = matched[:sel.Limit]
	}
	return matched, nil
}

// Find serves one page through the pagination engine.
func (m *MemoryRepository[T]) Find(ctx context.Context, tenantID string, q repository.ListQuery) (repository.Page[T], error) {
	m.track("Find")
	return cursor.New[T](m).ListPage(ctx, tenantID, q)
}

// FindByID reads one record under the tenant.
func (m *MemoryRepository[T]) FindByID(_ context.Context, tenantID, id string) (T, error) {
	m.track("FindByID")
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[tenantID][id]
	if !ok {
		var zero T
		return zero, repository.ErrNotFound
	}
	return rec, nil
}

// Write applies a patch under the tenant.
func (m *MemoryRepository[T]) Write(_ context.Context, tenantID, id string, patch repository.Patch) (T, error) {
	m.track("Write")
	if m.BeforeWrite != nil {
		m.BeforeWrite(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if m.writeErr != nil {
		return zero, m.writeErr
	}

	bucket := m.rows[tenantID]
	if bucket == nil {
		bucket = make(map[string]T)
		m.rows[tenantID] = bucket
	}

	current, present := bucket[id]

	switch patch.Kind {
	case repository.PatchDelete:
		if !present {
			return zero, repository.ErrNotFound
		}
		delete(bucket, id)
		return zero, nil
	case repository.PatchUpdate:
		if !present {
			return zero, repository.ErrNotFound
		}
	case repository.PatchCreate:
		if present {
			return zero, fmt.Errorf("testsupport: record %s already exists", id)
		}
	}

	next, err := m.apply(current, present, tenantID, id, patch)
	if err != nil {
		return zero, err
	}
	bucket[next.RecordID()] = next
	return next, nil
}

func matchesFilters(rec repository.Record, filters []repository.Filter) bool {
	for _, f := range filters {
		value, ok := rec.Field(f.Field)
		if !ok {
			return false
		}
		if fmt.Sprint(value) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func positionOf(rec repository.Record, sortBy string) repository.Position {
	if sortBy == "" || sortBy == "id" {
		return repository.Position{SortValue: rec.RecordID(), ID: rec.RecordID()}
	}
	value, _ := rec.Field(sortBy)
	return repository.Position{SortValue: value, ID: rec.RecordID()}
}

// positionLess orders by sort value with id as tiebreak. Numeric values are
// compared numerically regardless of concrete type; cursor tokens round-trip
// through JSON and come back as float64.
func positionLess(a, b repository.Position) bool {
	av, aNum := toNumber(a.SortValue)
	bv, bNum := toNumber(b.SortValue)
	if aNum && bNum {
		if av != bv {
			return av < bv
		}
		return a.ID < b.ID
	}
	as, bs := fmt.Sprint(a.SortValue), fmt.Sprint(b.SortValue)
	if as != bs {
		return as < bs
	}
	return a.ID < b.ID
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
