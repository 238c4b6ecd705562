// Package cursor implements keyset pagination: deterministic (sort, id)
// ordering, limit+1 sentinel detection, and opaque resumption tokens.
// Offsets are never used — under concurrent inserts and deletes they skip or
// duplicate rows, which keyset resumption cannot do.
package cursor

import (
	"context"
	"errors"

	"github.com/morabah/posalpro-sync/repository"
)

const (
	// DefaultLimit applies when a query asks for no particular page size.
	DefaultLimit = 20
	// MaxLimit caps a single page regardless of what the caller requests.
	MaxLimit = 100
)

// Engine drives keyset pagination over a RowSource. It owns the limit+1
// sentinel protocol and token handling; the row source owns ordering and the
// (sort, id) resumption predicate.
type Engine[T repository.Record] struct {
	Source repository.RowSource[T]
}

// New returns an engine over the given row source.
func New[T repository.Record](source repository.RowSource[T]) Engine[T] {
	return Engine[T]{Source: source}
}

// ListPage serves one page of the query. It requests limit+1 rows; a full
// limit+1 result means more rows exist, so the limit-th row becomes the next
// cursor position and the sentinel is dropped. An empty result is a valid
// empty page, and a stale cursor degrades to an empty terminal page.
func (e Engine[T]) ListPage(ctx context.Context, tenantID string, q repository.ListQuery) (repository.Page[T], error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "id"
	}
	order := q.SortOrder
	if order == "" {
		order = repository.Asc
	}

	var after *repository.Position
	if q.Cursor != "" {
		pos, err := Decode(q.Cursor)
		if err != nil {
			if errors.Is(err, ErrStaleCursor) {
				return repository.Page[T]{Items: []T{}}, nil
			}
			return repository.Page[T]{}, err
		}
		after = &pos
	}

	rows, err := e.Source.SelectRows(ctx, tenantID, repository.Selection{
		Filters:   q.Filters,
		SortBy:    sortBy,
		SortOrder: order,
		Limit:     limit + 1,
		After:     after,
	})
	if err != nil {
		return repository.Page[T]{}, err
	}

	page := repository.Page[T]{Items: rows}
	if page.Items == nil {
		page.Items = []T{}
	}

	if len(rows) > limit {
		page.Items = rows[:limit:limit]
		last := page.Items[limit-1]
		token := Encode(repository.Position{
			SortValue: sortValueOf(last, sortBy),
			ID:        last.RecordID(),
		})
		page.NextCursor = &token
	}

	return page, nil
}

func sortValueOf[T repository.Record](rec T, sortBy string) any {
	if sortBy == "id" {
		return rec.RecordID()
	}
	if v, ok := rec.Field(sortBy); ok {
		return v
	}
	return rec.RecordID()
}
