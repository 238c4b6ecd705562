package repository

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by FindByID when no row exists for the id under the
// requested tenant.
var ErrNotFound = errors.New("repository: record not found")

// Record is the minimal contract an entity must satisfy to flow through the
// sync protocol. Field gives the verification engine and the pagination
// engine read access to named attributes without reflection.
type Record interface {
	RecordID() string
	Field(name string) (any, bool)
}

// SortOrder selects the direction of the primary sort column.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Scalar constrains filter values to primitives so list queries can always be
// turned into stable cache keys.
type Scalar interface {
	~string | ~bool |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Filter is a single field predicate. Values are produced through Eq so the
// primitive-only invariant holds by construction.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter over a primitive value.
func Eq[V Scalar](field string, value V) Filter {
	return Filter{Field: field, Value: value}
}

// ListQuery describes one page request over a domain collection.
// Cursor is the opaque token from the previous page, verbatim.
type ListQuery struct {
	Filters   []Filter
	SortBy    string
	SortOrder SortOrder
	Limit     int
	Cursor    string
}

// KeyParams flattens the query into the ordered primitive tuple that a list
// cache key must carry: every filter, sort and pagination input that affects
// the result set.
func (q ListQuery) KeyParams() []any {
	params := make([]any, 0, len(q.Filters)*2+4)
	for _, f := range q.Filters {
		params = append(params, f.Field, f.Value)
	}
	params = append(params, q.SortBy, string(q.SortOrder), q.Limit, q.Cursor)
	return params
}

// Page is the list response envelope. The wire form is bit-exact:
// {"items": [...], "nextCursor": "<opaque>" | null}.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

// PatchKind distinguishes the write variants carried by a Patch.
type PatchKind int

const (
	PatchCreate PatchKind = iota
	PatchUpdate
	PatchDelete
)

func (k PatchKind) String() string {
	switch k {
	case PatchCreate:
		return "create"
	case PatchUpdate:
		return "update"
	case PatchDelete:
		return "delete"
	default:
		return fmt.Sprintf("patch(%d)", int(k))
	}
}

// Patch is the single write shape of the repository contract: create, update
// and delete are variants of one patch application.
type Patch struct {
	Kind   PatchKind
	Fields map[string]any
}

// Position is a keyset cursor position: the sort value and id of the last row
// the client has seen under the current ordering. Resumption predicates are
// (sort, id) > (SortValue, ID), never a numeric offset.
type Position struct {
	SortValue any    `json:"v"`
	ID        string `json:"id"`
}

// Selection is the row-level request a RowSource answers: ordered rows after
// an optional keyset position. Limit already includes the engine's sentinel
// row.
type Selection struct {
	Filters   []Filter
	SortBy    string
	SortOrder SortOrder
	Limit     int
	After     *Position
}

// RowSource is the low-level ordered-row supplier the pagination engine
// drives. Implementations must order by (SortBy, id) with id as tiebreak and
// apply the keyset predicate for After.
type RowSource[T Record] interface {
	SelectRows(ctx context.Context, tenantID string, sel Selection) ([]T, error)
}

// Reader is the read half of the repository contract.
type Reader[T Record] interface {
	Find(ctx context.Context, tenantID string, q ListQuery) (Page[T], error)
	FindByID(ctx context.Context, tenantID, id string) (T, error)
}

// Repository is the external collaborator the protocol consumes. All
// operations are tenant-explicit; the tenant package provides the fail-closed
// context-resolving wrapper that call sites actually use.
type Repository[T Record] interface {
	Reader[T]
	Write(ctx context.Context, tenantID, id string, patch Patch) (T, error)
}
