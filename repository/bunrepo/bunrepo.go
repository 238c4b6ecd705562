// Package bunrepo implements the repository contract on uptrace/bun. It is
// the reference SQL collaborator: tenant predicates on every query, keyset
// (sort, id) resumption for lists, and patch-based writes. Detail reads can
// be memoized through the cacheinfra read-through layer; the repository
// bypass flag always reaches the database.
package bunrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/morabah/posalpro-sync/cursor"
	"github.com/morabah/posalpro-sync/internal/cacheinfra"
	"github.com/morabah/posalpro-sync/repository"
)

// Repo is a tenant-scoped SQL repository for one bun-annotated record type.
// T must be a value struct with bun tags and id/tenant_id columns.
type Repo[T repository.Record] struct {
	db     *bun.DB
	domain string
	table  string
	memo   *cacheinfra.ReadThrough[T]
}

// Option configures a Repo.
type Option[T repository.Record] func(*Repo[T])

// WithReadThrough memoizes detail reads through the given layer.
func WithReadThrough[T repository.Record](memo *cacheinfra.ReadThrough[T]) Option[T] {
	return func(r *Repo[T]) { r.memo = memo }
}

// New builds the repository for a domain backed by the named table.
func New[T repository.Record](db *bun.DB, domain, table string, opts ...Option[T]) *Repo[T] {
	r := &Repo[T]{db: db, domain: domain, table: table}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SelectRows answers the pagination engine: rows ordered by (sort, id) with
// the keyset resumption predicate, never an offset.
func (r *Repo[T]) SelectRows(ctx context.Context, tenantID string, sel repository.Selection) ([]T, error) {
	var rows []T
	q := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID)

	for _, f := range sel.Filters {
		q = q.Where("? = ?", bun.Ident(f.Field), f.Value)
	}

	dir := "ASC"
	cmp := ">"
	if sel.SortOrder == repository.Desc {
		dir = "DESC"
		cmp = "<"
	}

	if sel.After != nil {
		if sel.SortBy == "id" {
			q = q.Where(fmt.Sprintf("id %s ?", cmp), sel.After.ID)
		} else {
			q = q.Where(fmt.Sprintf("(?, id) %s (?, ?)", cmp),
				bun.Ident(sel.SortBy), sel.After.SortValue, sel.After.ID)
		}
	}

	if sel.SortBy != "id" {
		q = q.OrderExpr(fmt.Sprintf("? %s", dir), bun.Ident(sel.SortBy))
	}
	q = q.OrderExpr(fmt.Sprintf("id %s", dir)).Limit(sel.Limit)

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// Find serves one page through the pagination engine.
func (r *Repo[T]) Find(ctx context.Context, tenantID string, q repository.ListQuery) (repository.Page[T], error) {
	return cursor.New[T](r).ListPage(ctx, tenantID, q)
}

// FindByID reads one record under the tenant, through the detail memo when
// configured.
func (r *Repo[T]) FindByID(ctx context.Context, tenantID, id string) (T, error) {
	if r.memo == nil {
		return r.fetchByID(ctx, tenantID, id)
	}
	return r.memo.GetOrFetch(ctx, cacheinfra.DetailKey(tenantID, r.domain, id), func(ctx context.Context) (T, error) {
		return r.fetchByID(ctx, tenantID, id)
	})
}

func (r *Repo[T]) fetchByID(ctx context.Context, tenantID, id string) (T, error) {
	var row T
	err := r.db.NewSelect().
		Model(&row).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, repository.ErrNotFound
		}
		return zero, err
	}
	return row, nil
}

// Write applies a patch variant. Creates mint a uuid when the id is empty;
// updates and deletes that match no row report ErrNotFound. Any successful
// write drops the record's detail memo.
func (r *Repo[T]) Write(ctx context.Context, tenantID, id string, patch repository.Patch) (T, error) {
	var zero T
	switch patch.Kind {
	case repository.PatchCreate:
		if id == "" {
			id = uuid.NewString()
		}
		values := make(map[string]any, len(patch.Fields)+2)
		for k, v := range patch.Fields {
			values[k] = v
		}
		values["id"] = id
		values["tenant_id"] = tenantID
		if _, err := r.db.NewInsert().
			Model(&values).
			TableExpr("?", bun.Ident(r.table)).
			Exec(ctx); err != nil {
			return zero, err
		}

	case repository.PatchUpdate:
		q := r.db.NewUpdate().
			Table(r.table).
			Where("tenant_id = ?", tenantID).
			Where("id = ?", id)
		for k, v := range patch.Fields {
			q = q.Set("? = ?", bun.Ident(k), v)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return zero, err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return zero, repository.ErrNotFound
		}

	case repository.PatchDelete:
		res, err := r.db.NewDelete().
			TableExpr("?", bun.Ident(r.table)).
			Where("tenant_id = ?", tenantID).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return zero, err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return zero, repository.ErrNotFound
		}
		r.dropMemo(tenantID, id)
		return zero, nil

	default:
		return zero, fmt.Errorf("bunrepo: unknown patch kind %v", patch.Kind)
	}

	r.dropMemo(tenantID, id)
	return r.fetchByID(repository.WithBypass(ctx), tenantID, id)
}

func (r *Repo[T]) dropMemo(tenantID, id string) {
	if r.memo != nil {
		r.memo.Delete(cacheinfra.DetailKey(tenantID, r.domain, id))
	}
}
