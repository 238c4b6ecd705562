package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/morabah/posalpro-sync/cachestore"
	"github.com/morabah/posalpro-sync/querykey"
	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
	"github.com/morabah/posalpro-sync/verify"
)

// Status is the single outcome signal a mutation reports to its caller.
type Status string

const (
	// StatusConfirmed: the write succeeded and verification matched.
	StatusConfirmed Status = "confirmed"
	// StatusUnverified: the write succeeded but confirmation is missing —
	// the re-read failed, a field fell outside tolerance, or the caller
	// detached. Never presented as data loss.
	StatusUnverified Status = "unverified"
	// StatusFailed: the repository rejected the write. Nothing changed.
	StatusFailed Status = "failed"
)

// Intent describes what the caller believes the authoritative state will be
// once the write lands. It lives for exactly one mutation.
type Intent struct {
	Resource   string
	ResourceID string
	Expected   []verify.Expectation
}

// Outcome is the terminal report of one mutation.
type Outcome struct {
	Status     Status
	Mismatches []verify.Mismatch
}

// WriteFailedError wraps a repository write rejection. It is surfaced
// verbatim; this layer never retries.
type WriteFailedError struct {
	Resource   string
	ResourceID string
	Err        error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("mutation: write %s/%s failed: %v", e.Resource, e.ResourceID, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

// WriteFn executes the actual write against the tenant-scoped repository.
type WriteFn[T repository.Record] func(ctx context.Context, repo *tenant.Scoped[T]) (T, error)

// Coordinator serializes writes per resource and drives the
// invalidate → refetch → verify sequence for one entity domain.
type Coordinator[T repository.Record] struct {
	domain   string
	repo     *tenant.Scoped[T]
	store    *cachestore.Store
	verifier *verify.Engine[T]
	locks    *keyedLock
	log      zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	log zerolog.Logger
}

// WithLogger injects the coordinator's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *coordinatorOptions) { o.log = log }
}

// NewCoordinator builds the coordinator for one domain.
func NewCoordinator[T repository.Record](domain string, repo *tenant.Scoped[T], store *cachestore.Store, verifier *verify.Engine[T], opts ...Option) *Coordinator[T] {
	o := coordinatorOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator[T]{
		domain:   domain,
		repo:     repo,
		store:    store,
		verifier: verifier,
		locks:    newKeyedLock(),
		log:      o.log,
	}
}

// Mutate runs the write protocol, strictly ordered:
//
//  1. acquire the resource:id lock — concurrent calls for the same resource
//     queue, they never run in parallel
//  2. execute the write via the tenant-scoped repository
//  3. evict the resource's detail entry before any verification read
//  4. broadcast invalidation to the domain's list and aggregate keys
//  5. verify the intent against a bypassing re-read
//
// A write failure is fatal and skips steps 3–5: nothing changed, so nothing
// is invalidated. A verification failure downgrades the outcome to
// unverified; the write is never rolled back.
func (c *Coordinator[T]) Mutate(ctx context.Context, intent Intent, write WriteFn[T]) (Outcome, error) {
	if intent.ResourceID == "" {
		return Outcome{Status: StatusFailed}, errors.New("mutation: intent requires a resource id")
	}
	resource := intent.Resource
	if resource == "" {
		resource = c.domain
	}

	tenantID, err := c.repo.TenantID(ctx)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	release, err := c.locks.Acquire(ctx, resource+":"+intent.ResourceID)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	defer release()

	if _, err := write(ctx, c.repo); err != nil {
		werr := &WriteFailedError{Resource: resource, ResourceID: intent.ResourceID, Err: err}
		c.log.Error().
			Str("tenantId", tenantID).
			Str("resource", resource).
			Str("resourceId", intent.ResourceID).
			Err(err).
			Msg("write failed")
		return Outcome{Status: StatusFailed}, werr
	}

	// Evict the detail entry before the verification read. Verifying against
	// a still-cached snapshot reports phantom mismatches for writes that in
	// fact succeeded.
	c.store.InvalidateKey(querykey.Detail(c.domain, tenantID, intent.ResourceID))
	c.store.InvalidatePrefix(querykey.OpPrefix(tenantID, c.domain, querykey.OpList))
	c.store.InvalidatePrefix(querykey.OpPrefix(tenantID, c.domain, querykey.OpStats))

	if ctx.Err() != nil {
		// Caller detached after the write landed. The write stands; only the
		// confidence signal is reduced.
		return Outcome{Status: StatusUnverified}, nil
	}

	result, err := c.verifier.Verify(ctx, resource, intent.ResourceID, intent.Expected)
	if err != nil {
		c.log.Warn().
			Str("tenantId", tenantID).
			Str("resource", resource).
			Str("resourceId", intent.ResourceID).
			Err(err).
			Msg("verification read failed, outcome unverified")
		return Outcome{Status: StatusUnverified}, nil
	}

	if !result.Confirmed {
		if merr := result.Err(resource, intent.ResourceID); merr != nil {
			c.log.Warn().
				Str("tenantId", tenantID).
				Err(merr).
				Msg("verification outside tolerance, outcome unverified")
		}
		return Outcome{Status: StatusUnverified, Mismatches: result.Mismatches}, nil
	}

	c.log.Debug().
		Str("tenantId", tenantID).
		Str("resource", resource).
		Str("resourceId", intent.ResourceID).
		Msg("mutation confirmed")
	return Outcome{Status: StatusConfirmed}, nil
}

// InFlight reports whether a mutation currently holds or waits on the
// resource's lock.
func (c *Coordinator[T]) InFlight(resource, resourceID string) bool {
	if resource == "" {
		resource = c.domain
	}
	return c.locks.Waiters(resource+":"+resourceID) > 0
}
