package mutation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/morabah/posalpro-sync/cachestore"
	"github.com/morabah/posalpro-sync/pkg/testsupport"
	"github.com/morabah/posalpro-sync/querykey"
	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
	"github.com/morabah/posalpro-sync/verify"
)

func newTestStore(t *testing.T) *cachestore.Store {
	t.Helper()
	store, err := cachestore.New(cachestore.Config{
		StaleTTL:    2 * time.Second,
		GCRetention: 10 * time.Second,
		MaxEntries:  100,
	})
	if err != nil {
		t.Fatalf("cachestore.New() returned error: %v", err)
	}
	return store
}

func newProductCoordinator(t *testing.T, base repository.Repository[testsupport.Product], store *cachestore.Store) *Coordinator[testsupport.Product] {
	t.Helper()
	scoped := tenant.Scope[testsupport.Product](base)
	verifier, err := verify.NewEngine[testsupport.Product](scoped, verify.Config{
		NumericTolerance: 0.01,
		CountDelta:       1,
	})
	if err != nil {
		t.Fatalf("verify.NewEngine() returned error: %v", err)
	}
	return NewCoordinator[testsupport.Product]("products", scoped, store, verifier)
}

func updatePrice(id string, price float64) WriteFn[testsupport.Product] {
	return func(ctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
		return repo.Write(ctx, id, repository.Patch{
			Kind:   repository.PatchUpdate,
			Fields: map[string]any{"price": price},
		})
	}
}

func TestMutate_ConfirmedPath(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))

	ctx := tenant.WithTenant(context.Background(), "t1")
	outcome, err := coord.Mutate(ctx, Intent{
		ResourceID: product.ID,
		Expected:   []verify.Expectation{verify.Numeric("price", 12.5)},
	}, updatePrice(product.ID, 12.5))

	if err != nil {
		t.Fatalf("Mutate() returned error: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Errorf("Status = %q, want confirmed (mismatches: %+v)", outcome.Status, outcome.Mismatches)
	}
}

func TestMutate_BroadcastsInvalidation(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	store := newTestStore(t)
	coord := newProductCoordinator(t, base, store)

	detail := querykey.Detail("products", "t1", product.ID)
	list, err := querykey.List("products", "t1", "q", 20)
	if err != nil {
		t.Fatalf("querykey.List() returned error: %v", err)
	}
	stats := querykey.Stats("products", "t1")
	otherTenantList, err := querykey.List("products", "t2", "q", 20)
	if err != nil {
		t.Fatalf("querykey.List() returned error: %v", err)
	}
	for _, k := range []querykey.Key{detail, list, stats, otherTenantList} {
		store.Set(k, "cached")
	}

	ctx := tenant.WithTenant(context.Background(), "t1")
	if _, err := coord.Mutate(ctx, Intent{ResourceID: product.ID}, updatePrice(product.ID, 11)); err != nil {
		t.Fatalf("Mutate() returned error: %v", err)
	}

	for _, k := range []querykey.Key{detail, list, stats} {
		if _, ok := store.Get(k); ok {
			t.Errorf("key %q survived the mutation", k)
		}
	}
	if _, ok := store.Get(otherTenantList); !ok {
		t.Error("another tenant's list entry was invalidated")
	}
}

func TestMutate_WriteFailureChangesNothing(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	store := newTestStore(t)
	coord := newProductCoordinator(t, base, store)

	detail := querykey.Detail("products", "t1", product.ID)
	store.Set(detail, "cached")

	backendErr := errors.New("constraint violation")
	base.FailNextWrites(backendErr)

	ctx := tenant.WithTenant(context.Background(), "t1")
	outcome, err := coord.Mutate(ctx, Intent{ResourceID: product.ID}, updatePrice(product.ID, 11))

	if outcome.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", outcome.Status)
	}
	var failed *WriteFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *WriteFailedError", err)
	}
	if !errors.Is(err, backendErr) {
		t.Errorf("Unwrap chain lost the repository error: %v", err)
	}

	// Nothing changed, so nothing was invalidated and nothing was verified.
	if _, ok := store.Get(detail); !ok {
		t.Error("failed write evicted the cached detail entry")
	}
	if got := base.CallCount("FindByID"); got != 0 {
		t.Errorf("verification read ran %d times after a failed write", got)
	}
}

func TestMutate_FailsClosedWithoutTenant(t *testing.T) {
	base := testsupport.NewProductRepository()
	coord := newProductCoordinator(t, base, newTestStore(t))

	outcome, err := coord.Mutate(context.Background(), Intent{ResourceID: "p-1"}, updatePrice("p-1", 1))

	if outcome.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", outcome.Status)
	}
	var missing *tenant.MissingTenantError
	if !errors.As(err, &missing) {
		t.Errorf("error = %v, want *MissingTenantError", err)
	}
	if got := base.CallCount("Write"); got != 0 {
		t.Errorf("write ran %d times without a tenant", got)
	}
}

func TestMutate_RequiresResourceID(t *testing.T) {
	base := testsupport.NewProductRepository()
	coord := newProductCoordinator(t, base, newTestStore(t))

	ctx := tenant.WithTenant(context.Background(), "t1")
	outcome, err := coord.Mutate(ctx, Intent{}, updatePrice("", 1))
	if err == nil || outcome.Status != StatusFailed {
		t.Errorf("Mutate() = (%+v, %v), want failed with error", outcome, err)
	}
}

func TestMutate_SerializesPerResource(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))
	ctx := tenant.WithTenant(context.Background(), "t1")

	var inWrite atomic.Int32
	var overlapped atomic.Bool
	write := func(ctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
		if inWrite.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		inWrite.Add(-1)
		return repo.Write(ctx, product.ID, repository.Patch{
			Kind:   repository.PatchUpdate,
			Fields: map[string]any{"price": 11.0},
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coord.Mutate(ctx, Intent{ResourceID: product.ID}, write); err != nil {
				t.Errorf("Mutate() returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if overlapped.Load() {
		t.Error("two writes for the same resource ran concurrently")
	}
	if got := base.CallCount("Write"); got != 4 {
		t.Errorf("Write ran %d times, want 4", got)
	}
}

func TestMutate_QueuedCallerAbortsOnCancel(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))
	ctx := tenant.WithTenant(context.Background(), "t1")

	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := func(ctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
		close(entered)
		<-release
		return repo.FindByID(ctx, product.ID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := coord.Mutate(ctx, Intent{ResourceID: product.ID}, blocking); err != nil {
			t.Errorf("holder Mutate() returned error: %v", err)
		}
	}()
	<-entered

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	outcome, err := coord.Mutate(cancelled, Intent{ResourceID: product.ID}, updatePrice(product.ID, 11))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("queued Mutate() error = %v, want context.Canceled", err)
	}
	if outcome.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", outcome.Status)
	}
	if got := base.CallCount("Write"); got != 0 {
		t.Errorf("aborted waiter still wrote (%d writes)", got)
	}

	close(release)
	<-done
}

func TestMutate_DetachedCallerGetsUnverified(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))

	ctx, cancel := context.WithCancel(tenant.WithTenant(context.Background(), "t1"))
	write := func(wctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
		rec, err := repo.Write(wctx, product.ID, repository.Patch{
			Kind:   repository.PatchUpdate,
			Fields: map[string]any{"price": 11.0},
		})
		// The caller walks away while the write is landing.
		cancel()
		return rec, err
	}

	outcome, err := coord.Mutate(ctx, Intent{ResourceID: product.ID}, write)
	if err != nil {
		t.Fatalf("Mutate() returned error: %v", err)
	}
	if outcome.Status != StatusUnverified {
		t.Errorf("Status = %q, want unverified", outcome.Status)
	}
	if got := base.CallCount("FindByID"); got != 0 {
		t.Errorf("detached mutation still verified (%d re-reads)", got)
	}

	// The write itself stands.
	rec, err := base.FindByID(context.Background(), "t1", product.ID)
	if err != nil {
		t.Fatalf("FindByID() returned error: %v", err)
	}
	if price, _ := rec.Field("price"); price != 11.0 {
		t.Errorf("price = %v after detach, want the written 11.0", price)
	}
}

func TestMutate_MismatchDowngradesToUnverified(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))

	ctx := tenant.WithTenant(context.Background(), "t1")
	outcome, err := coord.Mutate(ctx, Intent{
		ResourceID: product.ID,
		Expected:   []verify.Expectation{verify.NumericWithin("price", 99, 0.01)},
	}, updatePrice(product.ID, 11))

	if err != nil {
		t.Fatalf("mismatch surfaced as a hard error: %v", err)
	}
	if outcome.Status != StatusUnverified {
		t.Errorf("Status = %q, want unverified", outcome.Status)
	}
	if len(outcome.Mismatches) != 1 || outcome.Mismatches[0].Field != "price" {
		t.Errorf("Mismatches = %+v, want the price field", outcome.Mismatches)
	}
}

func TestMutate_VerifyReadFailureDowngrades(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))

	ctx := tenant.WithTenant(context.Background(), "t1")
	deleteIt := func(ctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
		return repo.Write(ctx, product.ID, repository.Patch{Kind: repository.PatchDelete})
	}

	// Re-reading a deleted record fails; the delete itself succeeded.
	outcome, err := coord.Mutate(ctx, Intent{
		ResourceID: product.ID,
		Expected:   []verify.Expectation{verify.Numeric("price", 10)},
	}, deleteIt)
	if err != nil {
		t.Fatalf("Mutate() returned error: %v", err)
	}
	if outcome.Status != StatusUnverified {
		t.Errorf("Status = %q, want unverified", outcome.Status)
	}
}

// verifyObservingRepo asserts the cached detail entry is already gone by the
// time the verification re-read runs.
type verifyObservingRepo struct {
	*testsupport.MemoryRepository[testsupport.Product]
	store      *cachestore.Store
	detail     querykey.Key
	sawStale   atomic.Bool
	violations atomic.Int32
}

func (r *verifyObservingRepo) FindByID(ctx context.Context, tenantID, id string) (testsupport.Product, error) {
	r.sawStale.Store(true)
	if _, ok := r.store.Get(r.detail); ok {
		r.violations.Add(1)
	}
	return r.MemoryRepository.FindByID(ctx, tenantID, id)
}

func TestMutate_EvictsDetailBeforeVerifying(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	store := newTestStore(t)

	detail := querykey.Detail("products", "t1", product.ID)
	store.Set(detail, "stale snapshot")

	observing := &verifyObservingRepo{MemoryRepository: base, store: store, detail: detail}
	coord := newProductCoordinator(t, observing, store)

	ctx := tenant.WithTenant(context.Background(), "t1")
	outcome, err := coord.Mutate(ctx, Intent{
		ResourceID: product.ID,
		Expected:   []verify.Expectation{verify.Numeric("price", 12)},
	}, updatePrice(product.ID, 12))
	if err != nil {
		t.Fatalf("Mutate() returned error: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Fatalf("Status = %q, want confirmed", outcome.Status)
	}

	if !observing.sawStale.Load() {
		t.Fatal("verification re-read never ran")
	}
	if observing.violations.Load() != 0 {
		t.Error("detail entry was still cached during the verification re-read")
	}
}

func TestInFlight(t *testing.T) {
	base := testsupport.NewProductRepository()
	product := testsupport.NewProduct("t1", "widget", 10)
	base.Seed("t1", product)
	coord := newProductCoordinator(t, base, newTestStore(t))
	ctx := tenant.WithTenant(context.Background(), "t1")

	if coord.InFlight("", product.ID) {
		t.Error("InFlight true before any mutation")
	}

	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coord.Mutate(ctx, Intent{ResourceID: product.ID}, func(ctx context.Context, repo *tenant.Scoped[testsupport.Product]) (testsupport.Product, error) {
			close(entered)
			<-release
			return repo.FindByID(ctx, product.ID)
		})
	}()
	<-entered

	if !coord.InFlight("", product.ID) {
		t.Error("InFlight false while a mutation holds the lock")
	}

	close(release)
	<-done
	if coord.InFlight("", product.ID) {
		t.Error("InFlight true after the mutation released the lock")
	}
}
