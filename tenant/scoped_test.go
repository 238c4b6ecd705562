package tenant_test

import (
	"context"
	"errors"
	"testing"

	"github.com/morabah/posalpro-sync/pkg/testsupport"
	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
)

func TestScoped_FailsClosedWithoutTenant(t *testing.T) {
	repo := tenant.Scope[testsupport.Product](testsupport.NewProductRepository())
	ctx := context.Background()

	var missing *tenant.MissingTenantError

	if _, err := repo.Find(ctx, repository.ListQuery{Limit: 5}); !errors.As(err, &missing) {
		t.Errorf("Find without tenant: error = %v, want *MissingTenantError", err)
	}
	if _, err := repo.FindByID(ctx, "p-1"); !errors.As(err, &missing) {
		t.Errorf("FindByID without tenant: error = %v, want *MissingTenantError", err)
	}
	if _, err := repo.Write(ctx, "p-1", repository.Patch{Kind: repository.PatchUpdate}); !errors.As(err, &missing) {
		t.Errorf("Write without tenant: error = %v, want *MissingTenantError", err)
	}
}

func TestScoped_TenantIsolation(t *testing.T) {
	base := testsupport.NewProductRepository()
	base.Seed("tenant-a", testsupport.NewProduct("tenant-a", "alpha", 10))
	base.Seed("tenant-b", testsupport.NewProduct("tenant-b", "beta", 20))
	repo := tenant.Scope[testsupport.Product](base)

	ctxA := tenant.WithTenant(context.Background(), "tenant-a")
	page, err := repo.Find(ctxA, repository.ListQuery{SortBy: "name", Limit: 10})
	if err != nil {
		t.Fatalf("Find() returned error: %v", err)
	}

	if len(page.Items) != 1 {
		t.Fatalf("tenant-a sees %d products, want 1", len(page.Items))
	}
	if page.Items[0].TenantID != "tenant-a" {
		t.Errorf("tenant-a read a record owned by %q", page.Items[0].TenantID)
	}
}

func TestScoped_DetailNeverCrossesTenants(t *testing.T) {
	base := testsupport.NewProductRepository()
	secret := testsupport.NewProduct("tenant-b", "secret", 99)
	base.Seed("tenant-b", secret)
	repo := tenant.Scope[testsupport.Product](base)

	ctxA := tenant.WithTenant(context.Background(), "tenant-a")
	if _, err := repo.FindByID(ctxA, secret.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-tenant FindByID error = %v, want ErrNotFound", err)
	}
}

func TestScoped_UniquenessIsPerTenant(t *testing.T) {
	base := testsupport.NewProductRepository()
	base.Seed("tenant-a", testsupport.NewProduct("tenant-a", "widget", 10))
	repo := tenant.Scope[testsupport.Product](base)

	// The same natural key under another tenant does not collide.
	ctxB := tenant.WithTenant(context.Background(), "tenant-b")
	unique, err := repo.UniqueWithin(ctxB, "name", "widget", "")
	if err != nil {
		t.Fatalf("UniqueWithin() returned error: %v", err)
	}
	if !unique {
		t.Error("name taken in tenant-a reported as taken for tenant-b")
	}

	ctxA := tenant.WithTenant(context.Background(), "tenant-a")
	unique, err = repo.UniqueWithin(ctxA, "name", "widget", "")
	if err != nil {
		t.Fatalf("UniqueWithin() returned error: %v", err)
	}
	if unique {
		t.Error("duplicate name within tenant-a reported as unique")
	}
}

func TestFromContext(t *testing.T) {
	if _, ok := tenant.FromContext(context.Background()); ok {
		t.Error("FromContext on bare context reported a tenant")
	}

	ctx := tenant.WithTenant(context.Background(), "tenant-a")
	tc, ok := tenant.FromContext(ctx)
	if !ok || tc.TenantID != "tenant-a" {
		t.Errorf("FromContext = (%+v, %v), want tenant-a", tc, ok)
	}
}
