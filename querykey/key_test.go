package querykey

import (
	"errors"
	"strings"
	"testing"
)

func TestDerive_Stability(t *testing.T) {
	a, err := Derive("products", OpList, "tenant-a", "search", 20, "name", "asc", true)
	if err != nil {
		t.Fatalf("Derive() returned error: %v", err)
	}
	b, err := Derive("products", OpList, "tenant-a", "search", 20, "name", "asc", true)
	if err != nil {
		t.Fatalf("Derive() returned error: %v", err)
	}

	if !a.Equal(b) {
		t.Errorf("identical inputs produced different keys: %q vs %q", a, b)
	}
	if a.String() != b.String() {
		t.Errorf("canonical forms differ: %q vs %q", a, b)
	}
}

func TestDerive_Segments(t *testing.T) {
	key, err := Derive("products", OpList, "t1", "widget", 10)
	if err != nil {
		t.Fatalf("Derive() returned error: %v", err)
	}

	want := strings.Join([]string{"t1", "products", "list", "widget", "10"}, Separator)
	if key.String() != want {
		t.Errorf("canonical form = %q, want %q", key, want)
	}
	if key.Tenant() != "t1" || key.Domain() != "products" || key.Op() != OpList {
		t.Errorf("key components = (%q, %q, %q)", key.Tenant(), key.Domain(), key.Op())
	}
}

func TestDerive_RejectsNonPrimitives(t *testing.T) {
	tests := []struct {
		name  string
		param any
	}{
		{name: "slice", param: []string{"a"}},
		{name: "map", param: map[string]int{"a": 1}},
		{name: "struct", param: struct{ A int }{A: 1}},
		{name: "pointer", param: new(int)},
		{name: "func", param: func() {}},
		{name: "channel", param: make(chan int)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive("products", OpList, "t1", tt.param)
			if err == nil {
				t.Fatalf("Derive() accepted a %s parameter", tt.name)
			}
			var invalid *InvalidKeyError
			if !errors.As(err, &invalid) {
				t.Fatalf("error = %T, want *InvalidKeyError", err)
			}
			if invalid.Position != 0 {
				t.Errorf("Position = %d, want 0", invalid.Position)
			}
		})
	}
}

func TestDerive_NilParamAllowed(t *testing.T) {
	key, err := Derive("products", OpList, "t1", nil, "x")
	if err != nil {
		t.Fatalf("Derive() rejected nil: %v", err)
	}
	if !strings.Contains(key.String(), Separator+"nil"+Separator) {
		t.Errorf("nil not rendered in canonical form: %q", key)
	}
}

func TestDetail_OnlyID(t *testing.T) {
	key := Detail("products", "t1", "p-42")
	want := strings.Join([]string{"t1", "products", "detail", "p-42"}, Separator)
	if key.String() != want {
		t.Errorf("Detail() = %q, want %q", key, want)
	}
}

func TestStats_TenantOnly(t *testing.T) {
	key := Stats("proposals", "t1")
	want := strings.Join([]string{"t1", "proposals", "stats"}, Separator)
	if key.String() != want {
		t.Errorf("Stats() = %q, want %q", key, want)
	}
}

func TestPrefixes(t *testing.T) {
	list, err := List("products", "t1", "q", 10)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	detail := Detail("products", "t1", "p-1")
	otherTenant := Detail("products", "t2", "p-1")
	otherDomain := Detail("customers", "t1", "c-1")

	if !strings.HasPrefix(list.String(), OpPrefix("t1", "products", OpList)) {
		t.Errorf("list key %q does not match its op prefix", list)
	}
	if !strings.HasPrefix(detail.String(), DomainPrefix("t1", "products")) {
		t.Errorf("detail key %q does not match its domain prefix", detail)
	}
	if strings.HasPrefix(otherTenant.String(), TenantPrefix("t1")) {
		t.Errorf("tenant prefix for t1 matched a t2 key: %q", otherTenant)
	}
	if strings.HasPrefix(otherDomain.String(), DomainPrefix("t1", "products")) {
		t.Errorf("domain prefix for products matched %q", otherDomain)
	}
}

func TestDerive_LongTuplesKeepRoutingPrefix(t *testing.T) {
	params := make([]any, 0, 64)
	for i := 0; i < 64; i++ {
		params = append(params, strings.Repeat("x", 32))
	}

	a, err := Derive("products", OpList, "t1", params...)
	if err != nil {
		t.Fatalf("Derive() returned error: %v", err)
	}
	b, err := Derive("products", OpList, "t1", params...)
	if err != nil {
		t.Fatalf("Derive() returned error: %v", err)
	}

	if len(a.String()) > maxKeyLen+64 {
		t.Errorf("digested key still too long: %d chars", len(a.String()))
	}
	if !strings.HasPrefix(a.String(), OpPrefix("t1", "products", OpList)) {
		t.Errorf("digested key lost its routing prefix: %q", a)
	}
	if !a.Equal(b) {
		t.Errorf("digest not deterministic: %q vs %q", a, b)
	}
}
