package querykey

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Separator delimits cache key segments.
const Separator = "::"

// maxKeyLen caps the canonical form; longer tuples keep their routing prefix
// and digest the parameter tail so backends with key-length limits stay happy.
const maxKeyLen = 512

// Op names the cacheable read shapes.
type Op string

const (
	OpList   Op = "list"
	OpDetail Op = "detail"
	OpStats  Op = "stats"
)

// Key is a stable, primitive-only composite key for one cacheable query.
// Equality of the canonical string form is equality of the key. The zero Key
// is invalid.
type Key struct {
	tenant    string
	domain    string
	op        Op
	canonical string
}

func (k Key) String() string { return k.canonical }
func (k Key) Tenant() string { return k.tenant }
func (k Key) Domain() string { return k.domain }
func (k Key) Op() Op         { return k.op }

// Equal reports value equality of two keys.
func (k Key) Equal(other Key) bool { return k.canonical == other.canonical }

// IsZero reports whether the key was never derived.
func (k Key) IsZero() bool { return k.canonical == "" }

// InvalidKeyError reports a non-primitive query key parameter. This is a
// caller bug: unstable key material is the root of refetch loops, so it must
// surface, never be swallowed.
type InvalidKeyError struct {
	Position int
	Kind     string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("querykey: param %d is a %s, keys accept primitives only", e.Position, e.Kind)
}

// Derive builds the key for (domain, op, tenant) plus the primitive params
// that shape the result set. Any object, array, map, func, channel, pointer
// or struct parameter is rejected with *InvalidKeyError. Derive is pure:
// identical inputs always produce equal keys.
func Derive(domain string, op Op, tenantID string, params ...any) (Key, error) {
	segments := make([]string, 0, len(params)+3)
	segments = append(segments, tenantID, domain, string(op))

	for i, p := range params {
		s, err := serializeParam(i, p)
		if err != nil {
			return Key{}, err
		}
		segments = append(segments, s)
	}

	canonical := strings.Join(segments, Separator)
	if len(canonical) > maxKeyLen {
		prefix := strings.Join(segments[:3], Separator)
		tail := canonical[len(prefix):]
		canonical = prefix + Separator + "h_" + strconv.FormatUint(xxhash.Sum64String(tail), 16)
	}

	return Key{tenant: tenantID, domain: domain, op: op, canonical: canonical}, nil
}

// List derives the key for a list query. Params must carry every filter, sort
// and pagination primitive that affects the page.
func List(domain, tenantID string, params ...any) (Key, error) {
	return Derive(domain, OpList, tenantID, params...)
}

// Detail derives the key for a single-entity read. Only the id participates.
func Detail(domain, tenantID, id string) Key {
	k, _ := Derive(domain, OpDetail, tenantID, id)
	return k
}

// Stats derives the key for a domain aggregate. No filter parameters beyond
// the tenant participate.
func Stats(domain, tenantID string) Key {
	k, _ := Derive(domain, OpStats, tenantID)
	return k
}

// TenantPrefix matches every key derived under the tenant. Used when a
// session switches tenants and the whole cache must go.
func TenantPrefix(tenantID string) string {
	return tenantID + Separator
}

// DomainPrefix matches every key for one domain under one tenant.
func DomainPrefix(tenantID, domain string) string {
	return tenantID + Separator + domain + Separator
}

// OpPrefix matches every key for one operation shape, e.g. all product lists.
func OpPrefix(tenantID, domain string, op Op) string {
	return DomainPrefix(tenantID, domain) + string(op) + Separator
}

func serializeParam(pos int, v any) (string, error) {
	if v == nil {
		return "nil", nil
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	}

	rt := reflect.TypeOf(v)
	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v), nil
	default:
		return "", &InvalidKeyError{Position: pos, Kind: rt.Kind().String()}
	}
}
