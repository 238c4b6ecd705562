// Package querykey derives stable, primitive-only composite keys for every
// cacheable query.
//
// # Key shape
//
// A key is the tuple (tenant, domain, op, params...) joined with "::". The
// single invariant the package enforces is primitivity: every parameter is a
// string, number, boolean or nil, never an object, slice, map or function.
// Structural equality of the inputs therefore implies equality of the key,
// which is what keeps identical reads from producing distinct cache entries
// and refetching forever.
//
// # Parameter policy per operation
//
//   - list keys carry every filter, sort and pagination primitive that
//     affects the result set (repository.ListQuery.KeyParams produces the
//     canonical ordering)
//   - detail keys carry only the entity id
//   - stats keys carry nothing beyond the tenant
//
// # Derivation failures
//
// A non-primitive parameter yields *InvalidKeyError. This is a programming
// error at the call site; callers must not catch and ignore it.
//
// Keys whose canonical form would exceed the length cap keep their
// tenant::domain::op routing prefix and digest the parameter tail with
// xxhash, so prefix invalidation still sees them.
package querykey
