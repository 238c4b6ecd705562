// Package mutation coordinates writes against the authoritative repository
// and keeps the client cache honest about them.
//
// # Protocol
//
// Mutate runs a strictly ordered sequence for each write:
//
//  1. acquire the per-resource lock (single-flight key resource:id); a
//     concurrent call for the same resource queues behind the first
//  2. execute the write through the tenant-scoped repository
//  3. evict the resource's detail cache entry
//  4. broadcast invalidation to the domain's list and aggregate keys
//  5. verify the caller's intent against a cache-bypassing re-read
//
// Step 3 must precede step 5. Verifying against a still-cached snapshot from
// before the write produces mismatch warnings for writes that succeeded,
// which trains users to distrust the save indicator.
//
// # Outcomes
//
// Every mutation ends in exactly one of three states: confirmed (write and
// verification both succeeded), unverified (write succeeded, confirmation
// didn't — re-read failure, out-of-tolerance field, or caller detach), or
// failed (the repository rejected the write; nothing was invalidated because
// nothing changed). An unverified write is still a successful write; the UI
// shows it as saved with a soft notice, never as an error.
//
// # Ordering guarantees
//
// Writes for one resource:id are serialized by the lock. Reads are not
// serialized against each other, but a read issued after step 3 sees the
// evicted cache and fetches fresh state — never the pre-write snapshot.
// Nothing is guaranteed across distinct resources; callers must not assume a
// cross-entity transaction.
package mutation
