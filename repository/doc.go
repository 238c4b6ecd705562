// Package repository defines the entity-facing contracts the sync protocol is
// written against: Record, the list query and page envelope, the patch-based
// write shape, and the keyset Selection a RowSource answers.
//
// The protocol never talks to a concrete store directly. Reads and writes go
// through Repository implementations wrapped by the tenant package's
// fail-closed scoping, and list reads are driven by the cursor package's
// pagination engine over a RowSource.
//
// The Page envelope is the wire contract for lists:
//
//	{"items": [...], "nextCursor": "<opaque>" | null}
//
// NextCursor is opaque to consumers; it is round-tripped verbatim into the
// next ListQuery and never parsed client-side.
package repository
