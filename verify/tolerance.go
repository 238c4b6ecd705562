package verify

import (
	"fmt"
	"strings"
)

// FieldKind selects the comparison rule for an expected field.
type FieldKind int

const (
	// KindNumeric accepts |actual - expected| <= tolerance. The default
	// tolerance is non-zero on purpose: currency rounding on the server side
	// must not read as data loss.
	KindNumeric FieldKind = iota
	// KindString compares case-insensitively, and an absent or empty actual
	// value always passes. Enum casing drift between client and server is
	// benign.
	KindString
	// KindCount accepts a small absolute difference, absorbing the benign
	// race where related-row counts settle a moment after the primary write.
	KindCount
)

func (k FieldKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindCount:
		return "count"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Expectation is one field of a MutationIntent: what the caller believes the
// authoritative value will be after the write. Tolerance overrides the
// engine-wide default when non-nil.
type Expectation struct {
	Field     string
	Value     any
	Kind      FieldKind
	Tolerance *float64
}

// Numeric expects a numeric field within the engine's default tolerance.
func Numeric(field string, value float64) Expectation {
	return Expectation{Field: field, Value: value, Kind: KindNumeric}
}

// NumericWithin expects a numeric field within an explicit tolerance.
func NumericWithin(field string, value, tolerance float64) Expectation {
	return Expectation{Field: field, Value: value, Kind: KindNumeric, Tolerance: &tolerance}
}

// Enum expects a string/enum field, compared case-insensitively.
func Enum(field, value string) Expectation {
	return Expectation{Field: field, Value: value, Kind: KindString}
}

// Count expects a related-row count within the engine's default delta.
func Count(field string, value int) Expectation {
	return Expectation{Field: field, Value: value, Kind: KindCount}
}

// CountWithin expects a count within an explicit absolute delta.
func CountWithin(field string, value, delta int) Expectation {
	tol := float64(delta)
	return Expectation{Field: field, Value: value, Kind: KindCount, Tolerance: &tol}
}

// Mismatch records one field whose re-read value fell outside tolerance.
type Mismatch struct {
	Field    string
	Expected any
	Actual   any
	Reason   string
}

// MismatchError is the soft verification failure. It never rolls anything
// back; the coordinator downgrades the outcome and logs the field detail.
type MismatchError struct {
	Resource   string
	ResourceID string
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	fields := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		fields[i] = m.Field
	}
	return fmt.Sprintf("verify: %s/%s mismatched fields: %s",
		e.Resource, e.ResourceID, strings.Join(fields, ", "))
}
