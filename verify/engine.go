// Package verify re-reads authoritative state after a write and compares it
// against the caller's expectations under documented, configurable
// tolerances.
package verify

import (
	"context"
	"math"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/morabah/posalpro-sync/repository"
	"github.com/morabah/posalpro-sync/tenant"
)

// Result is the outcome of one verification attempt. Confirmed means every
// expected field was within tolerance on the authoritative re-read.
type Result struct {
	Confirmed  bool
	Mismatches []Mismatch
}

// Err returns the soft MismatchError for a non-confirmed result, nil
// otherwise.
func (r Result) Err(resource, resourceID string) error {
	if r.Confirmed || len(r.Mismatches) == 0 {
		return nil
	}
	return &MismatchError{Resource: resource, ResourceID: resourceID, Mismatches: r.Mismatches}
}

// Engine re-reads authoritative state after a write and compares it against
// the caller's expectations using per-field tolerances. Strict equality is
// deliberately not used: rounding and benign eventual consistency produced
// false mismatch warnings in production.
type Engine[T repository.Record] struct {
	repo  *tenant.Scoped[T]
	cfg   Config
	clock clockwork.Clock
	log   zerolog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	clock clockwork.Clock
	log   zerolog.Logger
}

// WithClock injects the clock used for the grace interval.
func WithClock(clock clockwork.Clock) Option {
	return func(o *engineOptions) { o.clock = clock }
}

// WithLogger injects the engine's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *engineOptions) { o.log = log }
}

// NewEngine constructs a verification engine over the tenant-scoped
// repository.
func NewEngine[T repository.Record](repo *tenant.Scoped[T], cfg Config, opts ...Option) (*Engine[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := engineOptions{clock: clockwork.NewRealClock(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[T]{repo: repo, cfg: cfg, clock: o.clock, log: o.log}, nil
}

// Verify waits the grace interval, re-reads the resource with cache bypass,
// and compares each expected field. The error return covers only re-read and
// cancellation failures; out-of-tolerance fields are reported through the
// Result, not the error.
func (e *Engine[T]) Verify(ctx context.Context, resource, resourceID string, expected []Expectation) (Result, error) {
	if e.cfg.Grace > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-e.clock.After(e.cfg.Grace):
		}
	}

	rec, err := e.repo.FindByID(repository.WithBypass(ctx), resourceID)
	if err != nil {
		return Result{}, err
	}

	var mismatches []Mismatch
	for _, exp := range expected {
		if m := e.compareField(rec, exp); m != nil {
			mismatches = append(mismatches, *m)
		}
	}

	if len(mismatches) > 0 {
		evt := e.log.Warn().
			Str("resource", resource).
			Str("resourceId", resourceID).
			Int("mismatchedFields", len(mismatches))
		for _, m := range mismatches {
			evt = evt.Interface("field."+m.Field, map[string]any{
				"expected": m.Expected,
				"actual":   m.Actual,
				"reason":   m.Reason,
			})
		}
		evt.Msg("verification mismatch")
		return Result{Confirmed: false, Mismatches: mismatches}, nil
	}

	return Result{Confirmed: true}, nil
}

func (e *Engine[T]) compareField(rec repository.Record, exp Expectation) *Mismatch {
	actual, present := rec.Field(exp.Field)

	switch exp.Kind {
	case KindString:
		return compareString(exp, actual, present)
	case KindCount:
		return compareNumeric(exp, actual, present, e.tolerance(exp, float64(e.cfg.CountDelta)))
	default:
		return compareNumeric(exp, actual, present, e.tolerance(exp, e.cfg.NumericTolerance))
	}
}

func (e *Engine[T]) tolerance(exp Expectation, fallback float64) float64 {
	if exp.Tolerance != nil {
		return *exp.Tolerance
	}
	return fallback
}

func compareString(exp Expectation, actual any, present bool) *Mismatch {
	// An absent or empty actual value always passes for enum/string fields.
	if !present || actual == nil {
		return nil
	}
	actualStr, ok := actual.(string)
	if !ok {
		return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: actual, Reason: "not a string"}
	}
	if actualStr == "" {
		return nil
	}
	expectedStr, _ := exp.Value.(string)
	if strings.EqualFold(actualStr, expectedStr) {
		return nil
	}
	return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: actual, Reason: "case-insensitive mismatch"}
}

func compareNumeric(exp Expectation, actual any, present bool, tolerance float64) *Mismatch {
	if !present {
		return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: nil, Reason: "field absent"}
	}
	expectedNum, ok := toFloat(exp.Value)
	if !ok {
		return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: actual, Reason: "expected value not numeric"}
	}
	actualNum, ok := toFloat(actual)
	if !ok {
		return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: actual, Reason: "actual value not numeric"}
	}
	if math.Abs(actualNum-expectedNum) <= tolerance {
		return nil
	}
	return &Mismatch{Field: exp.Field, Expected: exp.Value, Actual: actual, Reason: "outside tolerance"}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
