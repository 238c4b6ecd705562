package verify

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config carries the engine's tolerance defaults. The magnitudes were tuned
// against observed false positives, not derived from first principles, so
// deployments are expected to adjust them to their own write latency.
type Config struct {
	// Grace is the fixed interval waited before the re-read, letting
	// asynchronous side-effects of the write settle.
	Grace time.Duration

	// NumericTolerance is the default |actual - expected| window for numeric
	// fields. Non-zero so currency rounding passes.
	NumericTolerance float64

	// CountDelta is the default absolute difference accepted on count fields.
	CountDelta int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Grace:            200 * time.Millisecond,
		NumericTolerance: 0.01,
		CountDelta:       1,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Grace, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
		validation.Field(&c.NumericTolerance, validation.Min(0.0)),
		validation.Field(&c.CountDelta, validation.Min(0)),
	)
}
