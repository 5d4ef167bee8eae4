package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named
	// operation. The same (name, seed) always yields the same stream, which is
	// how bootstrap runs stay reproducible regardless of worker scheduling.
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)
}
