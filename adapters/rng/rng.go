package rng

import (
	"context"
	"math/rand"
)

// Adapter derives deterministic rand streams from a base seed and a stream
// name. Folding the name into the seed gives every named operation its own
// independent sequence, so two consumers sharing a seed never share a
// generator.
type Adapter struct{}

// New creates the production stream source.
func New() *Adapter {
	return &Adapter{}
}

// SeededStream returns a generator seeded by the run seed combined with the
// stream name. The same (name, seed) pair always replays the same sequence.
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(seed ^ hashName(name))), nil
}

// hashName folds a stream name into a stable 64-bit value (djb2).
func hashName(name string) int64 {
	h := int64(5381)
	for _, r := range name {
		h = h*33 + int64(r)
	}
	return h
}
