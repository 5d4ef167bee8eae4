package quant

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
	"gofactor/ports"
)

// BootstrapEstimator measures how stable the inter-item correlation
// structure is between two groups. Each iteration independently resamples
// both groups without replacement, builds their correlation matrices, and
// rank-correlates the strictly-upper-triangular fingerprints; the resulting
// per-iteration scalars form the stability distribution.
type BootstrapEstimator struct {
	rngPort    ports.RNGPort
	numWorkers int
}

// NewBootstrapEstimator creates a new bootstrap estimator
func NewBootstrapEstimator(rngPort ports.RNGPort) *BootstrapEstimator {
	return &BootstrapEstimator{
		rngPort:    rngPort,
		numWorkers: 4,
	}
}

// BootstrapRequest describes one group-pair estimation. Self-pairs
// (MatrixA == MatrixB) are valid and should produce a mean near 1.
type BootstrapRequest struct {
	Pair       core.PairKey
	MatrixA    *survey.ItemMatrix
	MatrixB    *survey.ItemMatrix
	Measure    factor.Measure
	Fraction   float64
	Iterations int
	Seed       int64
}

type indexedSample struct {
	index int
	value float64
}

// Estimate runs the resampling loop across a worker pool and aggregates the
// per-iteration rank correlations into a BootstrapEstimate with mean and
// 2.5/97.5 percentile bounds.
//
// Iterations fan out over workers and fan in through an indexed channel;
// each iteration draws its randomness from a stream seeded by (pair, seed,
// iteration index), so the output is identical for a given seed regardless
// of worker count. Cancelling the context between iterations yields a
// partial estimate over the samples collected so far, which remain valid
// statistics on fewer draws.
func (e *BootstrapEstimator) Estimate(ctx context.Context, req BootstrapRequest) (*factor.BootstrapEstimate, error) {
	if req.Iterations < 1 {
		return nil, core.NewConfigurationError("bootstrap_iterations", "must be >= 1")
	}
	if req.Fraction <= 0 || req.Fraction > 1 {
		return nil, core.NewConfigurationError("bootstrap_fraction", "must be in (0,1]")
	}
	if req.MatrixA.ItemCount() < 2 {
		return nil, core.NewInsufficientDataError(2, req.MatrixA.ItemCount())
	}
	if !req.MatrixA.SameItems(req.MatrixB) {
		return nil, core.NewConfigurationError("items", "pair matrices must share the same ordered item set")
	}

	kA, err := sampleSize(req.Fraction, req.MatrixA.RowCount())
	if err != nil {
		return nil, err
	}
	kB, err := sampleSize(req.Fraction, req.MatrixB.RowCount())
	if err != nil {
		return nil, err
	}

	numWorkers := e.numWorkers
	if req.Iterations < 100 {
		numWorkers = 1
	}

	workChan := make(chan int, req.Iterations)
	resultChan := make(chan indexedSample, req.Iterations)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, req, kA, kB, workChan, resultChan)
		}()
	}

	go func() {
		for i := 0; i < req.Iterations; i++ {
			workChan <- i
		}
		close(workChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	collected := make([]indexedSample, 0, req.Iterations)
	for result := range resultChan {
		collected = append(collected, result)
	}
	if len(collected) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, core.NewInsufficientDataError(1, 0)
	}

	// Samples keep iteration order even when workers finish out of order.
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	samples := make([]float64, len(collected))
	for i, s := range collected {
		samples[i] = s.value
	}

	mean, _ := stats.Mean(samples)
	ciLow, errLow := stats.Percentile(samples, 2.5)
	ciHigh, errHigh := stats.Percentile(samples, 97.5)
	if errLow != nil {
		// Too few samples for an interior percentile; the empirical bound
		// is the extreme itself.
		ciLow, _ = stats.Min(samples)
	}
	if errHigh != nil {
		ciHigh, _ = stats.Max(samples)
	}

	return &factor.BootstrapEstimate{
		Pair:       req.Pair,
		Samples:    samples,
		Mean:       mean,
		CILow:      ciLow,
		CIHigh:     ciHigh,
		Iterations: len(samples),
		Fraction:   req.Fraction,
		Measure:    req.Measure,
	}, nil
}

// worker consumes iteration indices and produces one fingerprint
// correlation per index.
func (e *BootstrapEstimator) worker(ctx context.Context, req BootstrapRequest, kA, kB int, workChan <-chan int, resultChan chan<- indexedSample) {
	for index := range workChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rng := e.streamFor(ctx, req, index)

		sampleA := resampleRows(rng, req.MatrixA, kA)
		sampleB := resampleRows(rng, req.MatrixB, kB)

		corrA := CorrelationMatrixOf(sampleA, req.Measure)
		corrB := CorrelationMatrixOf(sampleB, req.Measure)

		// The fingerprint comparison is always Kendall's tau-b, matching
		// the study design: a rank correlation of correlation structures.
		tau := KendallTauB(corrA.UpperTriangle(), corrB.UpperTriangle())

		resultChan <- indexedSample{index: index, value: tau}
	}
}

// streamFor derives the deterministic RNG for one iteration.
func (e *BootstrapEstimator) streamFor(ctx context.Context, req BootstrapRequest, index int) *rand.Rand {
	name := fmt.Sprintf("bootstrap:%s:%d", req.Pair, index)
	rng, err := e.rngPort.SeededStream(ctx, name, req.Seed)
	if err != nil {
		rng = rand.New(rand.NewSource(req.Seed + int64(index)))
	}
	return rng
}

// sampleSize converts the resample fraction into a row count. Fewer than two
// sampled rows leaves correlation undefined, which is fatal for the call.
func sampleSize(fraction float64, rows int) (int, error) {
	k := int(float64(rows)*fraction + 0.5)
	if k > rows {
		k = rows
	}
	if k < 2 {
		return 0, core.NewInsufficientDataError(2, k)
	}
	return k, nil
}

// resampleRows draws k rows without replacement: Fisher-Yates over the index
// slice, then the prefix.
func resampleRows(rng *rand.Rand, m *survey.ItemMatrix, k int) *survey.ItemMatrix {
	indices := make([]int, m.RowCount())
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}
	return m.SampleRows(indices[:k])
}
