package quant

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sync/atomic"
	"testing"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// hashRNG is a deterministic stream source: one independent substream per
// stream name, like the production adapter.
type hashRNG struct{}

func (hashRNG) SeededStream(_ context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed ^ nameHash(name))), nil
}

// failRNG simulates an unavailable stream source to exercise the fallback.
type failRNG struct{}

func (failRNG) SeededStream(_ context.Context, _ string, _ int64) (*rand.Rand, error) {
	return nil, errors.New("stream source unavailable")
}

// cancelAfterRNG cancels a context once a fixed number of streams has been
// handed out, so a run can be interrupted mid-flight deterministically.
type cancelAfterRNG struct {
	calls  int64
	limit  int64
	cancel context.CancelFunc
}

func (c *cancelAfterRNG) SeededStream(_ context.Context, name string, seed int64) (*rand.Rand, error) {
	if atomic.AddInt64(&c.calls, 1) == c.limit {
		c.cancel()
	}
	return rand.New(rand.NewSource(seed ^ nameHash(name))), nil
}

func nameHash(name string) int64 {
	h := int64(5381)
	for _, r := range name {
		h = h*33 + int64(r)
	}
	return h
}

func selfPairRequest(m *survey.ItemMatrix, iterations int) BootstrapRequest {
	return BootstrapRequest{
		Pair:       core.PairKey{GroupA: "format1_orderA", GroupB: "format1_orderA"},
		MatrixA:    m,
		MatrixB:    m,
		Measure:    factor.MeasureKendall,
		Fraction:   0.6,
		Iterations: iterations,
		Seed:       42,
	}
}

// TestBootstrap_SelfPairStability verifies a group compared against itself
// produces a mean rank correlation close to 1 with a narrow interval.
func TestBootstrap_SelfPairStability(t *testing.T) {
	// Widely spread pairwise correlations keep the fingerprint ordering
	// stable across resamples.
	m := makeChainMatrix(600, []float64{0.15, 0.7, 1.3, 2.2, 4.0}, 61)
	estimator := NewBootstrapEstimator(hashRNG{})

	est, err := estimator.Estimate(context.Background(), selfPairRequest(m, 150))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if est.Iterations != 150 || len(est.Samples) != 150 {
		t.Fatalf("Expected 150 samples, got iterations=%d len=%d", est.Iterations, len(est.Samples))
	}
	if est.Mean <= 0.9 {
		t.Errorf("Expected self-pair mean > 0.9, got %f", est.Mean)
	}
	if est.CIHigh > 1+1e-9 {
		t.Errorf("CI upper bound above 1: %f", est.CIHigh)
	}
	if est.CILow > est.Mean || est.Mean > est.CIHigh {
		t.Errorf("Mean %f outside interval [%f, %f]", est.Mean, est.CILow, est.CIHigh)
	}
	if width := est.CIHigh - est.CILow; width > 0.25 {
		t.Errorf("Expected a narrow self-pair interval, got width %f", width)
	}
	for i, s := range est.Samples {
		if s < -1-1e-9 || s > 1+1e-9 {
			t.Errorf("Sample %d outside [-1,1]: %f", i, s)
		}
	}
	if est.Fraction != 0.6 || est.Measure != factor.MeasureKendall {
		t.Errorf("Estimate should echo fraction and measure, got %f %s", est.Fraction, est.Measure)
	}

	t.Logf("Self-pair: mean=%.3f CI=[%.3f, %.3f]", est.Mean, est.CILow, est.CIHigh)
}

// TestBootstrap_UnrelatedGroupsNearZero verifies structurally unrelated
// matrices produce a mean near zero and a clearly wider interval than a
// self-pair.
func TestBootstrap_UnrelatedGroupsNearZero(t *testing.T) {
	a := makeNoiseMatrix(250, 12, 67)
	b := makeNoiseMatrix(250, 12, 71)
	estimator := NewBootstrapEstimator(hashRNG{})

	req := BootstrapRequest{
		Pair:       core.PairKey{GroupA: "format1_orderA", GroupB: "format2_orderB"},
		MatrixA:    a,
		MatrixB:    b,
		Measure:    factor.MeasureKendall,
		Fraction:   0.6,
		Iterations: 150,
		Seed:       42,
	}
	unrelated, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if math.Abs(unrelated.Mean) > 0.3 {
		t.Errorf("Expected mean near 0 for unrelated groups, got %f", unrelated.Mean)
	}
	if unrelated.CILow > unrelated.Mean || unrelated.Mean > unrelated.CIHigh {
		t.Errorf("Mean %f outside interval [%f, %f]", unrelated.Mean, unrelated.CILow, unrelated.CIHigh)
	}

	self, err := estimator.Estimate(context.Background(),
		selfPairRequest(makeChainMatrix(600, []float64{0.15, 0.7, 1.3, 2.2, 4.0}, 61), 150))
	if err != nil {
		t.Fatalf("Self estimate failed: %v", err)
	}

	widthUnrelated := unrelated.CIHigh - unrelated.CILow
	widthSelf := self.CIHigh - self.CILow
	if widthUnrelated <= widthSelf {
		t.Errorf("Expected unrelated interval (%f) wider than self-pair interval (%f)",
			widthUnrelated, widthSelf)
	}
	if self.Mean < unrelated.Mean+0.4 {
		t.Errorf("Expected clear separation between self mean (%f) and unrelated mean (%f)",
			self.Mean, unrelated.Mean)
	}

	t.Logf("Unrelated: mean=%.3f CI=[%.3f, %.3f]", unrelated.Mean, unrelated.CILow, unrelated.CIHigh)
}

// TestBootstrap_DeterministicForSeed verifies identical requests replay
// identical sample sequences, and a different seed diverges.
func TestBootstrap_DeterministicForSeed(t *testing.T) {
	m := makeChainMatrix(100, []float64{0.2, 0.8, 1.6}, 73)
	estimator := NewBootstrapEstimator(hashRNG{})
	req := selfPairRequest(m, 50)

	first, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("First estimate failed: %v", err)
	}
	second, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Second estimate failed: %v", err)
	}
	if !reflect.DeepEqual(first.Samples, second.Samples) {
		t.Error("Same seed should replay the same samples")
	}

	req.Seed = 43
	other, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Reseeded estimate failed: %v", err)
	}
	if reflect.DeepEqual(first.Samples, other.Samples) {
		t.Error("Different seed should change the samples")
	}
}

// TestBootstrap_WorkerCountInvariant verifies the per-iteration streams make
// results independent of pool size.
func TestBootstrap_WorkerCountInvariant(t *testing.T) {
	m := makeChainMatrix(100, []float64{0.2, 0.8, 1.6}, 79)
	req := selfPairRequest(m, 120)

	serial := NewBootstrapEstimator(hashRNG{})
	serial.numWorkers = 1
	parallel := NewBootstrapEstimator(hashRNG{})
	parallel.numWorkers = 4

	fromSerial, err := serial.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Serial estimate failed: %v", err)
	}
	fromParallel, err := parallel.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Parallel estimate failed: %v", err)
	}

	if !reflect.DeepEqual(fromSerial.Samples, fromParallel.Samples) {
		t.Error("Worker count changed the sample sequence")
	}
}

// TestBootstrap_FallbackStream verifies estimation proceeds deterministically
// when the stream source is unavailable.
func TestBootstrap_FallbackStream(t *testing.T) {
	m := makeChainMatrix(100, []float64{0.2, 0.8, 1.6}, 83)
	estimator := NewBootstrapEstimator(failRNG{})
	req := selfPairRequest(m, 40)

	first, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Estimate with fallback failed: %v", err)
	}
	second, err := estimator.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("Second estimate with fallback failed: %v", err)
	}

	if !reflect.DeepEqual(first.Samples, second.Samples) {
		t.Error("Fallback streams should still be deterministic")
	}
}

// TestBootstrap_PartialOnCancel verifies cancellation between iterations
// keeps the samples already collected.
func TestBootstrap_PartialOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := makeChainMatrix(60, []float64{0.2, 0.8, 1.6}, 89)
	estimator := NewBootstrapEstimator(&cancelAfterRNG{limit: 30, cancel: cancel})

	est, err := estimator.Estimate(ctx, selfPairRequest(m, 400))
	if err != nil {
		t.Fatalf("Expected partial estimate, got error: %v", err)
	}

	if est.Iterations == 0 {
		t.Fatal("Expected at least one collected sample")
	}
	if est.Iterations >= 400 {
		t.Fatalf("Expected an interrupted run, got all %d iterations", est.Iterations)
	}
	if len(est.Samples) != est.Iterations {
		t.Errorf("Iterations %d should match samples %d", est.Iterations, len(est.Samples))
	}

	t.Logf("Collected %d of 400 iterations before cancellation", est.Iterations)
}

// TestBootstrap_CancelledBeforeStart verifies a dead context yields an error
func TestBootstrap_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := makeChainMatrix(60, []float64{0.2, 0.8, 1.6}, 97)
	estimator := NewBootstrapEstimator(hashRNG{})

	if _, err := estimator.Estimate(ctx, selfPairRequest(m, 200)); err == nil {
		t.Error("Expected an error when cancelled before any iteration")
	}
}

// TestBootstrap_ValidationErrors verifies precondition failures
func TestBootstrap_ValidationErrors(t *testing.T) {
	m := makeChainMatrix(60, []float64{0.2, 0.8, 1.6}, 101)
	estimator := NewBootstrapEstimator(hashRNG{})

	tests := []struct {
		name   string
		mutate func(*BootstrapRequest)
		want   error
	}{
		{"zero iterations", func(r *BootstrapRequest) { r.Iterations = 0 }, core.ErrInvalidConfiguration},
		{"zero fraction", func(r *BootstrapRequest) { r.Fraction = 0 }, core.ErrInvalidConfiguration},
		{"fraction above one", func(r *BootstrapRequest) { r.Fraction = 1.5 }, core.ErrInvalidConfiguration},
		{
			"single item",
			func(r *BootstrapRequest) {
				one := &survey.ItemMatrix{Items: m.Items[:1], Rows: [][]float64{{1}, {2}, {3}}}
				r.MatrixA, r.MatrixB = one, one
			},
			core.ErrInsufficientData,
		},
		{
			"mismatched items",
			func(r *BootstrapRequest) {
				r.MatrixB = makeNoiseMatrix(60, 4, 103)
			},
			core.ErrInvalidConfiguration,
		},
		{
			"fraction yields one row",
			func(r *BootstrapRequest) {
				tiny := &survey.ItemMatrix{
					Items: m.Items,
					Rows:  [][]float64{{1, 2, 3}, {4, 5, 6}},
				}
				r.MatrixA, r.MatrixB = tiny, tiny
				r.Fraction = 0.5
			},
			core.ErrInsufficientData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := selfPairRequest(m, 50)
			tt.mutate(&req)
			_, err := estimator.Estimate(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
