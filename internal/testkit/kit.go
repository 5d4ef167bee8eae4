package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gofactor/adapters/memory"
	"gofactor/adapters/rng"
	"gofactor/domain/survey"
	"gofactor/ports"
)

// TestKit bundles the deterministic fakes and synthetic fixtures that
// pipeline tests share.
type TestKit struct {
	store *memory.ResultStore
	sink  *CollectorSink
}

// NewTestKit creates a kit with a fresh in-memory store and event collector.
func NewTestKit() *TestKit {
	return &TestKit{
		store: memory.NewResultStore(),
		sink:  &CollectorSink{},
	}
}

// RNGAdapter returns a stream source for tests. The production adapter is
// already fully deterministic, so tests use it as is.
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.New()
}

// Store returns the kit's in-memory result store.
func (t *TestKit) Store() *memory.ResultStore {
	return t.store
}

// Sink returns the kit's event collector.
func (t *TestKit) Sink() *CollectorSink {
	return t.sink
}

// CollectorSink records published progress events for assertions.
type CollectorSink struct {
	mu     sync.Mutex
	events []ports.ProgressEvent
}

// Publish appends an event. Safe for concurrent publishers.
func (c *CollectorSink) Publish(event ports.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of everything published so far.
func (c *CollectorSink) Events() []ports.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.ProgressEvent(nil), c.events...)
}

// KindCount returns how many events of one kind were published.
func (c *CollectorSink) KindCount(kind ports.EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, event := range c.events {
		if event.Kind == kind {
			count++
		}
	}
	return count
}

// Synthetic study table layout: auxiliary respondent columns followed by
// twelve Likert items loading on three latent factors, four items each.
const (
	studyItemCount = 12
	itemsPerFactor = 4
	missingRate    = 0.02
)

// StudyColumns returns the synthetic table header in export order.
func StudyColumns() []string {
	cols := []string{"uloga", "cesto", "formatUp", "hidden", "interviewtime"}
	for i := 0; i < studyItemCount; i++ {
		cols = append(cols, fmt.Sprintf("g%02d", i+1))
	}
	return cols
}

// GenerateStudyTable builds a synthetic survey table shaped like the real
// export: a role column where most respondents are in the study population,
// a visit-frequency column, the format and order-rotation assignment
// columns, a completion time, and the questionnaire items with a sprinkle
// of missing answers.
func GenerateStudyTable(rows int, seed int64) *survey.Table {
	r := rand.New(rand.NewSource(seed))
	columns := StudyColumns()
	data := make([][]float64, rows)

	for i := range data {
		row := make([]float64, len(columns))

		role := 2.0
		if r.Float64() < 0.15 {
			role = 1.0
		}
		row[0] = role
		row[1] = float64(r.Intn(6))
		format := float64(1 + r.Intn(2))
		row[2] = format
		row[3] = r.Float64() * 100
		// Completion times are roughly log-normal; the slide format runs a
		// bit slower.
		row[4] = math.Exp(r.NormFloat64()*0.6+5.3) * (1 + 0.15*(format-1))

		var latent [3]float64
		for f := range latent {
			latent[f] = r.NormFloat64()
		}
		for j := 0; j < studyItemCount; j++ {
			value := likert(3 + 0.9*latent[j/itemsPerFactor] + 0.6*r.NormFloat64())
			if r.Float64() < missingRate {
				value = math.NaN()
			}
			row[5+j] = value
		}
		data[i] = row
	}
	return survey.NewTable(columns, data)
}

// likert clamps a continuous draw onto the 1..5 response scale.
func likert(v float64) float64 {
	value := math.Round(v)
	if value < 1 {
		value = 1
	}
	if value > 5 {
		value = 5
	}
	return value
}
