package memory

import (
	"context"
	"sync"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/internal/errors"
	"gofactor/ports"
)

// ResultStore keeps study results in process memory. It backs runs when no
// database is configured and doubles as the store for tests. Results are
// treated as immutable once saved.
type ResultStore struct {
	mu      sync.RWMutex
	results map[core.RunID]*factor.StudyResult
	order   []core.RunID
}

// NewResultStore creates an empty in-memory store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[core.RunID]*factor.StudyResult),
	}
}

// Save stores a result keyed by its run ID. Saving the same ID again
// replaces the stored result in place.
func (s *ResultStore) Save(ctx context.Context, result *factor.StudyResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result == nil || result.RunID == "" {
		return errors.InvalidInput("result must carry a run ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.RunID]; !exists {
		s.order = append(s.order, result.RunID)
	}
	s.results[result.RunID] = result
	return nil
}

// Get returns the stored result for a run ID.
func (s *ResultStore) Get(ctx context.Context, id core.RunID) (*factor.StudyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return nil, errors.NotFound("run "+id.String(), core.ErrNotFound)
	}
	return result, nil
}

// List returns run summaries newest first. A non-positive limit returns
// every stored run.
func (s *ResultStore) List(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := len(s.order)
	if limit > 0 && limit < count {
		count = limit
	}

	summaries := make([]ports.RunSummary, 0, count)
	for i := len(s.order) - 1; i >= 0 && len(summaries) < count; i-- {
		result := s.results[s.order[i]]
		summaries = append(summaries, ports.RunSummary{
			RunID:        result.RunID,
			CreatedAt:    result.CreatedAt,
			GroupCount:   len(result.Groups),
			FailureCount: result.FailureCount(),
		})
	}
	return summaries, nil
}
