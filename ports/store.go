package ports

import (
	"context"
	"time"

	"gofactor/domain/core"
	"gofactor/domain/factor"
)

// RunSummary is the listing row for a stored study result.
type RunSummary struct {
	RunID        core.RunID `json:"run_id"`
	CreatedAt    time.Time  `json:"created_at"`
	GroupCount   int        `json:"group_count"`
	FailureCount int        `json:"failure_count"`
}

// ResultStore persists study results keyed by run ID.
type ResultStore interface {
	Save(ctx context.Context, result *factor.StudyResult) error
	Get(ctx context.Context, id core.RunID) (*factor.StudyResult, error)
	List(ctx context.Context, limit int) ([]RunSummary, error)
}
