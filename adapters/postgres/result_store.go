package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/internal/errors"
	"gofactor/ports"
)

// resultStore implements ports.ResultStore on PostgreSQL. Each run is one
// row: the full result as a JSONB payload plus summary columns so listings
// never deserialize whole runs.
type resultStore struct {
	db *sqlx.DB
}

// NewResultStore creates a result store backed by the given connection.
func NewResultStore(db *sqlx.DB) ports.ResultStore {
	return &resultStore{db: db}
}

// EnsureSchema creates the study_runs table and its listing index when
// missing. Called once at startup before the store is used.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS study_runs (
			run_id TEXT PRIMARY KEY,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			group_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			payload JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create study_runs table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_study_runs_created_at
		ON study_runs (created_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create study_runs index: %w", err)
	}

	return nil
}

// Save inserts a run, replacing any earlier row with the same ID.
func (s *resultStore) Save(ctx context.Context, result *factor.StudyResult) error {
	if result == nil || result.RunID == "" {
		return errors.InvalidInput("result must carry a run ID")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal study result: %w", err)
	}

	query := `INSERT INTO study_runs (
		run_id, created_at, group_count, failure_count, payload
	) VALUES (
		$1, $2, $3, $4, $5
	) ON CONFLICT (run_id) DO UPDATE SET
		created_at = EXCLUDED.created_at,
		group_count = EXCLUDED.group_count,
		failure_count = EXCLUDED.failure_count,
		payload = EXCLUDED.payload`

	_, err = s.db.ExecContext(ctx, query,
		result.RunID.String(), result.CreatedAt,
		len(result.Groups), result.FailureCount(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save study result: %w", err)
	}

	return nil
}

// Get retrieves the full result for a run ID.
func (s *resultStore) Get(ctx context.Context, id core.RunID) (*factor.StudyResult, error) {
	query := `SELECT payload FROM study_runs WHERE run_id = $1`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("run "+id.String(), core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get study result: %w", err)
	}

	var result factor.StudyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal study result: %w", err)
	}

	return &result, nil
}

// List returns run summaries newest first. A non-positive limit returns
// every stored run.
func (s *resultStore) List(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `SELECT run_id, created_at, group_count, failure_count
		FROM study_runs
		ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query study runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]ports.RunSummary, 0)
	for rows.Next() {
		var summary ports.RunSummary
		var runID string
		if err := rows.Scan(&runID, &summary.CreatedAt, &summary.GroupCount, &summary.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan study run: %w", err)
		}
		summary.RunID = core.RunID(runID)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read study runs: %w", err)
	}

	return summaries, nil
}
