// Package runlog records sync run history in ops_data.sync_runs.
package runlog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/christmasair/ops-sync/internal/db"
)

// Run statuses. A run moves from running to exactly one terminal state.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry represents a row in ops_data.sync_runs.
type Entry struct {
	ID            string     `json:"id"`
	RunType       string     `json:"run_type"`
	Status        string     `json:"status"`
	JobsProcessed int        `json:"jobs_processed"`
	JobsCreated   int        `json:"jobs_created"`
	JobsUpdated   int        `json:"jobs_updated"`
	Errors        []string   `json:"errors,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Outcome holds the final tallies passed to Finalize.
type Outcome struct {
	Status    string
	Processed int
	Created   int
	Updated   int
	Errors    []string
}

// RunLog provides read/write access to the ops_data.sync_runs table.
type RunLog struct {
	pool db.Pool
}

// New creates a RunLog backed by the given connection pool.
func New(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a sync run and returns its ID.
func (r *RunLog) Start(ctx context.Context, runType string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ops_data.sync_runs (id, run_type, status, started_at)
		 VALUES ($1, $2, $3, now())`,
		id, runType, StatusRunning,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s run", runType)
	}
	return id, nil
}

// Progress updates the in-flight counters so a long run is observable.
func (r *RunLog) Progress(ctx context.Context, runID string, processed, created, updated int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ops_data.sync_runs
		 SET jobs_processed = $1, jobs_created = $2, jobs_updated = $3
		 WHERE id = $4 AND status = $5`,
		processed, created, updated, runID, StatusRunning,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: progress run %s", runID)
	}
	return nil
}

// Finalize moves a run to its terminal state. The status guard ensures a run
// is finalized at most once even if two callers race.
func (r *RunLog) Finalize(ctx context.Context, runID string, out Outcome) error {
	var errText *string
	if len(out.Errors) > 0 {
		joined := strings.Join(out.Errors, "\n")
		errText = &joined
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE ops_data.sync_runs
		 SET status = $1, jobs_processed = $2, jobs_created = $3, jobs_updated = $4,
		     errors = $5, finished_at = now()
		 WHERE id = $6 AND status = $7`,
		out.Status, out.Processed, out.Created, out.Updated,
		errText, runID, StatusRunning,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: finalize run %s", runID)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (r *RunLog) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, run_type, status, jobs_processed, jobs_created, jobs_updated,
		        errors, started_at, finished_at
		 FROM ops_data.sync_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText *string
		if err := rows.Scan(&e.ID, &e.RunType, &e.Status,
			&e.JobsProcessed, &e.JobsCreated, &e.JobsUpdated,
			&errText, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if errText != nil && *errText != "" {
			e.Errors = strings.Split(*errText, "\n")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
