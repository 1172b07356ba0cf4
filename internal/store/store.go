// Package store persists canonical job records, technician reference data,
// and trade overrides in Postgres under the ops_data schema.
package store

import (
	"context"
	"time"

	"github.com/christmasair/ops-sync/internal/db"
)

// Job is the canonical per-job record written by a sync run. Pointer fields
// are nullable: a nil value is never allowed to clobber stored data on update.
type Job struct {
	STJobID          int64
	JobNumber        string
	Status           string
	Trade            string
	BusinessUnitID   *int64
	BusinessUnitName *string
	JobTypeName      *string
	CustomerID       *int64
	CustomerName     *string
	CustomerPhone    *string
	CustomerEmail    *string
	LocationID       *int64
	LocationAddress  *string
	ScheduledDate    *string
	CompletedDate    *string
	Total            *float64
	InvoiceID        *int64
	InvoiceNumber    *string
	InvoiceDate      *time.Time
	LaborHours       *float64
	LaborCost        *float64
	PrimaryTechID    *int64
	TechnicianCount  *int
	Summary          *string
}

// JobMeta is the slice of a stored job needed to route a sync write.
type JobMeta struct {
	STJobID       int64
	InvoiceNumber *string
}

// Enrichment carries the best-effort fields written after the main sync pass.
type Enrichment struct {
	CustomerName    *string
	CustomerPhone   *string
	CustomerEmail   *string
	LocationAddress *string
	InvoiceNumber   *string
	InvoiceDate     *time.Time
}

// TechnicianRow is the reference-data shape synced from the dispatch roster.
// Hourly rates are maintained by hand in the table and never written here.
type TechnicianRow struct {
	STID             int64
	Name             string
	Active           bool
	BusinessUnitID   *int64
	BusinessUnitName *string
}

// PostgresStore implements the sync persistence layer using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// Pool exposes the underlying pool for migrations and run logging.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// NewWithPool wraps an existing pool, primarily for tests.
func NewWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}
