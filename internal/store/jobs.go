package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// GetJobMeta returns the stored routing metadata for a ServiceTitan job,
// or nil when the job has not been synced before.
func (s *PostgresStore) GetJobMeta(ctx context.Context, stJobID int64) (*JobMeta, error) {
	var meta JobMeta
	err := s.pool.QueryRow(ctx,
		`SELECT st_job_id, invoice_number FROM ops_data.jobs WHERE st_job_id = $1`,
		stJobID,
	).Scan(&meta.STJobID, &meta.InvoiceNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get job meta %d", stJobID)
	}
	return &meta, nil
}

const insertJobSQL = `
	INSERT INTO ops_data.jobs (
		st_job_id, job_number, status, trade,
		business_unit_id, business_unit_name, job_type_name,
		customer_id, customer_name, customer_phone, customer_email,
		location_id, location_address,
		scheduled_date, completed_date, total,
		invoice_id, invoice_number, invoice_date,
		labor_hours, labor_cost, primary_tech_id, technician_count,
		summary, synced_at, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9, $10, $11,
		$12, $13,
		$14, $15, $16,
		$17, $18, $19,
		$20, $21, $22, $23,
		$24, now(), now()
	)`

// InsertJob writes a brand new canonical job record. Nil fields insert as NULL.
func (s *PostgresStore) InsertJob(ctx context.Context, j Job) error {
	_, err := s.pool.Exec(ctx, insertJobSQL,
		j.STJobID, j.JobNumber, j.Status, j.Trade,
		j.BusinessUnitID, j.BusinessUnitName, j.JobTypeName,
		j.CustomerID, j.CustomerName, j.CustomerPhone, j.CustomerEmail,
		j.LocationID, j.LocationAddress,
		j.ScheduledDate, j.CompletedDate, j.Total,
		j.InvoiceID, j.InvoiceNumber, j.InvoiceDate,
		j.LaborHours, j.LaborCost, j.PrimaryTechID, j.TechnicianCount,
		j.Summary,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert job %d", j.STJobID)
	}
	return nil
}

// COALESCE on every derived or enriched column keeps a previously stored
// value when the fresh sync computed nothing for it. Identity fields
// (status, job number, trade) always reflect the latest upstream state.
const updateJobSQL = `
	UPDATE ops_data.jobs SET
		job_number        = $2,
		status            = $3,
		trade             = $4,
		business_unit_id  = COALESCE($5, business_unit_id),
		business_unit_name = COALESCE($6, business_unit_name),
		job_type_name     = COALESCE($7, job_type_name),
		customer_id       = COALESCE($8, customer_id),
		location_id       = COALESCE($9, location_id),
		scheduled_date    = COALESCE($10, scheduled_date),
		completed_date    = COALESCE($11, completed_date),
		total             = COALESCE($12, total),
		invoice_id        = COALESCE($13, invoice_id),
		labor_hours       = COALESCE($14, labor_hours),
		labor_cost        = COALESCE($15, labor_cost),
		primary_tech_id   = COALESCE($16, primary_tech_id),
		technician_count  = COALESCE($17, technician_count),
		summary           = COALESCE($18, summary),
		synced_at         = now(),
		updated_at        = now()
	WHERE st_job_id = $1`

// UpdateJob refreshes an existing canonical record from a new sync pass.
func (s *PostgresStore) UpdateJob(ctx context.Context, j Job) error {
	_, err := s.pool.Exec(ctx, updateJobSQL,
		j.STJobID, j.JobNumber, j.Status, j.Trade,
		j.BusinessUnitID, j.BusinessUnitName, j.JobTypeName,
		j.CustomerID, j.LocationID,
		j.ScheduledDate, j.CompletedDate, j.Total,
		j.InvoiceID,
		j.LaborHours, j.LaborCost, j.PrimaryTechID, j.TechnicianCount,
		j.Summary,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update job %d", j.STJobID)
	}
	return nil
}

const enrichJobSQL = `
	UPDATE ops_data.jobs SET
		customer_name    = COALESCE($2, customer_name),
		customer_phone   = COALESCE($3, customer_phone),
		customer_email   = COALESCE($4, customer_email),
		location_address = COALESCE($5, location_address),
		invoice_number   = COALESCE($6, invoice_number),
		invoice_date     = COALESCE($7, invoice_date),
		updated_at       = now()
	WHERE st_job_id = $1`

// UpdateJobEnrichment applies best-effort contact and invoice detail.
func (s *PostgresStore) UpdateJobEnrichment(ctx context.Context, stJobID int64, e Enrichment) error {
	_, err := s.pool.Exec(ctx, enrichJobSQL,
		stJobID,
		e.CustomerName, e.CustomerPhone, e.CustomerEmail,
		e.LocationAddress,
		e.InvoiceNumber, e.InvoiceDate,
	)
	if err != nil {
		return eris.Wrapf(err, "store: enrich job %d", stJobID)
	}
	return nil
}
