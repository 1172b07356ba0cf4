package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/christmasair/ops-sync/internal/db"
)

// UpsertTechnicians syncs the dispatch roster into the reference table.
// hourly_rate is intentionally absent from the column set: it is curated by
// the office staff and must survive every sync untouched.
func (s *PostgresStore) UpsertTechnicians(ctx context.Context, techs []TechnicianRow) error {
	if len(techs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(techs))
	for _, t := range techs {
		rows = append(rows, []any{t.STID, t.Name, t.Active, t.BusinessUnitID, t.BusinessUnitName, now})
	}

	cfg := db.UpsertConfig{
		Table:        "ops_data.technicians",
		Columns:      []string{"st_id", "name", "active", "business_unit_id", "business_unit_name", "synced_at"},
		ConflictKeys: []string{"st_id"},
	}
	if _, err := db.BulkUpsert(ctx, s.pool, cfg, rows); err != nil {
		return eris.Wrap(err, "store: upsert technicians")
	}
	return nil
}

// TechnicianRates loads the curated hourly rates keyed by ServiceTitan
// technician ID. Technicians without a rate map to nil.
func (s *PostgresStore) TechnicianRates(ctx context.Context) (map[int64]*float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT st_id, hourly_rate FROM ops_data.technicians`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query technician rates")
	}
	defer rows.Close()

	rates := make(map[int64]*float64)
	for rows.Next() {
		var id int64
		var rate *float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, eris.Wrap(err, "store: scan technician rate")
		}
		rates[id] = rate
	}
	return rates, rows.Err()
}
