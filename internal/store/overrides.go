package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// tradeOverridesKey is the settings row holding the business-unit → trade map.
const tradeOverridesKey = "business_unit_trades"

// TradeOverrides returns the manual business-unit-name → trade mapping, or an
// empty map when none has been seeded.
func (s *PostgresStore) TradeOverrides(ctx context.Context) (map[string]string, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM ops_data.settings WHERE key = $1`,
		tradeOverridesKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: query trade overrides")
	}

	overrides := make(map[string]string)
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, eris.Wrap(err, "store: decode trade overrides")
	}
	return overrides, nil
}

// SeedTradeOverrides loads a YAML file of business-unit-name → trade entries
// and stores it as the active override map, replacing any previous seed.
func (s *PostgresStore) SeedTradeOverrides(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "store: read override seed %s", path)
	}

	overrides := make(map[string]string)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return 0, eris.Wrapf(err, "store: parse override seed %s", path)
	}

	raw, err := json.Marshal(overrides)
	if err != nil {
		return 0, eris.Wrap(err, "store: encode trade overrides")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ops_data.settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		tradeOverridesKey, raw,
	)
	if err != nil {
		return 0, eris.Wrap(err, "store: write trade overrides")
	}
	return len(overrides), nil
}
