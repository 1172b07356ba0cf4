package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/christmasair/ops-sync/internal/reconcile"
	"github.com/christmasair/ops-sync/internal/runlog"
	"github.com/christmasair/ops-sync/internal/store"
	"github.com/christmasair/ops-sync/pkg/servicetitan"
)

// appEnv wires the store, run log, and engine for a command invocation.
type appEnv struct {
	store  *store.PostgresStore
	runs   *runlog.RunLog
	engine *reconcile.Engine
}

func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.ServiceTitan.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("config: store.database_url is required")
	}

	loc, err := cfg.Sync.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}

	client := servicetitan.NewClient(servicetitan.Credentials{
		ClientID:     cfg.ServiceTitan.ClientID,
		ClientSecret: cfg.ServiceTitan.ClientSecret,
		AppKey:       cfg.ServiceTitan.AppKey,
		TenantID:     cfg.ServiceTitan.TenantID,
	},
		servicetitan.WithBaseURL(cfg.ServiceTitan.BaseURL),
		servicetitan.WithAuthURL(cfg.ServiceTitan.AuthURL),
		servicetitan.WithRateLimit(cfg.ServiceTitan.RPS),
	)

	runs := runlog.New(st.Pool())
	engine := reconcile.New(client, st, runs, reconcile.Config{
		HorizonDays:   cfg.Sync.HorizonDays,
		LookbackDays:  cfg.Sync.LookbackDays,
		EnrichTimeout: cfg.Sync.EnrichTimeout(),
		EnrichWorkers: cfg.Sync.EnrichWorkers,
		Location:      loc,
	})

	return &appEnv{store: st, runs: runs, engine: engine}, nil
}

func (e *appEnv) Close() {
	e.store.Close()
}
