package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/christmasair/ops-sync/internal/auth"
	"github.com/christmasair/ops-sync/internal/reconcile"
)

var servePort int

// runner is the slice of the engine the trigger endpoint needs.
type runner interface {
	Run(ctx context.Context, runType string) (*reconcile.Summary, error)
}

// triggerResponse is the JSON summary returned by the trigger endpoint.
type triggerResponse struct {
	Success       bool     `json:"success"`
	JobsProcessed int      `json:"jobs_processed"`
	JobsCreated   int      `json:"jobs_created"`
	JobsUpdated   int      `json:"jobs_updated"`
	Errors        []string `json:"errors,omitempty"`
}

// triggerHandler runs a sync synchronously and reports the summary. Per-job
// errors still count as success; only a fatal run failure is non-200.
func triggerHandler(eng runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := eng.Run(r.Context(), "manual")
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			zap.L().Error("triggered sync failed", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(triggerResponse{
				Success: false,
				Errors:  []string{err.Error()},
			})
			return
		}

		json.NewEncoder(w).Encode(triggerResponse{
			Success:       true,
			JobsProcessed: sum.Processed,
			JobsCreated:   sum.Created,
			JobsUpdated:   sum.Updated,
			Errors:        sum.Errors,
		})
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing the sync trigger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(chimw.RequestID)
		r.Use(chimw.Recoverer)
		if len(cfg.Server.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.Server.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost},
				AllowedHeaders:   []string{"Authorization", "Content-Type", auth.SecretHeader},
				AllowCredentials: true,
			}))
		}

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		roles := auth.NewPgRoleSource(env.store.Pool())
		r.Route("/api/sync", func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Server.SharedSecret, roles))
			r.Post("/trigger", triggerHandler(env.engine))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
