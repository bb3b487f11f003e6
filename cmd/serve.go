package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/monitoring"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

var servePort int

// runSubmitter starts a pipeline run in the background and returns its
// run ID.
type runSubmitter interface {
	Submit(ctx context.Context, rawURL, trigger string) (string, error)
}

// serveDeps holds what the HTTP handlers need.
type serveDeps struct {
	Store          store.Store
	Submitter      runSubmitter
	Collector      *monitoring.Collector
	AllowedOrigins []string
	LookbackHours  int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(serveDeps{
			Store:          env.Store,
			Submitter:      env.Pipeline,
			Collector:      monitoring.NewCollector(env.Store),
			AllowedOrigins: cfg.Server.AllowedOrigins,
			LookbackHours:  cfg.Monitoring.LookbackWindowHours,
		})

		// Background alerting alongside the API.
		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
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

func newRouter(deps serveDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/fingerprint", deps.handleWebhookFingerprint)
	r.Get("/api/runs", deps.handleListRuns)
	r.Get("/api/runs/{id}", deps.handleGetRun)
	r.Get("/api/businesses/{id}/fingerprint", deps.handleGetFingerprint)
	r.Get("/api/metrics", deps.handleMetrics)

	return r
}

func (d serveDeps) handleWebhookFingerprint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	runID, err := d.Submitter.Submit(r.Context(), req.URL, "webhook")
	if err != nil {
		zap.L().Error("webhook: submit run", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": runID,
		"url":    req.URL,
	})
}

func (d serveDeps) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	runs, err := d.Store.ListRuns(r.Context(), store.RunFilter{
		Status:     model.RunStatus(q.Get("status")),
		URL:        q.Get("url"),
		BusinessID: q.Get("business_id"),
		Limit:      limit,
	})
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (d serveDeps) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := d.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (d serveDeps) handleGetFingerprint(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "id")
	fp, err := d.Store.GetLatestFingerprint(r.Context(), businessID)
	if err != nil {
		zap.L().Error("api: get fingerprint", zap.String("business_id", businessID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load fingerprint")
		return
	}
	if fp == nil {
		writeError(w, http.StatusNotFound, "no fingerprint for business")
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (d serveDeps) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := d.Collector.Collect(r.Context(), d.LookbackHours)
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
