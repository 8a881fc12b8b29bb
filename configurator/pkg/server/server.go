package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adlabs/taxonomy-wizard/configurator/pkg/metrics"
	"github.com/adlabs/taxonomy-wizard/configurator/pkg/taxonomy"
)

const actionOverwrite = "overwrite"

// Server exposes the configuration endpoint: it turns spreadsheet-authored
// taxonomy declarations into validation query templates and dictionary
// lookup tables in the warehouse.
type Server struct {
	log      *slog.Logger
	cfg      Config
	clock    clockwork.Clock
	renderer *taxonomy.Renderer
	httpSrv  *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	renderer, err := taxonomy.NewRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:      cfg.Logger,
		cfg:      cfg,
		clock:    cfg.Clock,
		renderer: renderer,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Post("/", s.configureHandler)
	router.Get("/healthz", s.healthzHandler)
	router.Get("/readyz", s.healthzHandler)
	router.Get("/version", s.versionHandler)
	router.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) configureHandler(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action != actionOverwrite {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid value '%s' for 'action'.", action))
		return
	}

	var req taxonomy.ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %s.", err))
		return
	}

	started := s.clock.Now()
	err := s.configure(r.Context(), req)
	metrics.ConfigRunDuration.Observe(s.clock.Since(started).Seconds())
	if err != nil {
		metrics.ConfigRunsTotal.WithLabelValues("error").Inc()
		s.log.Error("server: configuration run failed", "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.ConfigRunsTotal.WithLabelValues("success").Inc()

	s.writeJSON(w, http.StatusOK, map[string]string{"response": "Successfully generated tables."})
}

func (s *Server) configure(ctx context.Context, req taxonomy.ConfigRequest) error {
	set, err := taxonomy.Assemble(s.log, req)
	if err != nil {
		return err
	}
	if err := set.Materialize(ctx, s.log, s.cfg.Warehouse, s.cfg.Dictionary, s.renderer); err != nil {
		return err
	}
	metrics.SpecificationsGenerated.Set(float64(len(set.Specs)))
	return nil
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write health response", "error", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
