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
	"golang.org/x/time/rate"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/metrics"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/validate"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

const (
	actionListSpecs          = "list_specs"
	actionValidateNames      = "validate_names"
	actionValidateEverything = "validate_everything"
	actionUpdateNames        = "update_names"

	// valueKey is the column name validate_names reads entity names from and
	// writes them back under, alongside the validation message.
	valueKey = "value"
)

// actionRequest is the envelope every POST / body shares; the remaining
// fields matter per action.
type actionRequest struct {
	Action   string           `json:"action"`
	SpecName string           `json:"spec_name"`
	Rows     []map[string]any `json:"rows"`
	Updates  []nameUpdate     `json:"updates"`

	AccessToken string `json:"access_token"`
	ProfileID   string `json:"profile_id"`
}

type nameUpdate struct {
	EntityID int64  `json:"entity_id"`
	NewName  string `json:"new_name"`
}

func (r actionRequest) credentials() driver.Credentials {
	return driver.Credentials{AccessToken: r.AccessToken, ProfileID: r.ProfileID}
}

// Server exposes the validation endpoint: it checks entity names against the
// generated specifications and pushes corrected names back to the ad
// platforms.
type Server struct {
	log       *slog.Logger
	cfg       Config
	clock     clockwork.Clock
	validator *validate.Validator
	sweeper   *validate.Sweeper
	httpSrv   *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	validator, err := validate.NewValidator(validate.Config{
		Logger: cfg.Logger,
		Specs:  cfg.Specs,
	})
	if err != nil {
		return nil, err
	}

	sweeper, err := validate.NewSweeper(validate.SweepConfig{
		Logger:    cfg.Logger,
		Validator: validator,
		Specs:     cfg.Specs,
		Results:   cfg.Results,
		Sources:   cfg.Registry,
		Clock:     cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:       cfg.Logger,
		cfg:       cfg,
		clock:     cfg.Clock,
		validator: validator,
		sweeper:   sweeper,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	if cfg.RateLimit > 0 {
		limiter := NewRateLimiter(rate.Limit(float64(cfg.RateLimit)/60.0), cfg.RateLimit)
		router.Use(RateLimitMiddleware(limiter))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Post("/", s.actionHandler)
	router.Get("/healthz", s.healthzHandler)
	router.Get("/readyz", s.healthzHandler)
	router.Get("/version", s.versionHandler)
	router.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      15 * time.Minute, // sweeps and paced updates take a while
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

func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %s.", err))
		return
	}

	var handle func(context.Context, actionRequest) (any, error)
	switch req.Action {
	case actionListSpecs:
		handle = s.listSpecs
	case actionValidateNames:
		handle = s.validateNames
	case actionValidateEverything:
		handle = s.validateEverything
	case actionUpdateNames:
		handle = s.updateNames
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid value '%s' for 'action'.", req.Action))
		return
	}

	started := s.clock.Now()
	response, err := handle(r.Context(), req)
	metrics.ActionDuration.WithLabelValues(req.Action).Observe(s.clock.Since(started).Seconds())
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(req.Action, "error").Inc()
		s.log.Error("server: action failed", "action", req.Action, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.ActionsTotal.WithLabelValues(req.Action, "success").Inc()

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) listSpecs(ctx context.Context, _ actionRequest) (any, error) {
	names, err := s.cfg.Specs.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}
	return map[string]any{"specs": names}, nil
}

func (s *Server) validateNames(ctx context.Context, req actionRequest) (any, error) {
	if req.SpecName == "" {
		return nil, fmt.Errorf("'spec_name' is required for action '%s'", actionValidateNames)
	}

	rows, err := s.validator.ValidateRows(ctx, req.SpecName, valueKey, req.Rows)
	if err != nil {
		return nil, err
	}
	metrics.NamesValidated.Add(float64(len(rows)))
	return map[string]any{"rows": rows}, nil
}

func (s *Server) validateEverything(ctx context.Context, req actionRequest) (any, error) {
	summary, err := s.sweeper.Run(ctx, req.credentials())
	if err != nil {
		return nil, err
	}
	metrics.NamesValidated.Add(float64(summary.Results))
	return summary, nil
}

func (s *Server) updateNames(ctx context.Context, req actionRequest) (any, error) {
	if req.SpecName == "" {
		return nil, fmt.Errorf("'spec_name' is required for action '%s'", actionUpdateNames)
	}
	if len(req.Updates) == 0 {
		return nil, fmt.Errorf("'updates' is required for action '%s'", actionUpdateNames)
	}

	specRow, err := s.findSpec(ctx, req.SpecName)
	if err != nil {
		return nil, err
	}

	product, err := products.Parse(specRow.Product)
	if err != nil {
		return nil, err
	}

	updater, err := s.cfg.Registry.Updater(product, specRow.EntityType, req.credentials())
	if err != nil {
		return nil, err
	}

	updates := make([]driver.NameUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, driver.NameUpdate{EntityID: u.EntityID, NewName: u.NewName})
	}

	statuses, err := updater.UpdateNames(ctx, updates)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(req.Updates))
	succeeded := 0
	for _, u := range req.Updates {
		status := statuses[u.EntityID]
		if status == "Updated." {
			succeeded++
		}
		rows = append(rows, map[string]any{
			"entity_id": u.EntityID,
			"new_name":  u.NewName,
			"status":    status,
		})
	}
	metrics.NameUpdatesTotal.WithLabelValues("success").Add(float64(succeeded))
	metrics.NameUpdatesTotal.WithLabelValues("failure").Add(float64(len(req.Updates) - succeeded))

	return map[string]any{"rows": rows}, nil
}

func (s *Server) findSpec(ctx context.Context, specName string) (store.SpecificationRow, error) {
	specRows, err := s.cfg.Specs.GetAll(ctx)
	if err != nil {
		return store.SpecificationRow{}, fmt.Errorf("failed to load specifications: %w", err)
	}
	for _, row := range specRows {
		if row.Name == specName {
			return row, nil
		}
	}
	return store.SpecificationRow{}, fmt.Errorf("could not retrieve spec with name %q", specName)
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
