package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/products"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

// maxConcurrentSpecs bounds the fan-out of a full sweep; each spec costs one
// warehouse query plus whatever its product API charges.
const maxConcurrentSpecs = 4

// SpecLister reads persisted specification rows.
type SpecLister interface {
	GetAll(ctx context.Context) ([]store.SpecificationRow, error)
}

// ResultWriter persists a sweep's merged output.
type ResultWriter interface {
	ReplaceAll(ctx context.Context, results []store.ValidationResult) error
}

// SourceFactory builds a product's entity source.
type SourceFactory interface {
	Source(product products.Product, creds driver.Credentials) (driver.Source, error)
}

type SweepConfig struct {
	Logger    *slog.Logger
	Validator *Validator
	Specs     SpecLister
	Results   ResultWriter
	Sources   SourceFactory
	Clock     clockwork.Clock
}

func (cfg *SweepConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Validator == nil {
		return errors.New("validator is required")
	}
	if cfg.Specs == nil {
		return errors.New("spec lister is required")
	}
	if cfg.Results == nil {
		return errors.New("result writer is required")
	}
	if cfg.Sources == nil {
		return errors.New("source factory is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Sweeper validates every persisted specification against its ad platform in
// one run and replaces the validation results table with the output.
type Sweeper struct {
	log   *slog.Logger
	cfg   SweepConfig
	clock clockwork.Clock
}

func NewSweeper(cfg SweepConfig) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sweeper{log: cfg.Logger, cfg: cfg, clock: cfg.Clock}, nil
}

// SweepSummary reports what one full validation run covered.
type SweepSummary struct {
	SpecsValidated int      `json:"specs_validated"`
	SpecsSkipped   []string `json:"specs_skipped,omitempty"`
	Results        int      `json:"results"`
}

// Run validates everything. Specifications whose product has no implemented
// source are skipped and reported, not fatal: a sweep covering the supported
// platforms is more useful than one that refuses to start.
func (s *Sweeper) Run(ctx context.Context, creds driver.Credentials) (*SweepSummary, error) {
	specRows, err := s.cfg.Specs.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load specifications: %w", err)
	}

	var (
		mu      sync.Mutex
		merged  []store.ValidationResult
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSpecs)

	for _, specRow := range specRows {
		g.Go(func() error {
			product, err := products.Parse(specRow.Product)
			if err != nil {
				s.log.Warn("sweep: skipping spec", "spec", specRow.Name, "error", err)
				mu.Lock()
				skipped = append(skipped, specRow.Name)
				mu.Unlock()
				return nil
			}

			source, err := s.cfg.Sources.Source(product, creds)
			if err != nil {
				if errors.Is(err, products.ErrNotImplemented) {
					s.log.Warn("sweep: skipping spec", "spec", specRow.Name, "error", err)
					mu.Lock()
					skipped = append(skipped, specRow.Name)
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("spec %q: %w", specRow.Name, err)
			}

			rows, err := s.cfg.Validator.ValidateProductEntities(gctx, specRow, source)
			if err != nil {
				return fmt.Errorf("spec %q: %w", specRow.Name, err)
			}

			results := s.toResults(specRow, rows)
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.cfg.Results.ReplaceAll(ctx, merged); err != nil {
		return nil, fmt.Errorf("failed to persist validation results: %w", err)
	}

	summary := &SweepSummary{
		SpecsValidated: len(specRows) - len(skipped),
		SpecsSkipped:   skipped,
		Results:        len(merged),
	}
	s.log.Info("sweep: finished", "specs", summary.SpecsValidated, "skipped", len(skipped), "results", summary.Results)
	return summary, nil
}

func (s *Sweeper) toResults(specRow store.SpecificationRow, rows []map[string]any) []store.ValidationResult {
	now := s.clock.Now().UTC()
	results := make([]store.ValidationResult, 0, len(rows))
	for _, row := range rows {
		entityID, _ := row[entityIDColumn].(int64)
		entityValue, _ := row[entityValueColumn].(string)
		message, _ := row[MessageColumn].(string)
		results = append(results, store.ValidationResult{
			SpecName:          specRow.Name,
			Product:           specRow.Product,
			CustomerOwnerID:   specRow.CustomerOwnerID,
			EntityType:        specRow.EntityType,
			EntityID:          strconv.FormatInt(entityID, 10),
			EntityValue:       entityValue,
			ValidationMessage: message,
			ValidatedAt:       now,
		})
	}
	return results
}
