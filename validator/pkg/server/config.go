package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/products"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/validate"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// SpecStore is the warehouse surface the validator service reads from.
type SpecStore interface {
	ListNames(ctx context.Context) ([]string, error)
	GetAll(ctx context.Context) ([]store.SpecificationRow, error)
	FetchValidationQueryTemplate(ctx context.Context, specName string) (string, error)
	RunValidationQuery(ctx context.Context, query string, names []string) (map[string]string, error)
}

// ProductRegistry builds per-product sources and updaters.
type ProductRegistry interface {
	Source(product products.Product, creds driver.Credentials) (driver.Source, error)
	Updater(product products.Product, entityType string, creds driver.Credentials) (driver.Updater, error)
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	Specs    SpecStore
	Results  validate.ResultWriter
	Registry ProductRegistry

	// RateLimit caps requests per minute per client IP; zero disables.
	RateLimit int

	Clock clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Specs == nil {
		return errors.New("spec store is required")
	}
	if cfg.Results == nil {
		return errors.New("result writer is required")
	}
	if cfg.Registry == nil {
		return errors.New("product registry is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
