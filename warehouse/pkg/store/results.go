package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/clickhouse"
)

const validationResultsTable = "validation_results"

// ValidationResult is one validated entity name and its outcome message.
// EntityID is a string because the warehouse column is String; platform ids
// are formatted at the boundary that produces results.
type ValidationResult struct {
	SpecName          string
	Product           string
	CustomerOwnerID   string
	EntityType        string
	EntityID          string
	EntityValue       string
	ValidationMessage string
	ValidatedAt       time.Time
}

// ResultStore persists validation sweep outputs.
type ResultStore struct {
	log       *slog.Logger
	warehouse clickhouse.Client
	database  string
}

func NewResultStore(cfg Config) (*ResultStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ResultStore{
		log:       cfg.Logger,
		warehouse: cfg.Warehouse,
		database:  cfg.Database,
	}, nil
}

func (s *ResultStore) table() string {
	return fmt.Sprintf("%s.%s", s.database, validationResultsTable)
}

// ReplaceAll truncates the validation results table and loads the given rows.
// A full-sweep run replaces the previous sweep's output wholesale.
func (s *ResultStore) ReplaceAll(ctx context.Context, results []ValidationResult) error {
	conn, err := s.warehouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table())); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.table(), err)
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, product, customer_owner_id, entity_type, entity_id, entity_value, validation_message, validated_at)",
		s.table()))
	if err != nil {
		return fmt.Errorf("failed to prepare validation results batch: %w", err)
	}

	for _, r := range results {
		if err := batch.Append(
			r.SpecName,
			r.Product,
			r.CustomerOwnerID,
			r.EntityType,
			r.EntityID,
			r.EntityValue,
			r.ValidationMessage,
			r.ValidatedAt,
		); err != nil {
			return fmt.Errorf("failed to append validation result for %q: %w", r.EntityValue, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to load validation results: %w", err)
	}

	s.log.Info("store: validation results loaded", "count", len(results))
	return nil
}
