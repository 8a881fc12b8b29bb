package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/clickhouse"
)

// FieldTableStore manages the per-field dictionary lookup tables that the
// generated validation queries reference.
type FieldTableStore struct {
	log       *slog.Logger
	warehouse clickhouse.Client
	database  string
}

func NewFieldTableStore(cfg Config) (*FieldTableStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FieldTableStore{
		log:       cfg.Logger,
		warehouse: cfg.Warehouse,
		database:  cfg.Database,
	}, nil
}

// EnsureLookupTable drops and recreates the lookup table for one field so a
// configuration run always reflects the current dictionary, never a merge of
// stale and fresh values.
func (s *FieldTableStore) EnsureLookupTable(ctx context.Context, table string) error {
	if err := sanitizeIdentifier(table); err != nil {
		return fmt.Errorf("invalid lookup table name: %w", err)
	}

	conn, err := s.warehouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	ref := fmt.Sprintf("%s.%s", s.database, table)
	if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", ref)); err != nil {
		return fmt.Errorf("failed to drop lookup table %s: %w", ref, err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
    id String
) ENGINE = MergeTree()
ORDER BY id`, ref)
	if err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create lookup table %s: %w", ref, err)
	}

	s.log.Debug("store: lookup table recreated", "table", ref)
	return nil
}

// LoadValues inserts the dictionary values for one field into its lookup table.
func (s *FieldTableStore) LoadValues(ctx context.Context, table string, values []string) error {
	if err := sanitizeIdentifier(table); err != nil {
		return fmt.Errorf("invalid lookup table name: %w", err)
	}

	conn, err := s.warehouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	ref := fmt.Sprintf("%s.%s", s.database, table)
	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (id)", ref))
	if err != nil {
		return fmt.Errorf("failed to prepare lookup batch for %s: %w", ref, err)
	}

	for _, v := range values {
		if err := batch.Append(v); err != nil {
			return fmt.Errorf("failed to append lookup value %q: %w", v, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to load lookup values into %s: %w", ref, err)
	}

	s.log.Info("store: dictionary values loaded", "table", ref, "count", len(values))
	return nil
}
