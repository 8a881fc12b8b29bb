package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/clickhouse"
)

const specificationsTable = "specifications"

// SpecificationRow is one persisted specification: the compiled taxonomy
// definition plus its rendered SQL validation template.
type SpecificationRow struct {
	Name                    string
	FieldStructureType      string
	ValidationQueryTemplate string
	Product                 string
	CustomerOwnerID         string
	EntityType              string
	AdvertiserIDs           []int64
	CampaignIDs             []int64
	MinStartDate            *time.Time
	MaxStartDate            *time.Time
	MinEndDate              *time.Time
	MaxEndDate              *time.Time
}

type Config struct {
	Logger     *slog.Logger
	Warehouse  clickhouse.Client
	Database   string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Warehouse == nil {
		return errors.New("warehouse connection is required")
	}
	if cfg.Database == "" {
		return errors.New("database is required")
	}
	return nil
}

// SpecificationStore persists and reads specification rows.
type SpecificationStore struct {
	log *slog.Logger
	cfg Config
}

func NewSpecificationStore(cfg Config) (*SpecificationStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SpecificationStore{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (s *SpecificationStore) table() string {
	return fmt.Sprintf("%s.%s", s.cfg.Database, specificationsTable)
}

// ReplaceAll truncates the specifications table and loads the given rows in
// one batch. There are no partial-success semantics: a failed batch leaves
// an error, never a half-loaded table reported as success.
func (s *SpecificationStore) ReplaceAll(ctx context.Context, rows []SpecificationRow) error {
	jobID := uuid.NewString()
	s.log.Info("store: replacing specifications", "job_id", jobID, "count", len(rows))

	conn, err := s.cfg.Warehouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table())); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.table(), err)
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, field_structure_type, validation_query_template, product, customer_owner_id, entity_type, advertiser_ids, campaign_ids, min_start_date, max_start_date, min_end_date, max_end_date)",
		s.table()))
	if err != nil {
		return fmt.Errorf("failed to prepare specifications batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(
			row.Name,
			row.FieldStructureType,
			row.ValidationQueryTemplate,
			row.Product,
			row.CustomerOwnerID,
			row.EntityType,
			row.AdvertiserIDs,
			row.CampaignIDs,
			row.MinStartDate,
			row.MaxStartDate,
			row.MinEndDate,
			row.MaxEndDate,
		); err != nil {
			return fmt.Errorf("failed to append spec %q to batch: %w", row.Name, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to load specifications: %w", err)
	}

	s.log.Info("store: specifications loaded", "job_id", jobID, "count", len(rows))
	return nil
}

// ListNames returns the names of all persisted specifications.
func (s *SpecificationStore) ListNames(ctx context.Context) ([]string, error) {
	conn, err := s.cfg.Warehouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT name FROM %s FINAL ORDER BY name", s.table()))
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan specification name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specification names: %w", err)
	}
	return names, nil
}

// GetAll returns every persisted specification row.
func (s *SpecificationStore) GetAll(ctx context.Context) ([]SpecificationRow, error) {
	conn, err := s.cfg.Warehouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	query := fmt.Sprintf(`SELECT
    name,
    field_structure_type,
    validation_query_template,
    product,
    customer_owner_id,
    entity_type,
    advertiser_ids,
    campaign_ids,
    min_start_date,
    max_start_date,
    min_end_date,
    max_end_date
FROM %s FINAL ORDER BY name`, s.table())

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read specifications: %w", err)
	}
	defer rows.Close()

	var out []SpecificationRow
	for rows.Next() {
		var row SpecificationRow
		if err := rows.Scan(
			&row.Name,
			&row.FieldStructureType,
			&row.ValidationQueryTemplate,
			&row.Product,
			&row.CustomerOwnerID,
			&row.EntityType,
			&row.AdvertiserIDs,
			&row.CampaignIDs,
			&row.MinStartDate,
			&row.MaxStartDate,
			&row.MinEndDate,
			&row.MaxEndDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan specification row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specifications: %w", err)
	}
	return out, nil
}

// FetchValidationQueryTemplate returns the rendered SQL template for one
// specification name, or an error when no such specification exists.
func (s *SpecificationStore) FetchValidationQueryTemplate(ctx context.Context, specName string) (string, error) {
	conn, err := s.cfg.Warehouse.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT any(validation_query_template) FROM %s FINAL WHERE name = {spec_name:String}",
		s.table())

	rows, err := conn.Query(ctx, query, clickhouse.Named("spec_name", specName))
	if err != nil {
		return "", fmt.Errorf("failed to fetch validation query template: %w", err)
	}
	defer rows.Close()

	var template string
	if rows.Next() {
		if err := rows.Scan(&template); err != nil {
			return "", fmt.Errorf("failed to scan validation query template: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error reading validation query template: %w", err)
	}
	if template == "" {
		return "", fmt.Errorf("could not retrieve spec with name %q", specName)
	}
	return template, nil
}

// RunValidationQuery executes a post-processed validation query against the
// warehouse with the unique entity names bound as an array parameter, and
// returns the name-to-message mapping it produces.
func (s *SpecificationStore) RunValidationQuery(ctx context.Context, query string, names []string) (map[string]string, error) {
	conn, err := s.cfg.Warehouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	rows, err := conn.Query(ctx, query, clickhouse.Named("entity_names", names))
	if err != nil {
		return nil, fmt.Errorf("failed to run validation query: %w", err)
	}
	defer rows.Close()

	results := make(map[string]string, len(names))
	for rows.Next() {
		var name, message string
		if err := rows.Scan(&name, &message); err != nil {
			return nil, fmt.Errorf("failed to scan validation result: %w", err)
		}
		results[name] = message
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validation results: %w", err)
	}
	return results, nil
}

// sanitizeIdentifier guards table identifiers built from request data.
func sanitizeIdentifier(name string) error {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return fmt.Errorf("invalid identifier %q", name)
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("empty identifier")
	}
	return nil
}
