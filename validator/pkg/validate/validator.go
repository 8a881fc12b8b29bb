// Package validate runs entity names through the SQL validation templates
// the configurator generated, and merges per-name messages back onto the
// caller's rows.
package validate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

const (
	// The rendered templates carry this placeholder; the warehouse driver
	// wants a typed named parameter instead.
	entityNamesPlaceholder = "@entity_names"
	entityNamesParameter   = "{entity_names:Array(String)}"

	// MessageColumn is the output column carrying the validation verdict.
	// Empty means valid.
	MessageColumn = "validation_message"
)

// SpecificationReader is the warehouse surface validation reads from.
type SpecificationReader interface {
	FetchValidationQueryTemplate(ctx context.Context, specName string) (string, error)
	RunValidationQuery(ctx context.Context, query string, names []string) (map[string]string, error)
}

type Config struct {
	Logger *slog.Logger
	Specs  SpecificationReader
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Specs == nil {
		return errors.New("specification reader is required")
	}
	return nil
}

// Validator executes one specification's validation query over batches of
// entity names.
type Validator struct {
	log   *slog.Logger
	specs SpecificationReader
}

func NewValidator(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Validator{log: cfg.Logger, specs: cfg.Specs}, nil
}

// ValidateValues validates a batch of names against one specification and
// returns the message per distinct name. Input is deduplicated before the
// warehouse sees it; callers fan results back out to their original rows.
func (v *Validator) ValidateValues(ctx context.Context, specName string, values []string) (map[string]string, error) {
	unique := dedupe(values)
	if len(unique) == 0 {
		return map[string]string{}, nil
	}

	template, err := v.specs.FetchValidationQueryTemplate(ctx, specName)
	if err != nil {
		return nil, err
	}

	query := prepareQuery(template)
	messages, err := v.specs.RunValidationQuery(ctx, query, unique)
	if err != nil {
		return nil, err
	}

	v.log.Info("validate: batch validated", "spec", specName, "values", len(values), "unique", len(unique))
	return messages, nil
}

// ValidateRows validates the keyField column of every row and returns one
// output row per input row, with every passthrough column intact and the
// validation message merged in. Duplicate values share one verdict.
func (v *Validator) ValidateRows(ctx context.Context, specName, keyField string, rows []map[string]any) ([]map[string]any, error) {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		value, _ := row[keyField].(string)
		values = append(values, value)
	}

	messages, err := v.ValidateValues(ctx, specName, values)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		merged := make(map[string]any, len(row)+1)
		for k, val := range row {
			merged[k] = val
		}
		merged[MessageColumn] = messages[values[i]]
		out = append(out, merged)
	}
	return out, nil
}

// prepareQuery swaps the template's array placeholder for the warehouse's
// typed named parameter.
func prepareQuery(template string) string {
	return strings.ReplaceAll(template, entityNamesPlaceholder, entityNamesParameter)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		unique = append(unique, v)
	}
	return unique
}
