package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

// DictionarySource fetches the legal values for one field's dictionary.
type DictionarySource interface {
	FetchValues(ctx context.Context, url, sheet, cellRange string) ([]string, error)
}

// Warehouse is the storage surface Materialize drives: lookup table lifecycle
// plus wholesale specification replacement.
type Warehouse interface {
	EnsureLookupTable(ctx context.Context, table string) error
	LoadLookupValues(ctx context.Context, table string, values []string) error
	ReplaceSpecifications(ctx context.Context, rows []store.SpecificationRow) error
}

// SpecificationSet holds every specification and field declared for one
// project and dataset, and owns pushing the whole set to the warehouse.
type SpecificationSet struct {
	CloudProjectID string
	Dataset        string
	Specs          map[string]*Specification
	Fields         map[string]*Field
}

// Materialize makes the warehouse reflect this set: it recreates and loads
// the dictionary lookup table for every non-freeform field, renders each
// specification's validation query template, and replaces the specifications
// table wholesale. Any failure aborts the run with an error; there is no
// partial-success response.
func (s *SpecificationSet) Materialize(ctx context.Context, log *slog.Logger, wh Warehouse, dict DictionarySource, renderer *Renderer) error {
	for _, name := range sortedKeys(s.Fields) {
		field := s.Fields[name]
		if field.IsFreeformText {
			continue
		}

		values, err := dict.FetchValues(ctx, field.DictionaryURL, field.DictionarySheet, field.DictionaryRange)
		if err != nil {
			return fmt.Errorf("failed to fetch dictionary for field %q: %w", field.Name, err)
		}
		if len(values) == 0 {
			return fmt.Errorf("dictionary for field %q is empty", field.Name)
		}

		if err := wh.EnsureLookupTable(ctx, field.TableName()); err != nil {
			return fmt.Errorf("failed to prepare lookup table for field %q: %w", field.Name, err)
		}
		if err := wh.LoadLookupValues(ctx, field.TableName(), values); err != nil {
			return fmt.Errorf("failed to load dictionary for field %q: %w", field.Name, err)
		}
		log.Info("materialize: field dictionary loaded", "field", field.Name, "table", field.TableName(), "values", len(values))
	}

	rows := make([]store.SpecificationRow, 0, len(s.Specs))
	for _, name := range sortedKeys(s.Specs) {
		spec := s.Specs[name]
		if err := renderer.RenderValidationQueryTemplate(spec, s.Dataset); err != nil {
			return fmt.Errorf("failed to render validation query for spec %q: %w", spec.Name, err)
		}
		rows = append(rows, store.SpecificationRow{
			Name:                    spec.Name,
			FieldStructureType:      string(spec.FieldStructureType),
			ValidationQueryTemplate: spec.ValidationQueryTemplate,
			Product:                 spec.Product,
			CustomerOwnerID:         spec.CustomerOwnerID,
			EntityType:              spec.EntityType,
			AdvertiserIDs:           spec.AdvertiserIDs,
			CampaignIDs:             spec.CampaignIDs,
			MinStartDate:            spec.MinStartDate,
			MaxStartDate:            spec.MaxStartDate,
			MinEndDate:              spec.MinEndDate,
			MaxEndDate:              spec.MaxEndDate,
		})
	}

	if err := wh.ReplaceSpecifications(ctx, rows); err != nil {
		return fmt.Errorf("failed to replace specifications: %w", err)
	}

	log.Info("materialize: specification set persisted", "specs", len(rows), "fields", len(s.Fields))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
