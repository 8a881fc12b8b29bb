package taxonomy

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Block type discriminators accepted in configuration request payloads.
const (
	blockTypeField     = "TaxonomyField"
	blockTypeSpec      = "TaxonomySpec"
	blockTypeDimension = "TaxonomyDimension"
)

// TypedBlock is one entry of the request's data array: a type discriminator
// plus the rows of that type, decoded lazily once the type is known.
type TypedBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ConfigRequest is the JSON body of a configuration run. The dataset key name
// is kept from the original sheet tooling even though it now names a
// warehouse database.
type ConfigRequest struct {
	CloudProjectID string       `json:"taxonomy_cloud_project_id"`
	Dataset        string       `json:"taxonomy_bigquery_dataset"`
	Data           []TypedBlock `json:"data"`
}

// Assemble groups the request blocks by type, compiles every dimension and
// builds the full specification set. An unknown block type fails the whole
// request. A declared spec with no dimensions is skipped with a warning
// rather than persisted as an unvalidatable shell.
func Assemble(log *slog.Logger, req ConfigRequest) (*SpecificationSet, error) {
	if req.CloudProjectID == "" {
		return nil, fmt.Errorf("missing required value 'taxonomy_cloud_project_id'")
	}
	if req.Dataset == "" {
		return nil, fmt.Errorf("missing required value 'taxonomy_bigquery_dataset'")
	}

	var (
		fieldRows []FieldJSON
		specRows  []SpecJSON
		dimRows   []DimensionDescriptor
	)

	for _, block := range req.Data {
		switch block.Type {
		case blockTypeField:
			var rows []FieldJSON
			if err := json.Unmarshal(block.Data, &rows); err != nil {
				return nil, fmt.Errorf("failed to decode %s rows: %w", blockTypeField, err)
			}
			fieldRows = append(fieldRows, rows...)
		case blockTypeSpec:
			var rows []SpecJSON
			if err := json.Unmarshal(block.Data, &rows); err != nil {
				return nil, fmt.Errorf("failed to decode %s rows: %w", blockTypeSpec, err)
			}
			specRows = append(specRows, rows...)
		case blockTypeDimension:
			var rows []DimensionDescriptor
			if err := json.Unmarshal(block.Data, &rows); err != nil {
				return nil, fmt.Errorf("failed to decode %s rows: %w", blockTypeDimension, err)
			}
			dimRows = append(dimRows, rows...)
		default:
			return nil, fmt.Errorf("invalid request value %q for 'data[].type'", block.Type)
		}
	}

	fields := make(map[string]*Field, len(fieldRows))
	for _, row := range fieldRows {
		fields[row.Name] = NewField(row, req.CloudProjectID, req.Dataset)
	}

	compiled, err := CompileDimensions(dimRows, fields)
	if err != nil {
		return nil, err
	}

	specs := make(map[string]*Specification, len(specRows))
	for _, row := range specRows {
		cs, ok := compiled[row.Name]
		if !ok {
			log.Warn("assembly: spec has no dimensions, skipping", "spec", row.Name)
			continue
		}
		spec, err := NewSpecification(row, cs)
		if err != nil {
			return nil, err
		}
		specs[spec.Name] = spec
	}

	for name := range compiled {
		if _, ok := specs[name]; !ok {
			log.Warn("assembly: dimensions reference undeclared spec, ignoring", "spec", name)
		}
	}

	return &SpecificationSet{
		CloudProjectID: req.CloudProjectID,
		Dataset:        req.Dataset,
		Specs:          specs,
		Fields:         fields,
	}, nil
}
