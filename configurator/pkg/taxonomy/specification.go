package taxonomy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldStructureType names how a specification's dimensions are laid out in
// an entity name. Only delimited structures are supported; the enum is the
// extension point for fixed-length layouts.
type FieldStructureType string

const (
	StructureDelimited FieldStructureType = "DELIMITED"
)

// isoDateLayout is the ISO-8601-with-milliseconds format spreadsheet exports
// use for date bounds.
const isoDateLayout = "2006-01-02T15:04:05.000Z"

var ErrUnsupportedStructureType = errors.New("unsupported field_structure_type")

// SpecJSON is one TaxonomySpec declaration from the configuration request.
type SpecJSON struct {
	Name               string `json:"name"`
	FieldStructureType string `json:"field_structure_type"`
	Product            string `json:"product"`
	CustomerOwnerID    string `json:"customer_owner_id"`
	EntityType         string `json:"entity_type"`
	AdvertiserIDs      string `json:"advertiser_ids"`
	CampaignIDs        string `json:"campaign_ids"`
	MinStartDate       string `json:"min_start_date"`
	MaxStartDate       string `json:"max_start_date"`
	MinEndDate         string `json:"min_end_date"`
	MaxEndDate         string `json:"max_end_date"`
}

// Specification is one named, compiled taxonomy definition.
type Specification struct {
	Name               string
	FieldStructureType FieldStructureType
	Product            string
	CustomerOwnerID    string
	EntityType         string
	AdvertiserIDs      []int64
	CampaignIDs        []int64
	MinStartDate       *time.Time
	MaxStartDate       *time.Time
	MinEndDate         *time.Time
	MaxEndDate         *time.Time

	Dimensions          []*Dimension
	FullMatchExpression string

	// ValidationQueryTemplate is empty until rendered.
	ValidationQueryTemplate string
}

// NewSpecification builds a Specification from its request JSON and compiled
// dimensions. Date parsing and ID-list parsing happen once here.
func NewSpecification(j SpecJSON, compiled *CompiledSpec) (*Specification, error) {
	if !strings.EqualFold(j.FieldStructureType, string(StructureDelimited)) {
		return nil, fmt.Errorf("%w %q in spec %q", ErrUnsupportedStructureType, j.FieldStructureType, j.Name)
	}

	advertiserIDs, err := parseIDList(j.AdvertiserIDs)
	if err != nil {
		return nil, fmt.Errorf("spec %q: invalid advertiser_ids: %w", j.Name, err)
	}
	campaignIDs, err := parseIDList(j.CampaignIDs)
	if err != nil {
		return nil, fmt.Errorf("spec %q: invalid campaign_ids: %w", j.Name, err)
	}

	spec := &Specification{
		Name:                j.Name,
		FieldStructureType:  StructureDelimited,
		Product:             j.Product,
		CustomerOwnerID:     j.CustomerOwnerID,
		EntityType:          j.EntityType,
		AdvertiserIDs:       advertiserIDs,
		CampaignIDs:         campaignIDs,
		Dimensions:          compiled.Dimensions,
		FullMatchExpression: compiled.FullMatchExpression,
	}

	for _, bound := range []struct {
		raw  string
		name string
		dst  **time.Time
	}{
		{j.MinStartDate, "min_start_date", &spec.MinStartDate},
		{j.MaxStartDate, "max_start_date", &spec.MaxStartDate},
		{j.MinEndDate, "min_end_date", &spec.MinEndDate},
		{j.MaxEndDate, "max_end_date", &spec.MaxEndDate},
	} {
		parsed, err := parseDateBound(bound.raw)
		if err != nil {
			return nil, fmt.Errorf("spec %q: invalid %s: %w", j.Name, bound.name, err)
		}
		*bound.dst = parsed
	}

	return spec, nil
}

// LastDimension returns the dimension at the maximum index.
func (s *Specification) LastDimension() *Dimension {
	if len(s.Dimensions) == 0 {
		return nil
	}
	return s.Dimensions[len(s.Dimensions)-1]
}

// ExtraDataExpression is the last dimension's trailing-data capture.
func (s *Specification) ExtraDataExpression() string {
	last := s.LastDimension()
	if last == nil {
		return ""
	}
	return last.ExtraDataRegex
}

// parseIDList splits a comma-separated string of integer IDs. Empty input
// means no scoping, not an error.
func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDateBound maps absent or empty date strings to "no bound".
func parseDateBound(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(isoDateLayout, raw)
	if err != nil {
		return nil, err
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &day, nil
}
