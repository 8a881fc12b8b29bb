package store

import "context"

// ConfiguratorStore bundles the specification and field-table stores behind
// the single surface a configuration run drives.
type ConfiguratorStore struct {
	Specs  *SpecificationStore
	Fields *FieldTableStore
}

func NewConfiguratorStore(cfg Config) (*ConfiguratorStore, error) {
	specs, err := NewSpecificationStore(cfg)
	if err != nil {
		return nil, err
	}
	fields, err := NewFieldTableStore(cfg)
	if err != nil {
		return nil, err
	}
	return &ConfiguratorStore{Specs: specs, Fields: fields}, nil
}

func (s *ConfiguratorStore) EnsureLookupTable(ctx context.Context, table string) error {
	return s.Fields.EnsureLookupTable(ctx, table)
}

func (s *ConfiguratorStore) LoadLookupValues(ctx context.Context, table string, values []string) error {
	return s.Fields.LoadValues(ctx, table, values)
}

func (s *ConfiguratorStore) ReplaceSpecifications(ctx context.Context, rows []SpecificationRow) error {
	return s.Specs.ReplaceAll(ctx, rows)
}
