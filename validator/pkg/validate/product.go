package validate

import (
	"context"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

// Base-row columns merged into every product-sourced output row.
const (
	specColumn        = "name"
	productColumn     = "product"
	ownerColumn       = "customer_owner_id"
	entityTypeColumn  = "entity_type"
	entityIDColumn    = "entity_id"
	entityValueColumn = "entity_value"
)

// FilterFromSpec translates one persisted specification row into the entity
// listing filter its product source applies.
func FilterFromSpec(row store.SpecificationRow) driver.Filter {
	return driver.Filter{
		EntityType:      row.EntityType,
		CustomerOwnerID: row.CustomerOwnerID,
		AdvertiserIDs:   row.AdvertiserIDs,
		CampaignIDs:     row.CampaignIDs,
		MinStartDate:    row.MinStartDate,
		MaxStartDate:    row.MaxStartDate,
		MinEndDate:      row.MinEndDate,
		MaxEndDate:      row.MaxEndDate,
	}
}

// ValidateProductEntities pulls the entities a specification applies to from
// its ad platform and validates their names. Each output row is
// self-describing: spec name, product, owner and entity identity travel with
// the verdict.
func (v *Validator) ValidateProductEntities(ctx context.Context, row store.SpecificationRow, source driver.Source) ([]map[string]any, error) {
	entities, err := source.FetchEntities(ctx, FilterFromSpec(row))
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]any{
			specColumn:        row.Name,
			productColumn:     row.Product,
			ownerColumn:       row.CustomerOwnerID,
			entityTypeColumn:  row.EntityType,
			entityIDColumn:    e.ID,
			entityValueColumn: e.Name,
		})
	}

	return v.ValidateRows(ctx, row.Name, entityValueColumn, rows)
}
