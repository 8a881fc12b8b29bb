package campaignmanager

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
)

// Source lists Campaign Manager entities and applies a specification's
// applicability filter. Advertiser scoping happens server-side; campaign ID
// and date bounds are applied client-side because the list endpoints do not
// accept them.
type Source struct {
	log    *slog.Logger
	client *Client
}

func NewSource(log *slog.Logger, client *Client) *Source {
	return &Source{log: log, client: client}
}

func (s *Source) FetchEntities(ctx context.Context, filter driver.Filter) ([]driver.Entity, error) {
	listed, err := s.client.ListEntities(ctx, filter.EntityType, filter.AdvertiserIDs)
	if err != nil {
		return nil, err
	}

	entities := make([]driver.Entity, 0, len(listed))
	for _, e := range listed {
		if !matchesFilter(e, filter) {
			continue
		}
		entities = append(entities, driver.Entity{ID: e.ID, Name: e.Name})
	}

	s.log.Info("campaignmanager: entities fetched",
		"entity_type", filter.EntityType, "listed", len(listed), "matched", len(entities))
	return entities, nil
}

func matchesFilter(e platformEntity, filter driver.Filter) bool {
	if len(filter.CampaignIDs) > 0 && !slices.Contains(filter.CampaignIDs, e.ID) {
		return false
	}
	if !withinBounds(e.StartDate, filter.MinStartDate, filter.MaxStartDate) {
		return false
	}
	if !withinBounds(e.EndDate, filter.MinEndDate, filter.MaxEndDate) {
		return false
	}
	return true
}

// withinBounds treats a missing entity date as out of range only when a bound
// is set; with no bounds everything passes.
func withinBounds(date, min, max *time.Time) bool {
	if min == nil && max == nil {
		return true
	}
	if date == nil {
		return false
	}
	if min != nil && date.Before(*min) {
		return false
	}
	if max != nil && date.After(*max) {
		return false
	}
	return true
}
