// Package driver holds the types shared between the product registry and the
// per-platform implementations.
package driver

import (
	"context"
	"time"
)

// Entity is one ad-platform object whose name is subject to validation.
type Entity struct {
	ID   int64
	Name string
}

// Filter scopes an entity listing call to one specification's applicability:
// owner, advertiser/campaign IDs and date bounds. Nil date bounds mean no
// bound.
type Filter struct {
	EntityType      string
	CustomerOwnerID string
	AdvertiserIDs   []int64
	CampaignIDs     []int64
	MinStartDate    *time.Time
	MaxStartDate    *time.Time
	MinEndDate      *time.Time
	MaxEndDate      *time.Time
}

// NameUpdate is one requested rename, keyed by platform entity ID.
type NameUpdate struct {
	EntityID int64
	NewName  string
}

// Credentials carries per-request platform access.
type Credentials struct {
	AccessToken string
	ProfileID   string
}

// Source lists candidate entities from an ad platform.
type Source interface {
	FetchEntities(ctx context.Context, filter Filter) ([]Entity, error)
}

// Updater pushes corrected names back to an ad platform and reports a status
// message per entity ID. Partial failure is an expected outcome: the returned
// map always covers every requested update.
type Updater interface {
	UpdateNames(ctx context.Context, updates []NameUpdate) (map[int64]string, error)
}
