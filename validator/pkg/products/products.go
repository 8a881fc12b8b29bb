// Package products maps specification product strings onto the closed set of
// supported ad platforms and builds their entity sources and name updaters.
package products

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/campaignmanager"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
)

// Product identifies one supported ad platform.
type Product string

const (
	CampaignManager Product = "Campaign Manager"
	DV360           Product = "DV360"
	GoogleAds       Product = "Google Ads"
	SA360           Product = "SA360"
)

var ErrNotImplemented = errors.New("product not implemented")

// Parse maps a specification row's product string onto the enum. Unknown
// values are a configuration error.
func Parse(s string) (Product, error) {
	switch Product(s) {
	case CampaignManager, DV360, GoogleAds, SA360:
		return Product(s), nil
	default:
		return "", fmt.Errorf("unsupported product %q", s)
	}
}

// Registry builds per-product sources and updaters. Campaign Manager is the
// implemented platform; the others are declared stubs so a specification
// naming them fails with a clear message instead of an unknown-product error.
type Registry struct {
	log   *slog.Logger
	clock clockwork.Clock

	// CampaignManagerBaseURL overrides the platform endpoint, for tests.
	CampaignManagerBaseURL string
}

func NewRegistry(log *slog.Logger, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{log: log, clock: clock}
}

// Source returns the entity source for one product.
func (r *Registry) Source(product Product, creds driver.Credentials) (driver.Source, error) {
	switch product {
	case CampaignManager:
		client, err := r.newCampaignManagerClient(creds)
		if err != nil {
			return nil, err
		}
		return campaignmanager.NewSource(r.log, client), nil
	case DV360, GoogleAds, SA360:
		return nil, fmt.Errorf("%w: %s entity source", ErrNotImplemented, product)
	default:
		return nil, fmt.Errorf("unsupported product %q", product)
	}
}

// Updater returns the name updater for one product.
func (r *Registry) Updater(product Product, entityType string, creds driver.Credentials) (driver.Updater, error) {
	switch product {
	case CampaignManager:
		client, err := r.newCampaignManagerClient(creds)
		if err != nil {
			return nil, err
		}
		return campaignmanager.NewUpdater(campaignmanager.UpdaterConfig{
			Logger:     r.log,
			Client:     client,
			Clock:      r.clock,
			EntityType: entityType,
		})
	case DV360, GoogleAds, SA360:
		return nil, fmt.Errorf("%w: %s name updater", ErrNotImplemented, product)
	default:
		return nil, fmt.Errorf("unsupported product %q", product)
	}
}

func (r *Registry) newCampaignManagerClient(creds driver.Credentials) (*campaignmanager.Client, error) {
	return campaignmanager.NewClient(campaignmanager.ClientConfig{
		Logger:      r.log,
		BaseURL:     r.CampaignManagerBaseURL,
		Credentials: creds,
	})
}

// Compile-time interface checks for the implemented platform.
var (
	_ driver.Source  = (*campaignmanager.Source)(nil)
	_ driver.Updater = (*campaignmanager.Updater)(nil)
)
