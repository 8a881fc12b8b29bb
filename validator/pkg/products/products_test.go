package products

import (
	"testing"

	"github.com/stretchr/testify/require"

	wizardtesting "github.com/adlabs/taxonomy-wizard/utils/pkg/testing"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
)

func TestWizard_Products_Parse(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"Campaign Manager", "DV360", "Google Ads", "SA360"} {
		p, err := Parse(name)
		require.NoError(t, err)
		require.Equal(t, Product(name), p)
	}

	_, err := Parse("TikTok")
	require.Error(t, err)
	require.Contains(t, err.Error(), `"TikTok"`)
}

func TestWizard_Products_Registry(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(wizardtesting.NewLogger(), nil)
	creds := driver.Credentials{AccessToken: "token", ProfileID: "1"}

	t.Run("campaign manager is implemented", func(t *testing.T) {
		t.Parallel()

		source, err := registry.Source(CampaignManager, creds)
		require.NoError(t, err)
		require.NotNil(t, source)

		updater, err := registry.Updater(CampaignManager, "Campaign", creds)
		require.NoError(t, err)
		require.NotNil(t, updater)
	})

	t.Run("declared stubs fail with not implemented", func(t *testing.T) {
		t.Parallel()

		for _, p := range []Product{DV360, GoogleAds, SA360} {
			_, err := registry.Source(p, creds)
			require.ErrorIs(t, err, ErrNotImplemented)
			require.Contains(t, err.Error(), string(p))

			_, err = registry.Updater(p, "Campaign", creds)
			require.ErrorIs(t, err, ErrNotImplemented)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()

		_, err := registry.Source(CampaignManager, driver.Credentials{})
		require.Error(t, err)
	})
}
