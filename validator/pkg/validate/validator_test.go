package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	wizardtesting "github.com/adlabs/taxonomy-wizard/utils/pkg/testing"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

type fakeSpecReader struct {
	template    string
	queriedWith []string
	query       string
	messages    map[string]string
}

func (f *fakeSpecReader) FetchValidationQueryTemplate(ctx context.Context, specName string) (string, error) {
	return f.template, nil
}

func (f *fakeSpecReader) RunValidationQuery(ctx context.Context, query string, names []string) (map[string]string, error) {
	f.query = query
	f.queriedWith = names
	return f.messages, nil
}

func newTestValidator(t *testing.T, specs *fakeSpecReader) *Validator {
	t.Helper()
	v, err := NewValidator(Config{Logger: wizardtesting.NewLogger(), Specs: specs})
	require.NoError(t, err)
	return v
}

func TestWizard_Validator_DedupeAndMerge(t *testing.T) {
	t.Parallel()

	specs := &fakeSpecReader{
		template: "SELECT name, msg FROM (SELECT arrayJoin(@entity_names) AS name)",
		messages: map[string]string{
			"Campaign_A": "Invalid value for \"Region\" (segment 0).",
			"Campaign_B": "",
		},
	}
	v := newTestValidator(t, specs)

	rows := []map[string]any{
		{"value": "Campaign_A", "source": "row1"},
		{"value": "Campaign_A", "source": "row2"},
		{"value": "Campaign_B", "source": "row3"},
	}
	out, err := v.ValidateRows(context.Background(), "camp_v1", "value", rows)
	require.NoError(t, err)

	// The warehouse sees each distinct value once; the output keeps all rows.
	require.Equal(t, []string{"Campaign_A", "Campaign_B"}, specs.queriedWith)
	require.Len(t, out, 3)
	require.Equal(t, out[0][MessageColumn], out[1][MessageColumn])
	require.Equal(t, "row1", out[0]["source"])
	require.Equal(t, "row2", out[1]["source"])
	require.Empty(t, out[2][MessageColumn])
}

func TestWizard_Validator_PreparesNamedParameter(t *testing.T) {
	t.Parallel()

	specs := &fakeSpecReader{
		template: "SELECT arrayJoin(@entity_names) AS name",
		messages: map[string]string{},
	}
	v := newTestValidator(t, specs)

	_, err := v.ValidateValues(context.Background(), "camp_v1", []string{"US_1"})
	require.NoError(t, err)
	require.Equal(t, "SELECT arrayJoin({entity_names:Array(String)}) AS name", specs.query)
}

func TestWizard_Validator_EmptyInput(t *testing.T) {
	t.Parallel()

	specs := &fakeSpecReader{}
	v := newTestValidator(t, specs)

	messages, err := v.ValidateValues(context.Background(), "camp_v1", nil)
	require.NoError(t, err)
	require.Empty(t, messages)
	require.Nil(t, specs.queriedWith, "empty batches never reach the warehouse")
}

type fakeSource struct {
	entities []driver.Entity
	filter   driver.Filter
}

func (f *fakeSource) FetchEntities(ctx context.Context, filter driver.Filter) ([]driver.Entity, error) {
	f.filter = filter
	return f.entities, nil
}

func TestWizard_Validator_ProductEntities(t *testing.T) {
	t.Parallel()

	specs := &fakeSpecReader{
		template: "SELECT name FROM x",
		messages: map[string]string{"US_1": "", "XX_2": "Name does not match the \"camp_v1\" taxonomy pattern."},
	}
	v := newTestValidator(t, specs)

	source := &fakeSource{entities: []driver.Entity{
		{ID: 1, Name: "US_1"},
		{ID: 2, Name: "XX_2"},
	}}
	specRow := store.SpecificationRow{
		Name:            "camp_v1",
		Product:         "Campaign Manager",
		CustomerOwnerID: "777",
		EntityType:      "Campaign",
		AdvertiserIDs:   []int64{100},
	}

	out, err := v.ValidateProductEntities(context.Background(), specRow, source)
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Equal(t, []int64{100}, source.filter.AdvertiserIDs)
	require.Equal(t, "Campaign", source.filter.EntityType)

	require.Equal(t, "camp_v1", out[0]["name"])
	require.Equal(t, int64(1), out[0]["entity_id"])
	require.Empty(t, out[0][MessageColumn])
	require.Contains(t, out[1][MessageColumn], "does not match")
}

type fakeSpecLister struct {
	rows []store.SpecificationRow
}

func (f *fakeSpecLister) GetAll(ctx context.Context) ([]store.SpecificationRow, error) {
	return f.rows, nil
}

type fakeResultWriter struct {
	results []store.ValidationResult
}

func (f *fakeResultWriter) ReplaceAll(ctx context.Context, results []store.ValidationResult) error {
	f.results = results
	return nil
}

type fakeSourceFactory struct {
	source driver.Source
}

func (f *fakeSourceFactory) Source(product products.Product, creds driver.Credentials) (driver.Source, error) {
	if product != products.CampaignManager {
		return nil, products.ErrNotImplemented
	}
	return f.source, nil
}

func TestWizard_Sweeper_Run(t *testing.T) {
	t.Parallel()

	specs := &fakeSpecReader{
		template: "SELECT name FROM x",
		messages: map[string]string{"US_1": ""},
	}
	v := newTestValidator(t, specs)

	lister := &fakeSpecLister{rows: []store.SpecificationRow{
		{Name: "camp_v1", Product: "Campaign Manager", EntityType: "Campaign"},
		{Name: "dv_v1", Product: "DV360", EntityType: "Campaign"},
	}}
	writer := &fakeResultWriter{}
	factory := &fakeSourceFactory{source: &fakeSource{entities: []driver.Entity{{ID: 1, Name: "US_1"}}}}

	sweeper, err := NewSweeper(SweepConfig{
		Logger:    wizardtesting.NewLogger(),
		Validator: v,
		Specs:     lister,
		Results:   writer,
		Sources:   factory,
	})
	require.NoError(t, err)

	summary, err := sweeper.Run(context.Background(), driver.Credentials{AccessToken: "t", ProfileID: "1"})
	require.NoError(t, err)

	require.Equal(t, 1, summary.SpecsValidated)
	require.Equal(t, []string{"dv_v1"}, summary.SpecsSkipped)
	require.Equal(t, 1, summary.Results)

	require.Len(t, writer.results, 1)
	require.Equal(t, "camp_v1", writer.results[0].SpecName)
	require.Equal(t, "1", writer.results[0].EntityID)
	require.Equal(t, "US_1", writer.results[0].EntityValue)
	require.False(t, writer.results[0].ValidatedAt.IsZero())
}
