package taxonomy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testFields() map[string]*Field {
	region := NewField(FieldJSON{
		Name:            "Region",
		DictionaryURL:   "https://sheets.example.com/dicts",
		DictionarySheet: "regions",
		DictionaryRange: "A2:A",
	}, "proj", "taxonomy")
	campaignID := NewField(FieldJSON{
		Name:           "Campaign ID",
		IsFreeformText: true,
	}, "proj", "taxonomy")
	channel := NewField(FieldJSON{
		Name:            "Channel",
		DictionaryURL:   "https://sheets.example.com/dicts",
		DictionarySheet: "channels",
		DictionaryRange: "A2:A",
	}, "proj", "taxonomy")
	return map[string]*Field{
		"Region":      region,
		"Campaign ID": campaignID,
		"Channel":     channel,
	}
}

// sqlRegex strips the SQL concat wrapper so the expression can be compiled
// and exercised as a plain regular expression.
func sqlRegex(t *testing.T, expr string) *regexp.Regexp {
	t.Helper()
	require.True(t, strings.HasPrefix(expr, "concat('"), "expression %q is not a SQL concat literal", expr)
	require.True(t, strings.HasSuffix(expr, "')"), "expression %q is not a SQL concat literal", expr)
	body := strings.TrimSuffix(strings.TrimPrefix(expr, "concat('"), "')")
	return regexp.MustCompile(body)
}

// spliceRegex substitutes concrete lookup values for cross-join splices, the
// way arrayExists binds them at validation time, then compiles the result.
func spliceRegex(t *testing.T, expr string, values map[int]string) *regexp.Regexp {
	t.Helper()
	for index, value := range values {
		expr = strings.ReplaceAll(expr, fmt.Sprintf("', D_%d, '", index), value)
	}
	return sqlRegex(t, expr)
}

func TestWizard_CompileDimensions_DelimitedExample(t *testing.T) {
	t.Parallel()

	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "camp_v1", FieldName: "Campaign ID", PrefixIndex: 1, EndDelimiter: ""},
		{TaxonomySpecName: "camp_v1", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "_"},
	}

	compiled, err := CompileDimensions(descriptors, testFields())
	require.NoError(t, err)
	require.Len(t, compiled, 1)

	spec := compiled["camp_v1"]
	require.NotNil(t, spec)
	require.Len(t, spec.Dimensions, 2)

	// Descriptors arrive unordered; compilation re-sorts by prefix index.
	require.Equal(t, 0, spec.Dimensions[0].Index)
	require.Equal(t, "dim_region", spec.Dimensions[0].Name)
	require.Equal(t, 1, spec.Dimensions[1].Index)
	require.Equal(t, "dim_campaign_id", spec.Dimensions[1].Name)

	t.Run("full match expression captures every dimension", func(t *testing.T) {
		t.Parallel()

		re := sqlRegex(t, spec.FullMatchExpression)
		require.Equal(t, 2, re.NumSubexp())

		groups := re.FindStringSubmatch("US_12345")
		require.NotNil(t, groups)
		require.Equal(t, "US", groups[1])
		require.Equal(t, "12345", groups[2])

		require.Nil(t, re.FindStringSubmatch("US-12345"))
	})

	t.Run("first dimension extracts its own segment", func(t *testing.T) {
		t.Parallel()

		re := sqlRegex(t, spec.Dimensions[0].RegexMatchExpression)
		groups := re.FindStringSubmatch("US_12345")
		require.NotNil(t, groups)
		require.Equal(t, "US", groups[1])
	})

	t.Run("last dimension runs to end of string", func(t *testing.T) {
		t.Parallel()

		re := sqlRegex(t, spec.Dimensions[1].RegexMatchExpression)
		groups := re.FindStringSubmatch("US_12345")
		require.NotNil(t, groups)
		require.Equal(t, "12345", groups[1])
	})

	t.Run("no cross join needed when every boundary is delimited", func(t *testing.T) {
		t.Parallel()

		require.False(t, spec.Dimensions[0].RequiresCrossjoinValidation)
		require.False(t, spec.Dimensions[1].RequiresCrossjoinValidation)
	})

	t.Run("only the last dimension owns an extra data expression", func(t *testing.T) {
		t.Parallel()

		require.Empty(t, spec.Dimensions[0].ExtraDataRegex)
		require.NotEmpty(t, spec.Dimensions[1].ExtraDataRegex)
		require.Equal(t, spec.Dimensions[1].ExtraDataRegex, spec.LastDimension().ExtraDataRegex)
	})
}

func TestWizard_CompileDimensions_CrossjoinBoundary(t *testing.T) {
	t.Parallel()

	// The middle dimension carries no delimiter, so its boundary can only be
	// verified against the dictionary of legal values.
	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "plc_v2", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "_"},
		{TaxonomySpecName: "plc_v2", FieldName: "Channel", PrefixIndex: 1, EndDelimiter: ""},
		{TaxonomySpecName: "plc_v2", FieldName: "Campaign ID", PrefixIndex: 2, EndDelimiter: ""},
	}

	compiled, err := CompileDimensions(descriptors, testFields())
	require.NoError(t, err)
	spec := compiled["plc_v2"]
	require.Len(t, spec.Dimensions, 3)

	middle := spec.Dimensions[1]
	require.True(t, middle.RequiresCrossjoinValidation)
	require.Contains(t, middle.RegexMatchExpression, "', D_1, '")
	require.Len(t, middle.Splices, 1)
	require.Equal(t, 1, middle.Splices[0].Index)

	// The final dimension is bounded by end of string, but its prefix keeps
	// the cross-join splice so the extraction stays anchored past the channel
	// segment.
	last := spec.Dimensions[2]
	require.False(t, last.RequiresCrossjoinValidation)
	require.Contains(t, last.RegexMatchExpression, "', D_1, '")
	require.Len(t, last.Splices, 1)

	re := spliceRegex(t, last.RegexMatchExpression, map[int]string{1: "video"})
	groups := re.FindStringSubmatch("US_video12345")
	require.NotNil(t, groups)
	require.Equal(t, "12345", groups[1])

	// The specification-level expression is matched without bindings and
	// carries the splice-free stand-in instead.
	require.NotContains(t, spec.FullMatchExpression, "D_1")
}

func TestWizard_CompileDimensions_AnchorsAfterCrossjoin(t *testing.T) {
	t.Parallel()

	// The channel segment has no delimiter, so the region extraction that
	// follows must be anchored through the channel lookup values rather than
	// a lazy stand-in that lets the capture swallow the channel text.
	fields := testFields()
	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "mix_v1", FieldName: "Channel", PrefixIndex: 0, EndDelimiter: ""},
		{TaxonomySpecName: "mix_v1", FieldName: "Region", PrefixIndex: 1, EndDelimiter: "_"},
		{TaxonomySpecName: "mix_v1", FieldName: "Campaign ID", PrefixIndex: 2, EndDelimiter: ""},
	}

	compiled, err := CompileDimensions(descriptors, fields)
	require.NoError(t, err)
	spec := compiled["mix_v1"]
	require.Len(t, spec.Dimensions, 3)

	region := spec.Dimensions[1]
	require.False(t, region.RequiresCrossjoinValidation)
	require.Contains(t, region.RegexMatchExpression, "', D_0, '")
	require.Len(t, region.Splices, 1)
	require.Equal(t, 0, region.Splices[0].Index)
	require.Same(t, fields["Channel"], region.Splices[0].Field)

	re := spliceRegex(t, region.RegexMatchExpression, map[int]string{0: "video"})
	groups := re.FindStringSubmatch("videoUS_123")
	require.NotNil(t, groups)
	require.Equal(t, "US", groups[1])

	// The rendered dictionary check binds the splice and tests the extracted
	// segment against the region lookup values.
	check := region.DictionaryCheck("taxonomy")
	require.Contains(t, check, "arrayExists(D_0 ->")
	require.Contains(t, check, "groupArray(id) FROM taxonomy.dim_channel")
	require.Contains(t, check, "has((SELECT groupArray(id) FROM taxonomy.dim_region)")

	// Expressions matched without bindings stay splice-free.
	require.NotContains(t, spec.FullMatchExpression, "D_0")
	require.NotContains(t, spec.LastDimension().ExtraDataRegex, "D_0")
}

func TestWizard_CompileDimensions_ExtraDataAfterDelimitedTail(t *testing.T) {
	t.Parallel()

	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "tail_v1", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "_"},
		{TaxonomySpecName: "tail_v1", FieldName: "Channel", PrefixIndex: 1, EndDelimiter: "_"},
	}

	compiled, err := CompileDimensions(descriptors, testFields())
	require.NoError(t, err)

	extra := compiled["tail_v1"].LastDimension().ExtraDataRegex
	require.NotEmpty(t, extra)

	re := sqlRegex(t, extra)
	groups := re.FindStringSubmatch("US_search_leftover")
	require.NotNil(t, groups)
	require.Equal(t, "leftover", groups[1])

	groups = re.FindStringSubmatch("US_search_")
	require.NotNil(t, groups)
	require.Empty(t, groups[1])
}

func TestWizard_CompileDimensions_DelimiterMetacharactersEscaped(t *testing.T) {
	t.Parallel()

	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "dot_v1", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "."},
		{TaxonomySpecName: "dot_v1", FieldName: "Campaign ID", PrefixIndex: 1, EndDelimiter: ""},
	}

	compiled, err := CompileDimensions(descriptors, testFields())
	require.NoError(t, err)

	re := sqlRegex(t, compiled["dot_v1"].FullMatchExpression)
	require.NotNil(t, re.FindStringSubmatch("US.123"))
	require.Nil(t, re.FindStringSubmatch("USX123"), "an unescaped dot would match any rune")
}

func TestWizard_CompileDimensions_QuoteDelimiterStaysInsideLiteral(t *testing.T) {
	t.Parallel()

	descriptors := []DimensionDescriptor{
		{TaxonomySpecName: "q_v1", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "'"},
		{TaxonomySpecName: "q_v1", FieldName: "Campaign ID", PrefixIndex: 1, EndDelimiter: ""},
	}

	compiled, err := CompileDimensions(descriptors, testFields())
	require.NoError(t, err)

	// Every quote inside the concat literal must be escaped, or the delimiter
	// would terminate the SQL string early.
	for _, expr := range []string{
		compiled["q_v1"].Dimensions[0].RegexMatchExpression,
		compiled["q_v1"].FullMatchExpression,
	} {
		body := strings.TrimSuffix(strings.TrimPrefix(expr, "concat('"), "')")
		require.NotContains(t, strings.ReplaceAll(body, `\'`, ""), "'",
			"unescaped quote in %q", expr)
	}
}

func TestWizard_CompileDimensions_Errors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate prefix index", func(t *testing.T) {
		t.Parallel()

		descriptors := []DimensionDescriptor{
			{TaxonomySpecName: "dup_v1", FieldName: "Region", PrefixIndex: 0, EndDelimiter: "_"},
			{TaxonomySpecName: "dup_v1", FieldName: "Channel", PrefixIndex: 0, EndDelimiter: "_"},
		}
		_, err := CompileDimensions(descriptors, testFields())
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate prefix_index")
		require.Contains(t, err.Error(), `"dup_v1"`)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		descriptors := []DimensionDescriptor{
			{TaxonomySpecName: "camp_v1", FieldName: "No Such Field", PrefixIndex: 0, EndDelimiter: "_"},
		}
		_, err := CompileDimensions(descriptors, testFields())
		require.Error(t, err)
		require.Contains(t, err.Error(), `"No Such Field"`)
	})
}

func TestWizard_FlexInt_AcceptsNumbersAndNumericStrings(t *testing.T) {
	t.Parallel()

	var d DimensionDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"taxonomy_spec_name":"s","field_name":"f","prefix_index":2,"end_delimiter":"_"}`), &d))
	require.Equal(t, FlexInt(2), d.PrefixIndex)

	require.NoError(t, json.Unmarshal([]byte(`{"taxonomy_spec_name":"s","field_name":"f","prefix_index":"3","end_delimiter":"_"}`), &d))
	require.Equal(t, FlexInt(3), d.PrefixIndex)

	require.Error(t, json.Unmarshal([]byte(`{"prefix_index":"three"}`), &d))
}
