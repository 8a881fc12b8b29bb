package taxonomy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dimension is one ordered, delimited segment of a taxonomy name, bound to a
// Field. The regex fields are populated by the compiler.
type Dimension struct {
	Name         string
	Index        int
	EndDelimiter string
	Field        *Field

	RegexMatchExpression        string
	RequiresCrossjoinValidation bool
	ExtraDataRegex              string

	// Splices lists the cross-join lookup variables the match expression
	// references, in index order. Any dictionary check built from the
	// expression must bind every one of them.
	Splices []Splice
}

// DictionaryCheck returns the SQL predicate that is true when a name fails
// this dimension's dictionary validation. An expression that references
// cross-join splices is evaluated inside arrayExists bindings over the
// spliced dimensions' lookup values, so extractions stay anchored to real
// segment boundaries.
func (d *Dimension) DictionaryCheck(dataset string) string {
	if len(d.Splices) == 0 {
		return fmt.Sprintf("extract(n.name, %s) NOT IN\n            (SELECT id FROM %s.%s)",
			d.RegexMatchExpression, dataset, d.Field.TableName())
	}

	var inner string
	if d.RequiresCrossjoinValidation {
		// The capture is the splice itself; matching means the segment equals
		// one of the bound lookup values.
		inner = fmt.Sprintf("match(n.name, %s)", d.RegexMatchExpression)
	} else {
		inner = fmt.Sprintf("has(%s, extract(n.name, %s))",
			lookupArray(dataset, d.Field), d.RegexMatchExpression)
	}

	for i := len(d.Splices) - 1; i >= 0; i-- {
		s := d.Splices[i]
		inner = fmt.Sprintf("arrayExists(D_%d -> %s,\n            %s)",
			s.Index, inner, lookupArray(dataset, s.Field))
	}
	return "NOT " + inner
}

func lookupArray(dataset string, f *Field) string {
	return fmt.Sprintf("(SELECT groupArray(id) FROM %s.%s)", dataset, f.TableName())
}

// DimensionDescriptor is one TaxonomyDimension declaration from the
// configuration request.
type DimensionDescriptor struct {
	TaxonomySpecName string  `json:"taxonomy_spec_name"`
	FieldName        string  `json:"field_name"`
	PrefixIndex      FlexInt `json:"prefix_index"`
	EndDelimiter     string  `json:"end_delimiter"`
}

// FlexInt accepts both JSON numbers and numeric strings; spreadsheet exports
// deliver prefix indices either way.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		return fmt.Errorf("prefix_index is required")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid prefix_index %q: %w", s, err)
	}
	*f = FlexInt(v)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(f))
}
