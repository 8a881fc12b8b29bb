package taxonomy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CompiledSpec is the compiler output for one taxonomy specification: its
// dimensions in index order, each carrying its own match expression, plus a
// specification-level expression with one capturing group per dimension.
type CompiledSpec struct {
	Dimensions          []*Dimension
	FullMatchExpression string
}

// LastDimension returns the dimension at the maximum index.
func (c *CompiledSpec) LastDimension() *Dimension {
	if len(c.Dimensions) == 0 {
		return nil
	}
	return c.Dimensions[len(c.Dimensions)-1]
}

// Splice is one cross-join lookup reference (the D_<index> variable) embedded
// in a dimension's match expression. The variable ranges over the cross-join
// dimension's own lookup values at validation time.
type Splice struct {
	Index int
	Field *Field
}

// compilerState is the fold state threaded through one specification's
// dimensions in ascending index order. prefix holds the accumulated pattern
// with every prior dimension rewritten as a non-capturing group, keeping
// cross-join splices so later extractions stay anchored to real segment
// boundaries. loose is the splice-free variant used where no cross-join
// binding is available (the specification-level and extra-data expressions),
// and full is the plain body of the specification-level expression.
type compilerState struct {
	prefix  string
	loose   string
	full    string
	splices []Splice
}

const sqlConcatOpen = "concat('"

// CompileDimensions turns the request's dimension descriptors into compiled
// dimensions grouped per specification name. Descriptors are processed in
// ascending prefix-index order within each specification; duplicate indices
// within one specification are a configuration error.
//
// Each dimension's capture is decided by its delimiter and position:
//   - a non-empty delimiter bounds the segment at the escaped literal;
//   - an empty delimiter on a non-final dimension defers the boundary to the
//     dictionary of legal values, which only a cross join against the lookup
//     table can verify, so the dimension is flagged accordingly;
//   - an empty delimiter on the final dimension runs to end of string.
//
// The final dimension additionally receives an extra-data expression that
// captures trailing characters after the last recognized segment.
func CompileDimensions(descriptors []DimensionDescriptor, fields map[string]*Field) (map[string]*CompiledSpec, error) {
	sorted := make([]DimensionDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return int(sorted[i].PrefixIndex) < int(sorted[j].PrefixIndex)
	})

	lastIndexes, err := lastIndexPerSpec(sorted)
	if err != nil {
		return nil, err
	}

	compiled := make(map[string]*CompiledSpec)
	states := make(map[string]*compilerState)

	for _, d := range sorted {
		field, ok := fields[d.FieldName]
		if !ok {
			return nil, fmt.Errorf("dimension %d of spec %q references unknown field %q",
				int(d.PrefixIndex), d.TaxonomySpecName, d.FieldName)
		}

		state, ok := states[d.TaxonomySpecName]
		if !ok {
			state = &compilerState{prefix: "^", loose: "^", full: "^"}
			states[d.TaxonomySpecName] = state
			compiled[d.TaxonomySpecName] = &CompiledSpec{}
		}

		dim := compileDimension(d, field, state, lastIndexes[d.TaxonomySpecName])
		spec := compiled[d.TaxonomySpecName]
		spec.Dimensions = append(spec.Dimensions, dim)
	}

	for name, spec := range compiled {
		spec.FullMatchExpression = sqlConcatOpen + states[name].full + "$')"
	}

	return compiled, nil
}

// compileDimension emits one dimension's expressions and advances the fold
// state past it.
func compileDimension(d DimensionDescriptor, field *Field, state *compilerState, lastIndex int) *Dimension {
	index := int(d.PrefixIndex)
	isLast := index == lastIndex
	escaped := sqlEscape(regexp.QuoteMeta(d.EndDelimiter))

	// ownBody is this dimension's capture content in the spliced expressions;
	// looseBody is the splice-free stand-in for expressions matched without
	// cross-join bindings.
	var ownBody, looseBody, trailing string
	var crossjoin bool

	switch {
	case d.EndDelimiter != "":
		ownBody = "[^" + escaped + "]*?"
		looseBody = ownBody
		trailing = escaped
	case !isLast:
		crossjoin = true
		looseBody = ".*?"
		if field.IsFreeformText {
			// Freeform values have no dictionary to bind against.
			ownBody = looseBody
		} else {
			ownBody = fmt.Sprintf("', D_%d, '", index)
		}
	default:
		ownBody = ".*"
		looseBody = ownBody
	}

	splices := make([]Splice, len(state.splices))
	copy(splices, state.splices)
	if crossjoin && !field.IsFreeformText {
		splices = append(splices, Splice{Index: index, Field: field})
	}

	matchExpr := sqlConcatOpen + state.prefix + "(" + ownBody + ")" + trailing
	if isLast && d.EndDelimiter == "" {
		matchExpr += "$"
	}
	matchExpr += "')"

	extraData := ""
	if isLast {
		extraData = sqlConcatOpen + state.loose + "(?:" + looseBody + ")" + trailing + "(.*)$')"
	}

	state.prefix += "(?:" + ownBody + ")" + trailing
	state.loose += "(?:" + looseBody + ")" + trailing
	state.full += "(" + looseBody + ")" + trailing
	state.splices = splices

	return &Dimension{
		Name:                        field.NormalizedName,
		Index:                       index,
		EndDelimiter:                d.EndDelimiter,
		Field:                       field,
		RegexMatchExpression:        matchExpr,
		RequiresCrossjoinValidation: crossjoin,
		ExtraDataRegex:              extraData,
		Splices:                     splices,
	}
}

// lastIndexPerSpec computes the maximum prefix index per specification and
// rejects duplicate indices within one specification.
func lastIndexPerSpec(sorted []DimensionDescriptor) (map[string]int, error) {
	last := make(map[string]int)
	seen := make(map[string]map[int]bool)
	for _, d := range sorted {
		index := int(d.PrefixIndex)
		spec := d.TaxonomySpecName
		if seen[spec] == nil {
			seen[spec] = make(map[int]bool)
		}
		if seen[spec][index] {
			return nil, fmt.Errorf("duplicate prefix_index %d in spec %q", index, spec)
		}
		seen[spec][index] = true
		if current, ok := last[spec]; !ok || index > current {
			last[spec] = index
		}
	}
	return last, nil
}

// sqlEscape escapes single quotes so a value can be embedded inside a SQL
// single-quoted string literal.
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
