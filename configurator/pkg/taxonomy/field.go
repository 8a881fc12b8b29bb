package taxonomy

import (
	"fmt"
	"strings"
)

// normalizedFieldNamePrefix marks warehouse lookup tables and columns derived
// from user-declared field labels.
const normalizedFieldNamePrefix = "dim_"

// FieldJSON is one TaxonomyField declaration from the configuration request.
type FieldJSON struct {
	Name            string `json:"name"`
	IsFreeformText  bool   `json:"is_freeform_text"`
	DictionaryURL   string `json:"dictionary_url"`
	DictionarySheet string `json:"dictionary_sheet"`
	DictionaryRange string `json:"dictionary_range"`
}

// Field describes one semantic attribute that may be embedded within an
// entity name. Fields are shared by reference across the dimensions that use
// them and are immutable after construction.
type Field struct {
	Name            string
	NormalizedName  string
	IsFreeformText  bool
	DictionaryURL   string
	DictionarySheet string
	DictionaryRange string
	CloudProjectID  string
	Dataset         string
}

func NewField(j FieldJSON, cloudProjectID, dataset string) *Field {
	return &Field{
		Name:            j.Name,
		NormalizedName:  NormalizeFieldName(j.Name),
		IsFreeformText:  j.IsFreeformText,
		DictionaryURL:   j.DictionaryURL,
		DictionarySheet: j.DictionarySheet,
		DictionaryRange: j.DictionaryRange,
		CloudProjectID:  cloudProjectID,
		Dataset:         dataset,
	}
}

// NormalizeFieldName lowercases the label and replaces every rune outside
// [a-z] with an underscore, then applies the fixed prefix. The result is a
// pure function of the input.
func NormalizeFieldName(name string) string {
	lowered := strings.ToLower(name)
	var b strings.Builder
	b.WriteString(normalizedFieldNamePrefix)
	for _, r := range lowered {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// TableName is the warehouse lookup table holding this field's legal values.
func (f *Field) TableName() string {
	return f.NormalizedName
}

// TableID is the fully qualified lookup table reference.
func (f *Field) TableID() string {
	return fmt.Sprintf("%s.%s", f.Dataset, f.NormalizedName)
}
