package taxonomy

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.sql.tmpl
var templatesFS embed.FS

const delimitedValidatorTemplate = "delimited_validator.sql.tmpl"

// Renderer renders validation query templates for compiled specifications.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").
		Funcs(template.FuncMap{"sqlSafe": sqlEscape}).
		ParseFS(templatesFS, "templates/*.sql.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse validation templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type templateContext struct {
	Spec    *Specification
	Dataset string
}

// RenderValidationQueryTemplate produces the SQL validation template for one
// specification and stores it on the spec. The rendered query consumes the
// @entity_names array placeholder and outputs name and validation_message
// columns.
func (r *Renderer) RenderValidationQueryTemplate(spec *Specification, dataset string) error {
	if spec.FieldStructureType != StructureDelimited {
		return fmt.Errorf("%w %q in spec %q", ErrUnsupportedStructureType, spec.FieldStructureType, spec.Name)
	}

	var b strings.Builder
	if err := r.tmpl.ExecuteTemplate(&b, delimitedValidatorTemplate, templateContext{
		Spec:    spec,
		Dataset: dataset,
	}); err != nil {
		return fmt.Errorf("failed to render validation template for spec %q: %w", spec.Name, err)
	}
	spec.ValidationQueryTemplate = b.String()
	return nil
}
