package output

import (
	"encoding/json"

	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/store"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatDefinition renders a compiled definition in its boundary shape.
func (f *JSONFormatter) FormatDefinition(def *promptdef.Definition) (string, error) {
	if def == nil {
		return "", nil
	}
	return f.marshal(def)
}

// FormatValidation renders a validation report as JSON.
func (f *JSONFormatter) FormatValidation(report *ValidationReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatCheck renders a check report as JSON.
func (f *JSONFormatter) FormatCheck(report *CheckReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatCatalog renders catalog entries as JSON.
func (f *JSONFormatter) FormatCatalog(entries []store.CatalogEntry) (string, error) {
	if entries == nil {
		entries = []store.CatalogEntry{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
