// Package output renders compiler results for the terminal.
package output

import (
	"fmt"
	"strings"

	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/store"
	"github.com/namelens/promptc/internal/validate"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Check statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CheckItem is the outcome of compiling one prompt file.
type CheckItem struct {
	Path    string `json:"path"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckReport summarizes a directory check.
type CheckReport struct {
	Dir    string      `json:"dir"`
	Items  []CheckItem `json:"items"`
	Total  int         `json:"total"`
	Failed int         `json:"failed"`
}

// Add appends an item and updates the counters.
func (r *CheckReport) Add(item CheckItem) {
	r.Items = append(r.Items, item)
	r.Total++
	if item.Status != StatusOK {
		r.Failed++
	}
}

// ValidationReport is the result of validating one instance.
type ValidationReport struct {
	Valid       bool                  `json:"valid"`
	Diagnostics []validate.Diagnostic `json:"diagnostics"`
}

// Formatter renders compiler results.
type Formatter interface {
	FormatDefinition(def *promptdef.Definition) (string, error)
	FormatValidation(report *ValidationReport) (string, error)
	FormatCheck(report *CheckReport) (string, error)
	FormatCatalog(entries []store.CatalogEntry) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// schemaSummary lists top-level properties as "name: type", marking optional
// ones with "?".
func schemaSummary(s *promptdef.Schema) []string {
	if s == nil || s.IsEmpty() {
		return nil
	}
	if s.Properties == nil {
		return []string{schemaType(s)}
	}
	lines := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		name := p.Name
		if p.Schema.IsOptional() {
			name += "?"
		}
		lines = append(lines, name+": "+schemaType(p.Schema))
	}
	return lines
}

func schemaType(s *promptdef.Schema) string {
	switch {
	case s == nil || s.IsEmpty():
		return "any"
	case s.IsOptional():
		return schemaType(s.AnyOf[0])
	case len(s.Enum) > 0:
		return strings.Join(s.Enum, " | ")
	case s.Type == "array":
		return schemaType(s.Items) + "[]"
	case s.Type != "":
		return s.Type
	default:
		return "any"
	}
}

func extendsLabel(def *promptdef.Definition) string {
	if parent, ok := def.Extends(); ok {
		return parent
	}
	return "-"
}

func toolsLabel(def *promptdef.Definition) string {
	tools := def.Tools()
	if len(tools) == 0 {
		return "-"
	}
	return strings.Join(tools, ", ")
}
