package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/store"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatDefinition renders a definition as a field/value table.
func (f *TableFormatter) FormatDefinition(def *promptdef.Definition) (string, error) {
	if def == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"name", def.Name()})
	t.AppendRow(table.Row{"client", def.Client()})
	t.AppendRow(table.Row{"type", def.Type()})
	t.AppendRow(table.Row{"extends", extendsLabel(def)})
	t.AppendRow(table.Row{"tools", toolsLabel(def)})
	t.AppendRow(table.Row{"max_turns", def.MaxTurns()})
	t.AppendRow(table.Row{"inputs", schemaCell(def.InputsSchema())})
	t.AppendRow(table.Row{"output", schemaCell(def.OutputSchema())})
	return t.Render(), nil
}

// FormatValidation renders one row per diagnostic.
func (f *TableFormatter) FormatValidation(report *ValidationReport) (string, error) {
	if report == nil {
		return "", nil
	}
	if report.Valid {
		return "valid", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Path", "Keyword", "Message"})
	for _, d := range report.Diagnostics {
		t.AppendRow(table.Row{pathLabel(d.Path), d.Keyword, d.Message})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d violation(s)", len(report.Diagnostics))})
	return t.Render(), nil
}

// FormatCheck renders one row per prompt file.
func (f *TableFormatter) FormatCheck(report *CheckReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Path", "Name", "Status", "Error"})
	for _, item := range report.Items {
		t.AppendRow(table.Row{item.Path, item.Name, item.Status, itemError(item)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d ok", report.Total-report.Failed, report.Total), ""})
	return t.Render(), nil
}

// FormatCatalog renders indexed catalog entries.
func (f *TableFormatter) FormatCatalog(entries []store.CatalogEntry) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Name", "Type", "Client", "Extends", "Source", "Indexed"})
	for _, e := range entries {
		extends := e.Extends
		if extends == "" {
			extends = "-"
		}
		t.AppendRow(table.Row{e.Name, e.PromptType, e.Client, extends, e.Source, e.IndexedAt.UTC().Format(time.RFC3339)})
	}
	return t.Render(), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func schemaCell(s *promptdef.Schema) string {
	lines := schemaSummary(s)
	if len(lines) == 0 {
		return "any"
	}
	return strings.Join(lines, "\n")
}

func pathLabel(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func itemError(item CheckItem) string {
	if item.Message == "" {
		return ""
	}
	if item.Kind == "" {
		return item.Message
	}
	return item.Kind + ": " + item.Message
}
