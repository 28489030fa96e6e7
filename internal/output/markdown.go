package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/store"
)

// MarkdownFormatter renders results as markdown.
type MarkdownFormatter struct{}

// FormatDefinition renders a definition with its body in a fenced block.
func (f *MarkdownFormatter) FormatDefinition(def *promptdef.Definition) (string, error) {
	if def == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(def.Name())))
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	writeRow(&sb, "client", def.Client())
	writeRow(&sb, "type", def.Type())
	writeRow(&sb, "extends", extendsLabel(def))
	writeRow(&sb, "tools", toolsLabel(def))
	writeRow(&sb, "max_turns", fmt.Sprintf("%d", def.MaxTurns()))
	writeRow(&sb, "inputs", strings.Join(schemaSummary(def.InputsSchema()), "; "))
	writeRow(&sb, "output", strings.Join(schemaSummary(def.OutputSchema()), "; "))

	if body := strings.TrimSpace(def.BodyTemplate()); body != "" {
		sb.WriteString("\n```jinja\n")
		sb.WriteString(body)
		sb.WriteString("\n```\n")
	}
	return sb.String(), nil
}

// FormatValidation renders diagnostics as a markdown table.
func (f *MarkdownFormatter) FormatValidation(report *ValidationReport) (string, error) {
	if report == nil {
		return "", nil
	}
	if report.Valid {
		return "**Valid**\n", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Invalid**: %d violation(s)\n\n", len(report.Diagnostics)))
	sb.WriteString("| Path | Keyword | Message |\n")
	sb.WriteString("|------|---------|---------|\n")
	for _, d := range report.Diagnostics {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(pathLabel(d.Path)),
			escapeMarkdownCell(d.Keyword),
			escapeMarkdownCell(d.Message),
		))
	}
	return sb.String(), nil
}

// FormatCheck renders a check report as a markdown table.
func (f *MarkdownFormatter) FormatCheck(report *CheckReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Prompt check: %s\n\n", escapeMarkdownCell(report.Dir)))
	sb.WriteString("| Path | Name | Status | Error |\n")
	sb.WriteString("|------|------|--------|-------|\n")
	for _, item := range report.Items {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(item.Path),
			escapeMarkdownCell(item.Name),
			escapeMarkdownCell(item.Status),
			escapeMarkdownCell(itemError(item)),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Result**: %d/%d ok\n", report.Total-report.Failed, report.Total))
	return sb.String(), nil
}

// FormatCatalog renders catalog entries as a markdown table.
func (f *MarkdownFormatter) FormatCatalog(entries []store.CatalogEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Name | Type | Client | Extends | Source | Indexed |\n")
	sb.WriteString("|------|------|--------|---------|--------|---------|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(e.Name),
			escapeMarkdownCell(e.PromptType),
			escapeMarkdownCell(e.Client),
			escapeMarkdownCell(e.Extends),
			escapeMarkdownCell(e.Source),
			e.IndexedAt.UTC().Format(time.RFC3339),
		))
	}
	return sb.String(), nil
}

func writeRow(sb *strings.Builder, field, value string) {
	sb.WriteString(fmt.Sprintf("| %s | %s |\n", field, escapeMarkdownCell(value)))
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
