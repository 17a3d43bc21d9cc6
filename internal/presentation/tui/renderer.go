package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, err }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// CatalogMarkdown documents the advertised tools as markdown.
func CatalogMarkdown(tools []domain.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("# Tools\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "\n## `%s`\n\n", tool.Name)

		b.WriteString("| Argument | Type | Required | Description |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, p := range tool.InputSchema.Properties {
			required := "no"
			if tool.InputSchema.IsRequired(p.Name) {
				required = "yes"
			}
			desc := p.Description
			if len(p.Enum) > 0 {
				desc += " One of: " + strings.Join(p.Enum, ", ") + "."
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", p.Name, p.Type, required, escapeCell(desc))
		}

		b.WriteString("\n```text\n")
		b.WriteString(tool.Description)
		b.WriteString("\n```\n")
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
