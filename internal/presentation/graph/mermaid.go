package graph

import (
	"fmt"
	"strings"
)

// Kinds of backend a tool can route to.
const (
	KindAPI = "api"
	KindCLI = "cli"
)

// Route links an advertised tool to the backend it calls.
type Route struct {
	Tool   string
	Kind   string
	Target string
	// Via labels the edge, e.g. the credential header name.
	Via string
}

// GenerateMermaid produces a Mermaid flowchart of the client, its tools and their backends.
// Shapes:
// - Client: ((Circle))
// - Tool: [[Subroutine]]
// - HTTP API: [/Parallelogram/]
// - Program: [Rectangle]
// CLI edges are dotted since the credential crosses a process boundary.
func GenerateMermaid(routes []Route) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("    client((\"MCP client\"))\n")

	seen := make(map[string]bool)
	for _, r := range routes {
		toolID := "tool_" + sanitizeMermaidID(r.Tool)
		targetID := r.Kind + "_" + sanitizeMermaidID(r.Target)

		sb.WriteString(fmt.Sprintf("    client --> %s[[\"%s\"]]\n", toolID, escapeLabel(r.Tool)))

		if !seen[targetID] {
			seen[targetID] = true
			opener, closer := "[", "]"
			if r.Kind == KindAPI {
				opener, closer = "[/", "/]"
			}
			sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", targetID, opener, escapeLabel(r.Target), closer))
		}

		arrow := "-->"
		if r.Kind == KindCLI {
			arrow = "-.->"
		}
		if r.Via != "" {
			via := escapeLabel(r.Via)
			arrow = fmt.Sprintf("-- \"%s\" -->", via)
			if r.Kind == KindCLI {
				arrow = fmt.Sprintf("-. \"%s\" .->", via)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", toolID, arrow, targetID))
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
