// Package notetools provides MCP tool handlers over the SQLite canvas.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (canvas.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Menu turns generate commands into tools of the same shape.
package notetools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/chattree/internal/canvas"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// idsArg reads a comma-separated list of note ids.
func idsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	for _, id := range strings.Split(req.GetString(key, ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// truncate shortens s to max runes, adding "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func formatRecord(r canvas.Record) string {
	return fmt.Sprintf("%s [%s] %dx%d @ (%d,%d)", r.ID, r.Role, r.Width, r.Height, r.X, r.Y)
}
