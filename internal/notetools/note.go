package notetools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/notegraph"
)

// ─── CreateTool ─────────────────────────────────────────────────────────────

// CreateTool handles the note_create MCP tool.
type CreateTool struct {
	store *canvas.Store
}

// NewCreateTool creates a CreateTool with the given canvas.
func NewCreateTool(store *canvas.Store) *CreateTool {
	return &CreateTool{store: store}
}

// Definition returns the MCP tool definition for note_create.
func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("note_create",
		mcp.WithDescription(
			"Add a note to the canvas. Connect it to a parent note to continue a conversation; "+
				"a note whose text starts with SYSTEM PROMPT sets the system prompt for its descendants.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Note text (markdown)"),
		),
		mcp.WithString("parents",
			mcp.Description("Comma-separated ids of the notes this note continues. The last one is followed when generating."),
		),
		mcp.WithString("role",
			mcp.Description("user (default) or assistant"),
			mcp.Enum(string(notegraph.RoleUser), string(notegraph.RoleAssistant)),
		),
		mcp.WithNumber("width",
			mcp.Description("Width in pixels (default: 400)"),
		),
		mcp.WithBoolean("select",
			mcp.Description("Make the new note the selection (default: true)"),
		),
	)
}

// Handle processes the note_create tool call.
func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	n, err := t.store.AddNote(ctx, canvas.AddParams{
		Text:    text,
		Role:    notegraph.Role(req.GetString("role", string(notegraph.RoleUser))),
		Width:   intArg(req, "width", 0),
		Parents: idsArg(req, "parents"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create note: %v", err)), nil
	}

	if boolArg(req, "select", true) {
		if err := t.store.Select(ctx, n.ID()); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("note %s created but not selected: %v", n.ID(), err)), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note created: %s", formatRecord(n.Record()))), nil
}

// ─── LinkTool ───────────────────────────────────────────────────────────────

// LinkTool handles the note_link MCP tool.
type LinkTool struct {
	store *canvas.Store
}

// NewLinkTool creates a LinkTool with the given canvas.
func NewLinkTool(store *canvas.Store) *LinkTool {
	return &LinkTool{store: store}
}

// Definition returns the MCP tool definition for note_link.
func (t *LinkTool) Definition() mcp.Tool {
	return mcp.NewTool("note_link",
		mcp.WithDescription(
			"Connect a note to a parent note, or remove that connection. "+
				"When a note has several parents, generation follows the most recently connected one.",
		),
		mcp.WithString("child_id",
			mcp.Required(),
			mcp.Description("Note that continues the conversation"),
		),
		mcp.WithString("parent_id",
			mcp.Required(),
			mcp.Description("Note being continued"),
		),
		mcp.WithBoolean("unlink",
			mcp.Description("If true, remove the edge instead of adding it (default: false)"),
		),
	)
}

// Handle processes the note_link tool call.
func (t *LinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	child := req.GetString("child_id", "")
	parent := req.GetString("parent_id", "")
	if child == "" {
		return mcp.NewToolResultError("'child_id' is required"), nil
	}
	if parent == "" {
		return mcp.NewToolResultError("'parent_id' is required"), nil
	}

	if boolArg(req, "unlink", false) {
		if err := t.store.Disconnect(ctx, child, parent); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to unlink: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Unlinked: %s -/-> %s", child, parent)), nil
	}

	if err := t.store.Connect(ctx, child, parent); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to link: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Linked: %s → %s", child, parent)), nil
}

// ─── ShowTool ───────────────────────────────────────────────────────────────

// ShowTool handles the note_show MCP tool.
type ShowTool struct {
	store *canvas.Store
}

// NewShowTool creates a ShowTool with the given canvas.
func NewShowTool(store *canvas.Store) *ShowTool {
	return &ShowTool{store: store}
}

// Definition returns the MCP tool definition for note_show.
func (t *ShowTool) Definition() mcp.Tool {
	return mcp.NewTool("note_show",
		mcp.WithDescription(
			"Show a note with its full text, its children, and the chain of ancestors generation would read.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Note id"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Ancestors to list (default: 10, 0 for all)"),
		),
	)
}

// Handle processes the note_show tool call.
func (t *ShowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	n, err := t.store.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("note not found: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n", formatRecord(n.Record()), n.Text())

	kids, err := t.store.Children(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list children: %v", err)), nil
	}
	if len(kids) > 0 {
		fmt.Fprintf(&b, "\nChildren (%d):\n", len(kids))
		for _, k := range kids {
			fmt.Fprintf(&b, "  - %s %s\n", k.ID(), truncate(k.Text(), 80))
		}
	}

	var chain []string
	err = notegraph.Walk(ctx, n, intArg(req, "depth", 10), func(_ context.Context, a notegraph.Node, depth int) (bool, error) {
		if depth > 0 {
			chain = append(chain, fmt.Sprintf("  %d. %s [%s] %s", depth, a.ID(), a.Role(), truncate(a.Text(), 80)))
		}
		return true, nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to walk ancestors: %v", err)), nil
	}
	if len(chain) > 0 {
		fmt.Fprintf(&b, "\nAncestors (%d):\n%s\n", len(chain), strings.Join(chain, "\n"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── SelectTool ─────────────────────────────────────────────────────────────

// SelectTool handles the note_select MCP tool.
type SelectTool struct {
	store *canvas.Store
}

// NewSelectTool creates a SelectTool with the given canvas.
func NewSelectTool(store *canvas.Store) *SelectTool {
	return &SelectTool{store: store}
}

// Definition returns the MCP tool definition for note_select.
func (t *SelectTool) Definition() mcp.Tool {
	return mcp.NewTool("note_select",
		mcp.WithDescription(
			"Replace the canvas selection. The commands act on the selection when no note_id is given.",
		),
		mcp.WithString("ids",
			mcp.Description("Comma-separated note ids; empty clears the selection"),
		),
	)
}

// Handle processes the note_select tool call.
func (t *SelectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := idsArg(req, "ids")
	if err := t.store.Select(ctx, ids...); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to select: %v", err)), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText("Selection cleared"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Selected %d note(s): %s", len(ids), strings.Join(ids, ", "))), nil
}

// ─── SearchTool ─────────────────────────────────────────────────────────────

// SearchTool handles the note_search MCP tool.
type SearchTool struct {
	store *canvas.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *canvas.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for note_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("note_search",
		mcp.WithDescription("Full-text search over note text. An empty query lists the most recently edited notes."),
		mcp.WithString("query",
			mcp.Description("Keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 20)"),
		),
	)
}

// Handle processes the note_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := t.store.Search(ctx, req.GetString("query", ""), intArg(req, "limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No notes found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    %s\n\n", i+1, r.ID, r.Role, truncate(r.Text, 300))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── ExportTool ─────────────────────────────────────────────────────────────

// ExportTool handles the note_export MCP tool.
type ExportTool struct {
	store *canvas.Store
}

// NewExportTool creates an ExportTool.
func NewExportTool(store *canvas.Store) *ExportTool {
	return &ExportTool{store: store}
}

// Definition returns the MCP tool definition for note_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("note_export",
		mcp.WithDescription("Export every note and edge of the canvas as JSON."),
	)
}

// Handle processes the note_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := t.store.Export(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
