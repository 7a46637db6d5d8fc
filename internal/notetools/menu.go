package notetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/notegraph"
)

// ToolAdder is the part of *server.MCPServer that Menu needs.
type ToolAdder interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Menu surfaces notegraph commands as MCP tools. Each command becomes a
// tool named after its id with dashes turned into underscores.
type Menu struct {
	adder ToolAdder
	store *canvas.Store
	log   *zap.Logger
	seen  map[string]bool
}

var _ notegraph.MenuExtender = (*Menu)(nil)

// NewMenu creates a Menu registering tools on adder. Commands act on the
// note given as note_id, or on the canvas selection.
func NewMenu(adder ToolAdder, store *canvas.Store, log *zap.Logger) *Menu {
	if log == nil {
		log = zap.NewNop()
	}
	return &Menu{adder: adder, store: store, log: log, seen: map[string]bool{}}
}

// ToolName returns the MCP tool name for a command id.
func ToolName(commandID string) string {
	return strings.ReplaceAll(commandID, "-", "_")
}

// Extend registers one tool per command.
func (m *Menu) Extend(cmds ...notegraph.Command) error {
	for _, c := range cmds {
		if c.ID == "" || c.Run == nil {
			return fmt.Errorf("notetools: command %q is incomplete", c.ID)
		}
		name := ToolName(c.ID)
		if m.seen[name] {
			return fmt.Errorf("notetools: command %q already registered", c.ID)
		}
		m.seen[name] = true

		ct := &commandTool{cmd: c, name: name, store: m.store, log: m.log}
		m.adder.AddTool(ct.Definition(), ct.Handle)
		m.log.Debug("registered command", zap.String("command", c.ID), zap.String("tool", name))
	}
	return nil
}

// ─── commandTool ────────────────────────────────────────────────────────────

type commandTool struct {
	cmd   notegraph.Command
	name  string
	store *canvas.Store
	log   *zap.Logger
}

func (t *commandTool) Definition() mcp.Tool {
	desc := t.cmd.Name + ". " + t.cmd.Description
	if t.cmd.Hotkey != "" {
		desc += " (" + t.cmd.Hotkey + ")"
	}
	return mcp.NewTool(t.name,
		mcp.WithDescription(desc),
		mcp.WithString("note_id",
			mcp.Description("Note to act on (default: the current selection)"),
		),
	)
}

func (t *commandTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var selection []notegraph.Node
	if id := req.GetString("note_id", ""); id != "" {
		n, err := t.store.GetNote(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("note not found: %v", err)), nil
		}
		selection = []notegraph.Node{n}
	} else {
		sel, err := t.store.Selection(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read selection: %v", err)), nil
		}
		selection = sel
	}

	msg, err := t.cmd.Run(ctx, selection)
	if err != nil {
		t.log.Info("command failed", zap.String("command", t.cmd.ID), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.cmd.Name, err)), nil
	}
	return mcp.NewToolResultText(msg), nil
}
