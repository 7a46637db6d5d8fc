package generate

import (
	"context"
	"fmt"

	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/notegraph"
)

// Command ids, as offered to a host menu.
const (
	CommandNextNote = "next-note"
	CommandGenerate = "generate-note-openai"
	CommandSearch   = "generate-note-search"
)

// Commands returns the menu commands backed by g. settings is called once
// per invocation, so a command always runs against one snapshot.
func (g *Generator) Commands(settings func() config.Settings) []notegraph.Command {
	return []notegraph.Command{
		{
			ID:          CommandNextNote,
			Name:        "Create next note",
			Description: "Create an empty note below the selected note.",
			Hotkey:      "Alt+Shift+N",
			Run: func(ctx context.Context, selection []notegraph.Node) (string, error) {
				n, err := g.NextNote(ctx, selection)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Created note %s", n.ID()), nil
			},
		},
		{
			ID:          CommandGenerate,
			Name:        "Generate AI note",
			Description: "Send the selected note and its ancestors to the model and stream the reply into a new note.",
			Hotkey:      "Alt+Shift+G",
			Run: func(ctx context.Context, selection []notegraph.Node) (string, error) {
				out, err := g.Generate(ctx, settings(), selection)
				return describe(out), err
			},
		},
		{
			ID:          CommandSearch,
			Name:        "Generate AI note with web search",
			Description: "Let the model search the web for the selected note, then stream the reply into a new note.",
			Hotkey:      "Alt+Shift+F",
			Run: func(ctx context.Context, selection []notegraph.Node) (string, error) {
				out, err := g.GenerateSearch(ctx, settings(), selection)
				return describe(out), err
			},
		},
	}
}

// Register offers g's commands to a host menu.
func (g *Generator) Register(m notegraph.MenuExtender, settings func() config.Settings) error {
	return m.Extend(g.Commands(settings)...)
}

func describe(out *Outcome) string {
	if out == nil {
		return "Nothing to send: the selected note and its ancestors are empty."
	}
	msg := fmt.Sprintf("Generated note %s from %d messages (%d tokens)", out.Node.ID(), len(out.Messages), out.TokenCount)
	if out.Truncated {
		msg += ", context truncated"
	}
	return msg + "\n\n" + out.Node.Text()
}
