// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/generate"
	"github.com/HendryAvila/chattree/internal/metrics"
	"github.com/HendryAvila/chattree/internal/notetools"
	"github.com/HendryAvila/chattree/internal/prompts"
	"github.com/HendryAvila/chattree/internal/resources"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Options are the dependencies of New. Settings is required.
type Options struct {
	// Settings returns the configuration for one tool call.
	Settings func() config.Settings
	// Store is opened under the settings' data dir when nil.
	Store   *canvas.Store
	Logger  *zap.Logger
	Metrics *metrics.Collector
	// Deps overrides generator collaborators, for tests.
	Deps generate.Deps
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function closes the canvas store if New opened it.
// It is always non-nil and safe to call.
func New(opts Options) (*server.MCPServer, func(), error) {
	if opts.Settings == nil {
		return nil, noop, fmt.Errorf("server: settings source is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// --- Create shared dependencies ---

	cleanup := noop
	store := opts.Store
	if store == nil {
		cfg := canvas.DefaultConfig()
		if dir := opts.Settings().DataDir; dir != "" {
			cfg.DataDir = dir
		}
		var err error
		store, err = canvas.New(cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("opening canvas: %w", err)
		}
		cleanup = func() {
			if err := store.Close(); err != nil {
				log.Warn("canvas close", zap.Error(err))
			}
		}
	}

	deps := opts.Deps
	deps.Host = store
	if deps.Logger == nil {
		deps.Logger = log.Named("generate")
	}
	if deps.Metrics == nil {
		deps.Metrics = opts.Metrics
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier(log)
	}
	gen := generate.New(deps)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"chattree",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register canvas tools ---

	createTool := notetools.NewCreateTool(store)
	s.AddTool(createTool.Definition(), createTool.Handle)

	linkTool := notetools.NewLinkTool(store)
	s.AddTool(linkTool.Definition(), linkTool.Handle)

	showTool := notetools.NewShowTool(store)
	s.AddTool(showTool.Definition(), showTool.Handle)

	selectTool := notetools.NewSelectTool(store)
	s.AddTool(selectTool.Definition(), selectTool.Handle)

	searchTool := notetools.NewSearchTool(store)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	exportTool := notetools.NewExportTool(store)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	// --- Register generation commands ---
	//
	// Each command is exposed as a tool through the menu; the settings
	// source is read once per call.

	menu := notetools.NewMenu(s, store, log)
	if err := gen.Register(menu, opts.Settings); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("registering commands: %w", err)
	}

	// --- Register prompts ---

	continuePrompt := prompts.NewContinuePrompt()
	s.AddPrompt(continuePrompt.Definition(), continuePrompt.Handle)

	overviewPrompt := prompts.NewOverviewPrompt()
	s.AddPrompt(overviewPrompt.Definition(), overviewPrompt.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(store, opts.Settings, deps.Tokenizer)
	s.AddResource(rh.SettingsResource(), rh.HandleSettings)
	s.AddResource(rh.CanvasResource(), rh.HandleCanvas)
	s.AddResource(rh.SelectionContextResource(), rh.HandleSelectionContext)
	s.AddResourceTemplate(rh.NoteContextTemplate(), rh.HandleNoteContext)

	return s, cleanup, nil
}

// noop is the cleanup returned when there is nothing to release.
func noop() {}

// LogNotifier reports user notices as log lines. Over stdio the log goes
// to stderr, which MCP clients show in their server log.
func LogNotifier(log *zap.Logger) generate.Notifier {
	return generate.NotifierFunc(func(msg string) {
		log.Info(msg, zap.String("source", "notice"))
	})
}

// serverInstructions returns the system instructions that tell the AI
// how to use chattree.
func serverInstructions() string {
	return `You have access to chattree, a canvas of notes where each note continues the note it points to.

## HOW IT WORKS

- A conversation is a chain of notes. note_create adds a note; its parents are the notes it continues.
- When generating, chattree walks from the chosen note up through its ancestors (following the most
  recently connected parent), turns each note into a message and sends them to the configured model.
- Notes written by the model are assistant messages; every other note is a user message.
- A note whose text starts with "SYSTEM PROMPT" replaces the default system prompt for all notes below it.
- Image notes (data:image URIs) are sent as image content.

## TOOLS

- note_create, note_link, note_select: build the canvas.
- note_show: see a note, its children and its ancestor chain.
- note_search, note_export: find notes.
- next_note: add an empty note below a note.
- generate_note_openai: stream the model's reply into a new note below the chosen note.
- generate_note_search: same, but the model may run web searches first.

Generation commands act on note_id when given, otherwise on the selection, which must be exactly one note.
Read chattree://notes/{id}/context to preview what would be sent before generating.`
}
