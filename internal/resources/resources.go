// Package resources implements read-only MCP resources over the canvas.
//
// Resources use URI-based addressing (chattree://...) following MCP
// conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/chattree/internal/assembler"
	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/notegraph"
	"github.com/HendryAvila/chattree/internal/tokenizer"
)

const (
	SettingsURI         = "chattree://settings"
	CanvasURI           = "chattree://canvas"
	SelectionContextURI = "chattree://selection/context"
	NoteContextURI      = "chattree://notes/{id}/context"

	notePrefix = "chattree://notes/"
	noteSuffix = "/context"
	jsonMIME   = "application/json"
	plainMIME  = "text/plain"
)

// Handler serves the chattree resources.
type Handler struct {
	store     *canvas.Store
	settings  func() config.Settings
	tokenizer func(model string) (tokenizer.Tokenizer, error)
}

// NewHandler creates a resource Handler. tok may be nil, in which case the
// model's tiktoken encoding is used.
func NewHandler(store *canvas.Store, settings func() config.Settings, tok func(string) (tokenizer.Tokenizer, error)) *Handler {
	if tok == nil {
		tok = func(model string) (tokenizer.Tokenizer, error) { return tokenizer.ForModel(model) }
	}
	return &Handler{store: store, settings: settings, tokenizer: tok}
}

// ─── Settings ────────────────────────────────────────────────────────────────

// SettingsResource returns the MCP resource definition for the settings.
func (h *Handler) SettingsResource() mcp.Resource {
	return mcp.NewResource(
		SettingsURI,
		"chattree settings",
		mcp.WithResourceDescription("Active generation settings. API keys are reported as set or unset, never shown."),
		mcp.WithMIMEType(jsonMIME),
	)
}

type settingsView struct {
	config.Settings
	APIKeySet       bool `json:"api_key_set"`
	SearchAPIKeySet bool `json:"search_api_key_set"`
	InputLimit      int  `json:"effective_input_limit"`
}

// HandleSettings returns the current settings as JSON.
func (h *Handler) HandleSettings(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s := h.settings()
	return jsonResource(req.Params.URI, settingsView{
		Settings:        s,
		APIKeySet:       s.APIKey != "",
		SearchAPIKeySet: s.SearchAPIKey != "",
		InputLimit:      llm.EffectiveInputLimit(s.Model, s.MaxInputTokens),
	})
}

// ─── Canvas ──────────────────────────────────────────────────────────────────

// CanvasResource returns the MCP resource definition for the canvas dump.
func (h *Handler) CanvasResource() mcp.Resource {
	return mcp.NewResource(
		CanvasURI,
		"Canvas",
		mcp.WithResourceDescription("Every note and edge on the canvas"),
		mcp.WithMIMEType(jsonMIME),
	)
}

// HandleCanvas returns the canvas snapshot.
func (h *Handler) HandleCanvas(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snap, err := h.store.Export(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, snap)
}

// ─── Context preview ─────────────────────────────────────────────────────────

// SelectionContextResource previews what generating from the selection
// would send.
func (h *Handler) SelectionContextResource() mcp.Resource {
	return mcp.NewResource(
		SelectionContextURI,
		"Selection context",
		mcp.WithResourceDescription("The messages and token count a generation from the selected note would send"),
		mcp.WithMIMEType(jsonMIME),
	)
}

// NoteContextTemplate previews the context of any note by id.
func (h *Handler) NoteContextTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		NoteContextURI,
		"Note context",
		mcp.WithTemplateDescription("The messages and token count a generation from this note would send"),
		mcp.WithTemplateMIMEType(jsonMIME),
	)
}

// HandleSelectionContext assembles the context of the single selected note.
func (h *Handler) HandleSelectionContext(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sel, err := h.store.Selection(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if len(sel) != 1 {
		return errorResource(req.Params.URI, fmt.Sprintf("select exactly one note (%d selected)", len(sel))), nil
	}
	return h.preview(ctx, req.Params.URI, sel[0])
}

// HandleNoteContext assembles the context of the note named in the URI.
func (h *Handler) HandleNoteContext(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, ok := noteIDFromURI(req.Params.URI)
	if !ok {
		return errorResource(req.Params.URI, "expected "+NoteContextURI), nil
	}
	n, err := h.store.GetNote(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return h.preview(ctx, req.Params.URI, n)
}

type contextView struct {
	Note       string        `json:"note"`
	Model      string        `json:"model"`
	Tokenizer  string        `json:"tokenizer"`
	InputLimit int           `json:"input_limit"`
	TokenCount int           `json:"token_count"`
	Truncated  bool          `json:"truncated"`
	Messages   []llm.Message `json:"messages"`
}

func (h *Handler) preview(ctx context.Context, uri string, n notegraph.Node) ([]mcp.ResourceContents, error) {
	s := h.settings()
	tok, err := h.tokenizer(s.Model)
	if err != nil {
		tok = tokenizer.Runes{}
	}
	limit := llm.EffectiveInputLimit(s.Model, s.MaxInputTokens)
	res, err := assembler.Assemble(ctx, n, assembler.Options{
		Tokenizer:           tok,
		InputLimit:          limit,
		MaxDepth:            s.MaxDepth,
		DefaultSystemPrompt: s.SystemPrompt,
	})
	if err != nil {
		return errorResource(uri, err.Error()), nil
	}
	view := contextView{
		Note:       n.ID(),
		Model:      s.Model,
		Tokenizer:  tokenizerName(tok),
		InputLimit: limit,
		TokenCount: res.TokenCount,
		Truncated:  res.Truncated,
		Messages:   res.Messages,
	}
	if view.Messages == nil {
		view.Messages = []llm.Message{}
	}
	return jsonResource(uri, view)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func noteIDFromURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, notePrefix) || !strings.HasSuffix(uri, noteSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, notePrefix), noteSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func tokenizerName(tok tokenizer.Tokenizer) string {
	if named, ok := tok.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "runes"
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonMIME,
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: plainMIME,
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
