package notetools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/generate"
	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/llm/llmtest"
	"github.com/HendryAvila/chattree/internal/notegraph"
	"github.com/HendryAvila/chattree/internal/tokenizer"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) *canvas.Store {
	t.Helper()
	store, err := canvas.New(canvas.Config{DataDir: t.TempDir(), MaxSearchResults: 20})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addNote(t *testing.T, s *canvas.Store, text string, parents ...string) *canvas.Note {
	t.Helper()
	n, err := s.AddNote(context.Background(), canvas.AddParams{Text: text, Parents: parents})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	return n
}

type fakeAdder struct {
	tools    map[string]mcp.Tool
	handlers map[string]server.ToolHandlerFunc
}

func newFakeAdder() *fakeAdder {
	return &fakeAdder{tools: map[string]mcp.Tool{}, handlers: map[string]server.ToolHandlerFunc{}}
}

func (f *fakeAdder) AddTool(tool mcp.Tool, h server.ToolHandlerFunc) {
	f.tools[tool.Name] = tool
	f.handlers[tool.Name] = h
}

// ─── CreateTool ──────────────────────────────────────────────────────────────

func TestCreateTool_Definition(t *testing.T) {
	def := NewCreateTool(newTestStore(t)).Definition()
	if def.Name != "note_create" {
		t.Errorf("tool name = %q, want note_create", def.Name)
	}
	for _, p := range []string{"text", "parents", "role", "width", "select"} {
		if _, ok := def.InputSchema.Properties[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "text" {
		t.Errorf("required = %v, want [text]", def.InputSchema.Required)
	}
}

func TestCreateTool_CreatesAndSelects(t *testing.T) {
	store := newTestStore(t)
	parent := addNote(t, store, "root")
	tool := NewCreateTool(store)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"text":    "follow-up",
		"parents": parent.ID(),
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if !strings.HasPrefix(resultText(result), "Note created: ") {
		t.Errorf("result = %q", resultText(result))
	}

	sel, _ := store.Selection(context.Background())
	if len(sel) != 1 || sel[0].Text() != "follow-up" {
		t.Fatalf("new note not selected")
	}
	parents, _ := sel[0].Parents(context.Background())
	if len(parents) != 1 || parents[0].ID() != parent.ID() {
		t.Errorf("new note not linked to parent")
	}
}

func TestCreateTool_Errors(t *testing.T) {
	tool := NewCreateTool(newTestStore(t))
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing text", map[string]interface{}{}, "'text' is required"},
		{"blank text", map[string]interface{}{"text": "  "}, "'text' is required"},
		{"unknown parent", map[string]interface{}{"text": "x", "parents": "ghost"}, "failed to create note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := tool.Handle(context.Background(), makeReq(tt.args))
			if !result.IsError {
				t.Fatal("expected error result")
			}
			if !strings.Contains(resultText(result), tt.want) {
				t.Errorf("result = %q, want %q", resultText(result), tt.want)
			}
		})
	}
}

// ─── LinkTool ────────────────────────────────────────────────────────────────

func TestLinkTool_LinkAndUnlink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := addNote(t, store, "a")
	b := addNote(t, store, "b")
	tool := NewLinkTool(store)

	result, _ := tool.Handle(ctx, makeReq(map[string]interface{}{"child_id": b.ID(), "parent_id": a.ID()}))
	if result.IsError {
		t.Fatalf("link: %s", resultText(result))
	}
	if parents, _ := b.Parents(ctx); len(parents) != 1 {
		t.Fatalf("edge not created")
	}

	result, _ = tool.Handle(ctx, makeReq(map[string]interface{}{"child_id": b.ID(), "parent_id": a.ID()}))
	if !result.IsError {
		t.Error("duplicate link should fail")
	}

	result, _ = tool.Handle(ctx, makeReq(map[string]interface{}{"child_id": b.ID(), "parent_id": a.ID(), "unlink": true}))
	if result.IsError {
		t.Fatalf("unlink: %s", resultText(result))
	}
	if parents, _ := b.Parents(ctx); len(parents) != 0 {
		t.Errorf("edge not removed")
	}
}

func TestLinkTool_SelfLink(t *testing.T) {
	store := newTestStore(t)
	a := addNote(t, store, "a")
	result, _ := NewLinkTool(store).Handle(context.Background(), makeReq(map[string]interface{}{"child_id": a.ID(), "parent_id": a.ID()}))
	if !result.IsError {
		t.Error("self link should fail")
	}
}

// ─── ShowTool ────────────────────────────────────────────────────────────────

func TestShowTool_AncestorsAndChildren(t *testing.T) {
	store := newTestStore(t)
	root := addNote(t, store, "root note")
	mid := addNote(t, store, "middle note", root.ID())
	addNote(t, store, "leaf note", mid.ID())

	result, _ := NewShowTool(store).Handle(context.Background(), makeReq(map[string]interface{}{"id": mid.ID()}))
	if result.IsError {
		t.Fatalf("show: %s", resultText(result))
	}
	text := resultText(result)
	for _, want := range []string{"middle note", "Children (1)", "leaf note", "Ancestors (1)", "root note"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestShowTool_NotFound(t *testing.T) {
	result, _ := NewShowTool(newTestStore(t)).Handle(context.Background(), makeReq(map[string]interface{}{"id": "ghost"}))
	if !result.IsError {
		t.Error("expected error for unknown id")
	}
}

// ─── SelectTool / SearchTool / ExportTool ────────────────────────────────────

func TestSelectTool(t *testing.T) {
	store := newTestStore(t)
	a := addNote(t, store, "a")
	b := addNote(t, store, "b")
	tool := NewSelectTool(store)

	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"ids": a.ID() + ", " + b.ID()}))
	if result.IsError {
		t.Fatalf("select: %s", resultText(result))
	}
	if sel, _ := store.Selection(context.Background()); len(sel) != 2 {
		t.Errorf("selection = %d notes, want 2", len(sel))
	}

	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if resultText(result) != "Selection cleared" {
		t.Errorf("result = %q", resultText(result))
	}
}

func TestSearchTool(t *testing.T) {
	store := newTestStore(t)
	addNote(t, store, "golang generics")
	addNote(t, store, "rust lifetimes")
	tool := NewSearchTool(store)

	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "generics"}))
	if !strings.Contains(resultText(result), "Found 1 notes") {
		t.Errorf("result = %q", resultText(result))
	}

	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "haskell"}))
	if !strings.Contains(resultText(result), "No notes found") {
		t.Errorf("result = %q", resultText(result))
	}
}

func TestExportTool(t *testing.T) {
	store := newTestStore(t)
	a := addNote(t, store, "a")
	addNote(t, store, "b", a.ID())

	result, _ := NewExportTool(store).Handle(context.Background(), makeReq(nil))
	var snap canvas.Snapshot
	if err := json.Unmarshal([]byte(resultText(result)), &snap); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(snap.Notes) != 2 || len(snap.Edges) != 1 {
		t.Errorf("snapshot = %d notes, %d edges", len(snap.Notes), len(snap.Edges))
	}
}

// ─── Menu ────────────────────────────────────────────────────────────────────

func TestMenu_RegistersCommandsAsTools(t *testing.T) {
	adder := newFakeAdder()
	menu := NewMenu(adder, newTestStore(t), nil)

	err := menu.Extend(notegraph.Command{
		ID:          "next-note",
		Name:        "Create next note",
		Description: "Create an empty note.",
		Hotkey:      "Alt+Shift+N",
		Run:         func(context.Context, []notegraph.Node) (string, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	def, ok := adder.tools["next_note"]
	if !ok {
		t.Fatalf("tool next_note not registered: %v", adder.tools)
	}
	if !strings.Contains(def.Description, "Alt+Shift+N") {
		t.Errorf("description = %q, want hotkey", def.Description)
	}
	if _, ok := def.InputSchema.Properties["note_id"]; !ok {
		t.Error("missing note_id parameter")
	}
}

func TestMenu_RejectsDuplicatesAndIncomplete(t *testing.T) {
	menu := NewMenu(newFakeAdder(), newTestStore(t), nil)
	run := func(context.Context, []notegraph.Node) (string, error) { return "", nil }

	if err := menu.Extend(notegraph.Command{ID: "x", Run: run}); err != nil {
		t.Fatal(err)
	}
	if err := menu.Extend(notegraph.Command{ID: "x", Run: run}); err == nil {
		t.Error("duplicate command accepted")
	}
	if err := menu.Extend(notegraph.Command{ID: "y"}); err == nil {
		t.Error("command without Run accepted")
	}
}

func TestMenu_SelectionResolution(t *testing.T) {
	store := newTestStore(t)
	a := addNote(t, store, "a")
	b := addNote(t, store, "b")
	_ = store.Select(context.Background(), a.ID())

	var got []string
	adder := newFakeAdder()
	_ = NewMenu(adder, store, nil).Extend(notegraph.Command{
		ID: "probe",
		Run: func(_ context.Context, sel []notegraph.Node) (string, error) {
			got = nil
			for _, n := range sel {
				got = append(got, n.ID())
			}
			return "done", nil
		},
	})
	h := adder.handlers["probe"]

	_, _ = h(context.Background(), makeReq(map[string]interface{}{}))
	if len(got) != 1 || got[0] != a.ID() {
		t.Errorf("without note_id got %v, want selection [a]", got)
	}

	_, _ = h(context.Background(), makeReq(map[string]interface{}{"note_id": b.ID()}))
	if len(got) != 1 || got[0] != b.ID() {
		t.Errorf("with note_id got %v, want [b]", got)
	}

	result, _ := h(context.Background(), makeReq(map[string]interface{}{"note_id": "ghost"}))
	if !result.IsError {
		t.Error("unknown note_id should fail")
	}
}

func TestMenu_CommandErrorBecomesToolError(t *testing.T) {
	adder := newFakeAdder()
	_ = NewMenu(adder, newTestStore(t), nil).Extend(notegraph.Command{
		ID:   "boom",
		Name: "Boom",
		Run:  func(context.Context, []notegraph.Node) (string, error) { return "", errors.New("exploded") },
	})
	result, err := adder.handlers["boom"](context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(result), "exploded") {
		t.Errorf("result = %q", resultText(result))
	}
}

// ─── End to end ──────────────────────────────────────────────────────────────

func TestMenu_GenerateIntoCanvas(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sys := addNote(t, store, "SYSTEM PROMPT be brief")
	q := addNote(t, store, "What is Go?", sys.ID())
	_ = store.Select(ctx, q.ID())

	provider := &llmtest.Provider{Fragments: []string{"A ", "language."}}
	gen := generate.New(generate.Deps{
		Host:      store,
		Providers: func(context.Context, config.Settings) (llm.Provider, error) { return provider, nil },
		Tokenizer: func(string) (tokenizer.Tokenizer, error) { return tokenizer.Runes{}, nil },
	})
	settings := config.Default()
	settings.APIKey = "sk-test"

	adder := newFakeAdder()
	if err := gen.Register(NewMenu(adder, store, nil), func() config.Settings { return settings }); err != nil {
		t.Fatal(err)
	}

	result, err := adder.handlers[ToolName(generate.CommandGenerate)](ctx, makeReq(nil))
	if err != nil || result.IsError {
		t.Fatalf("generate: %v %s", err, resultText(result))
	}

	kids, err := store.Children(ctx, q.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 1 {
		t.Fatalf("children = %d, want 1", len(kids))
	}
	reply := kids[0]
	if reply.Text() != "A language." || reply.Role() != notegraph.RoleAssistant {
		t.Errorf("reply = %q [%s]", reply.Text(), reply.Role())
	}
	if reply.Color() != generate.ColorAssistant {
		t.Errorf("color = %q", reply.Color())
	}

	msgs := provider.Streamed[0].Messages
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != "SYSTEM PROMPT be brief" {
		t.Errorf("messages = %+v", msgs)
	}
}
