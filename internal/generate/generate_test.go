package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/llm/llmtest"
	"github.com/HendryAvila/chattree/internal/metrics"
	"github.com/HendryAvila/chattree/internal/notegraph"
	"github.com/HendryAvila/chattree/internal/notegraph/graphtest"
	"github.com/HendryAvila/chattree/internal/render"
	"github.com/HendryAvila/chattree/internal/search"
	"github.com/HendryAvila/chattree/internal/tokenizer"
)

func TestMain(m *testing.M) {
	// genai's dependencies start the opencensus view worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []search.Query
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, q search.Query) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"query":"` + q.Query + `","results":[]}`), nil
}

type fixture struct {
	graph    *graphtest.Graph
	provider *llmtest.Provider
	searcher *fakeSearcher
	notices  []string
	metrics  *metrics.Collector
	gen      *Generator
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		graph:    graphtest.New(),
		provider: &llmtest.Provider{},
		searcher: &fakeSearcher{},
		metrics:  metrics.New(),
	}
	f.gen = New(Deps{
		Host: f.graph,
		Providers: func(ctx context.Context, s config.Settings) (llm.Provider, error) {
			return f.provider, nil
		},
		Searchers: func(config.Settings) search.Searcher { return f.searcher },
		Tokenizer: func(string) (tokenizer.Tokenizer, error) { return tokenizer.Runes{}, nil },
		Notifier:  NotifierFunc(func(msg string) { f.notices = append(f.notices, msg) }),
		Metrics:   f.metrics,
		Now:       func() time.Time { return fixedNow },
	})
	return f
}

func settings() config.Settings {
	s := config.Default()
	s.APIKey = "sk-test"
	s.SearchAPIKey = "tvly-test"
	s.SystemPrompt = "sys"
	return s
}

func (f *fixture) selection(ids ...string) []notegraph.Node {
	f.graph.Select(ids...)
	sel, _ := f.graph.Selection(context.Background())
	return sel
}

// ─── Guards ─────────────────────────────────────────────────────────────────

func TestRun_MissingAPIKey(t *testing.T) {
	f := newFixture(t)
	f.graph.Chain("hello")
	s := settings()
	s.APIKey = ""

	out, err := f.gen.Generate(context.Background(), s, f.selection("n0"))
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Nil(t, out)
	assert.Equal(t, []string{"Please set your API key in the chattree settings"}, f.notices)
	assert.Zero(t, f.provider.Calls())
	assert.Empty(t, f.graph.Created)
}

func TestRun_MissingSearchKey(t *testing.T) {
	f := newFixture(t)
	f.graph.Chain("hello")
	s := settings()
	s.SearchAPIKey = ""

	_, err := f.gen.GenerateSearch(context.Background(), s, f.selection("n0"))
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Zero(t, f.provider.Calls())
}

func TestRun_SelectionGuard(t *testing.T) {
	tests := map[string][]string{
		"empty":    nil,
		"multiple": {"n0", "n1"},
	}
	for name, ids := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.graph.Chain("a", "b")

			out, err := f.gen.Generate(context.Background(), settings(), f.selection(ids...))
			assert.ErrorIs(t, err, ErrSelection)
			assert.Nil(t, out)
			assert.Empty(t, f.graph.Created)
			assert.Zero(t, f.provider.Calls())
			assert.Empty(t, f.notices)
		})
	}
}

func TestRun_EmptyConversation(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("sp", "SYSTEM PROMPT only")

	out, err := f.gen.Generate(context.Background(), settings(), f.selection("sp"))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, f.graph.Created)
	assert.Zero(t, f.provider.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("generate", metrics.OutcomeEmpty)))
}

// ─── Generate ───────────────────────────────────────────────────────────────

func TestGenerate_StreamsIntoNewNote(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"Hi", " there"}

	out, err := f.gen.Generate(context.Background(), settings(), f.selection("q"))
	require.NoError(t, err)
	require.NotNil(t, out)

	created := f.graph.Get(out.Node.ID())
	require.NotNil(t, created)
	assert.Equal(t, "Hi there", created.Text())
	assert.Equal(t, render.MinHeight, created.Geometry().Height)
	assert.Equal(t, notegraph.RoleAssistant, created.Role())
	assert.Equal(t, ColorAssistant, created.Color())
	assert.Equal(t, 2, created.Mutations)
	assert.Equal(t, 2, out.Fragments)

	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "Hello"},
	}
	require.Len(t, f.provider.Streamed, 1)
	if diff := cmp.Diff(want, f.provider.Streamed[0].Messages); diff != "" {
		t.Errorf("streamed messages (-want +got):\n%s", diff)
	}
	assert.Equal(t, float32(1), f.provider.Streamed[0].Temperature)
	assert.Equal(t, 8, out.TokenCount)
	assert.Equal(t, []string{"Sending 2 notes with 8 tokens to GPT"}, f.notices)
	assert.Equal(t, 2, f.graph.Saves, "save before and after")
	assert.Equal(t, 1, f.provider.Closed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("generate", metrics.OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Fragments))
}

func TestGenerate_PlaceholderBeforeFirstFragment(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"x"}

	var seen string
	f.provider.OnFragment = func(i int) {
		seen = f.graph.Get(f.graph.Created[0]).Text()
	}
	s := settings()
	s.Model = "gpt-4"
	_, err := f.gen.Generate(context.Background(), s, f.selection("q"))
	require.NoError(t, err)
	assert.Equal(t, "```Calling AI (gpt-4)...```", seen)
}

func TestGenerate_UsesSettingsPerCall(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"ok"}

	s := settings()
	s.Model = "gpt-4o"
	s.Temperature = 0.3
	s.MaxResponseTokens = 64
	_, err := f.gen.Generate(context.Background(), s, f.selection("q"))
	require.NoError(t, err)

	req := f.provider.Streamed[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, float32(0.3), req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
	assert.Empty(t, req.Tools)
}

func TestGenerate_StreamFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"partial"}
	f.provider.StreamErr = &llm.ProviderError{StatusCode: 500, Message: "upstream"}

	out, err := f.gen.Generate(context.Background(), settings(), f.selection("q"))
	require.Error(t, err)
	assert.Nil(t, out)

	var perr *llm.ProviderError
	assert.True(t, errors.As(err, &perr))
	require.Len(t, f.graph.Created, 1)
	assert.Equal(t, f.graph.Created, f.graph.Removed)
	assert.Nil(t, f.graph.Get(f.graph.Created[0]))
	require.Len(t, f.notices, 2)
	assert.True(t, strings.HasPrefix(f.notices[1], "Error calling GPT: "), f.notices[1])
	assert.Equal(t, 2, f.graph.Saves)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("generate", metrics.OutcomeError)))
}

func TestGenerate_OpenFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.OpenErr = errors.New("dial tcp: refused")

	_, err := f.gen.Generate(context.Background(), settings(), f.selection("q"))
	require.Error(t, err)
	assert.Equal(t, f.graph.Created, f.graph.Removed)
}

func TestGenerate_CanceledMidStream(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"a", "b", "c"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provider.OnFragment = func(i int) {
		if i == 1 {
			cancel()
		}
	}

	_, err := f.gen.Generate(ctx, settings(), f.selection("q"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, f.graph.Created, f.graph.Removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("generate", metrics.OutcomeCanceled)))
}

func TestGenerate_NoteDeletedMidStream(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	f.provider.Fragments = []string{"a", "b"}
	f.provider.OnFragment = func(i int) {
		if i == 1 {
			_ = f.graph.RemoveNode(context.Background(), f.graph.Created[0])
		}
	}

	_, err := f.gen.Generate(context.Background(), settings(), f.selection("q"))
	assert.ErrorIs(t, err, render.ErrArtifactGone)
}

func TestGenerate_TruncationIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.graph.Chain("older note that will not fit", strings.Repeat("x", 50))
	f.provider.Fragments = []string{"ok"}

	s := settings()
	s.MaxInputTokens = 20
	out, err := f.gen.Generate(context.Background(), s, f.selection("n1"))
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.LessOrEqual(t, out.TokenCount, 20)
	assert.Len(t, out.Messages, 2)
}

func TestGenerator_BusyGuard(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.gen.acquire("q"))
	assert.False(t, f.gen.acquire("q"))
	assert.True(t, f.gen.acquire("other"))
	f.gen.release("q")
	assert.True(t, f.gen.acquire("q"))
}

func TestGenerate_BusyNoteRejected(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")
	require.True(t, f.gen.acquire("q"))

	_, err := f.gen.Generate(context.Background(), settings(), f.selection("q"))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, f.graph.Created)
}

// ─── Search ─────────────────────────────────────────────────────────────────

func toolCalls(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}
}

func TestGenerateSearch_ToolRound(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "What's new in Go?")
	f.provider.Completions = []*llm.Response{toolCalls(
		llm.ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"go release","max_results":3}`},
		llm.ToolCall{ID: "c2", Name: "search", Arguments: `{"query":"go blog","search_depth":"advanced","include_domains":["go.dev"]}`},
	)}
	f.provider.Fragments = []string{"Go 1.26 ", "shipped."}

	out, err := f.gen.GenerateSearch(context.Background(), settings(), f.selection("q"))
	require.NoError(t, err)

	created := f.graph.Get(out.Node.ID())
	assert.Equal(t, "Go 1.26 shipped.", created.Text())
	assert.Equal(t, ColorSearch, created.Color())

	require.Len(t, f.provider.Completed, 1)
	round1 := f.provider.Completed[0]
	assert.Equal(t, float32(0), round1.Temperature)
	assert.Equal(t, llm.ToolChoiceRequired, round1.ToolChoice)
	require.Len(t, round1.Tools, 1)
	assert.Equal(t, SearchToolName, round1.Tools[0].Name)
	assert.Equal(t, SearchSystemPrompt(fixedNow), round1.Messages[0].Content)
	assert.Equal(t, "sys", round1.Messages[1].Content)

	require.Len(t, f.searcher.queries, 2)
	assert.Equal(t, search.Query{Query: "go release", MaxResults: 5, SearchDepth: "basic", IncludeDomains: []string{}, ExcludeDomains: []string{}}, f.searcher.queries[0])
	assert.Equal(t, search.Query{Query: "go blog", MaxResults: 10, SearchDepth: "advanced", IncludeDomains: []string{"go.dev"}, ExcludeDomains: []string{}}, f.searcher.queries[1])

	require.Len(t, f.provider.Streamed, 1)
	msgs := f.provider.Streamed[0].Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleAssistant, msgs[3].Role)
	assert.Len(t, msgs[3].ToolCalls, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, ToolCallID: "c1", Name: "search", Content: `{"query":"go release","results":[]}`}, msgs[4])
	assert.Equal(t, "c2", msgs[5].ToolCallID)
	assert.Equal(t, msgs, out.Messages)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchCalls.WithLabelValues(metrics.OutcomeOK)))
}

func TestGenerateSearch_NoToolCalls(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "hi")
	f.provider.Completions = []*llm.Response{{Message: llm.Message{Role: llm.RoleAssistant, Content: "no tools"}}}
	f.provider.Fragments = []string{"answer"}

	_, err := f.gen.GenerateSearch(context.Background(), settings(), f.selection("q"))
	require.NoError(t, err)
	assert.Empty(t, f.searcher.queries)
	assert.Len(t, f.provider.Streamed[0].Messages, 3)
}

func TestGenerateSearch_UnknownFunction(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "hi")
	f.provider.Completions = []*llm.Response{toolCalls(llm.ToolCall{ID: "c1", Name: "fetch", Arguments: `{}`})}

	_, err := f.gen.GenerateSearch(context.Background(), settings(), f.selection("q"))
	assert.ErrorIs(t, err, ErrMalformedToolCall)
	assert.Empty(t, f.searcher.queries)
	assert.Empty(t, f.provider.Streamed)
	assert.Equal(t, f.graph.Created, f.graph.Removed)
}

func TestGenerateSearch_SearchFailure(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "hi")
	f.provider.Completions = []*llm.Response{toolCalls(llm.ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"x"}`})}
	f.searcher.err = &search.StatusError{StatusCode: 401}

	_, err := f.gen.GenerateSearch(context.Background(), settings(), f.selection("q"))
	var se *search.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Contains(t, f.notices[len(f.notices)-1], "Error: 401")
	assert.Equal(t, f.graph.Created, f.graph.Removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchCalls.WithLabelValues(metrics.OutcomeError)))
}

func TestParseSearchCall(t *testing.T) {
	tests := []struct {
		name    string
		call    llm.ToolCall
		want    search.Query
		wantErr bool
	}{
		{
			name: "defaults",
			call: llm.ToolCall{Name: "search", Arguments: `{"query":"q"}`},
			want: search.Query{Query: "q", MaxResults: 10, SearchDepth: "basic", IncludeDomains: []string{}, ExcludeDomains: []string{}},
		},
		{
			name: "explicit zero floors",
			call: llm.ToolCall{Name: "search", Arguments: `{"query":"q","max_results":0}`},
			want: search.Query{Query: "q", MaxResults: 5, SearchDepth: "basic", IncludeDomains: []string{}, ExcludeDomains: []string{}},
		},
		{
			name: "fractional count",
			call: llm.ToolCall{Name: "search", Arguments: `{"query":"q","max_results":7.9,"exclude_domains":["x.com"]}`},
			want: search.Query{Query: "q", MaxResults: 7, SearchDepth: "basic", IncludeDomains: []string{}, ExcludeDomains: []string{"x.com"}},
		},
		{name: "bad json", call: llm.ToolCall{Name: "search", Arguments: `{"query":`}, wantErr: true},
		{name: "wrong name", call: llm.ToolCall{Name: "browse", Arguments: `{"query":"q"}`}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSearchCall(tt.call)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedToolCall)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ─── NextNote ───────────────────────────────────────────────────────────────

func TestNextNote(t *testing.T) {
	f := newFixture(t)
	f.graph.Add("q", "Hello")

	n, err := f.gen.NextNote(context.Background(), f.selection("q"))
	require.NoError(t, err)
	created := f.graph.Get(n.ID())
	assert.Equal(t, "", created.Text())
	assert.Equal(t, notegraph.RoleUser, created.Role())
	assert.Equal(t, UserNoteHeight, created.Geometry().Height)
	assert.Equal(t, 1, f.graph.Saves)
	assert.Equal(t, 1, f.graph.Frames)

	parents, _ := created.Parents(context.Background())
	require.Len(t, parents, 1)
	assert.Equal(t, "q", parents[0].ID())
}

func TestNextNote_RequiresSingleSelection(t *testing.T) {
	f := newFixture(t)
	f.graph.Chain("a", "b")

	_, err := f.gen.NextNote(context.Background(), f.selection("n0", "n1"))
	assert.ErrorIs(t, err, ErrSelection)
	assert.Empty(t, f.graph.Created)
}
