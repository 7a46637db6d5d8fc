// Package generate runs the user-facing commands: create an empty follow-up
// note, and generate an assistant note from the selected note's ancestry,
// optionally after a web search round.
//
// Generator is the only place failures are caught. A failed generation
// removes the note it created, tells the user once, and returns the error.
package generate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/assembler"
	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/metrics"
	"github.com/HendryAvila/chattree/internal/notegraph"
	"github.com/HendryAvila/chattree/internal/render"
	"github.com/HendryAvila/chattree/internal/search"
	"github.com/HendryAvila/chattree/internal/tokenizer"
)

// Mode selects how a reply is produced.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeSearch   Mode = "search"
)

// Note colors by mode, in the canvas palette.
const (
	ColorAssistant = "6"
	ColorSearch    = "5"
)

// UserNoteHeight is the height of notes created by NextNote.
const UserNoteHeight = 100

var (
	ErrMissingCredential = errors.New("generate: API key is not set")
	ErrSelection         = errors.New("generate: select exactly one note")
	ErrBusy              = errors.New("generate: a generation is already running for this note")
)

// Notifier shows one-line messages to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// Deps are the collaborators of a Generator. Only Host is required.
type Deps struct {
	Host      notegraph.Host
	Providers func(ctx context.Context, s config.Settings) (llm.Provider, error)
	Searchers func(s config.Settings) search.Searcher
	Tokenizer func(model string) (tokenizer.Tokenizer, error)
	Notifier  Notifier
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Now       func() time.Time
}

// Generator executes commands against a host graph.
type Generator struct {
	host      notegraph.Host
	providers func(ctx context.Context, s config.Settings) (llm.Provider, error)
	searchers func(s config.Settings) search.Searcher
	tokenizer func(model string) (tokenizer.Tokenizer, error)
	notify    Notifier
	log       *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	mu   sync.Mutex
	busy map[string]bool
}

// New creates a Generator, filling unset dependencies with the real
// backends.
func New(d Deps) *Generator {
	g := &Generator{
		host:      d.Host,
		providers: d.Providers,
		searchers: d.Searchers,
		tokenizer: d.Tokenizer,
		notify:    d.Notifier,
		log:       d.Logger,
		metrics:   d.Metrics,
		now:       d.Now,
		busy:      map[string]bool{},
	}
	if g.providers == nil {
		g.providers = DefaultProvider
	}
	if g.searchers == nil {
		g.searchers = func(s config.Settings) search.Searcher {
			return search.NewTavily(s.SearchAPIKey, s.SearchURL, nil)
		}
	}
	if g.tokenizer == nil {
		g.tokenizer = func(model string) (tokenizer.Tokenizer, error) {
			return tokenizer.ForModel(model)
		}
	}
	if g.notify == nil {
		g.notify = NotifierFunc(func(string) {})
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// DefaultProvider builds the backend named by the settings.
func DefaultProvider(ctx context.Context, s config.Settings) (llm.Provider, error) {
	return llm.New(ctx, llm.Config{
		Backend: s.Backend,
		Model:   s.Model,
		APIKey:  s.APIKey,
		BaseURL: s.APIURL,
	})
}

// Outcome describes a finished generation.
type Outcome struct {
	Node       notegraph.Node
	Messages   []llm.Message
	TokenCount int
	Fragments  int
	Truncated  bool
}

// NextNote creates an empty user note below the single selected note.
func (g *Generator) NextNote(ctx context.Context, selection []notegraph.Node) (notegraph.Node, error) {
	if err := g.host.RequestFrame(ctx); err != nil {
		return nil, fmt.Errorf("generate: request frame: %w", err)
	}
	if len(selection) != 1 {
		return nil, ErrSelection
	}
	parent := selection[0]
	created, err := g.host.CreateNode(ctx, parent, notegraph.NewNode{
		Role:   notegraph.RoleUser,
		Width:  parent.Geometry().Width,
		Height: UserNoteHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: create note: %w", err)
	}
	if err := g.host.RequestSave(ctx); err != nil {
		return nil, fmt.Errorf("generate: save: %w", err)
	}
	g.log.Debug("created user note", zap.String("node", created.ID()), zap.String("parent", parent.ID()))
	return created, nil
}

// Generate streams a model reply to the selected note into a new child
// note.
func (g *Generator) Generate(ctx context.Context, s config.Settings, selection []notegraph.Node) (*Outcome, error) {
	return g.Run(ctx, s, ModeGenerate, selection)
}

// GenerateSearch runs the search tool round and then streams the reply.
func (g *Generator) GenerateSearch(ctx context.Context, s config.Settings, selection []notegraph.Node) (*Outcome, error) {
	return g.Run(ctx, s, ModeSearch, selection)
}

// Run executes one generation in the given mode. It returns a nil Outcome
// and nil error when there was nothing to send.
func (g *Generator) Run(ctx context.Context, s config.Settings, mode Mode, selection []notegraph.Node) (out *Outcome, err error) {
	start := g.now()
	outcome := metrics.OutcomeOK
	defer func() {
		if g.metrics == nil {
			return
		}
		switch {
		case errors.Is(err, context.Canceled):
			outcome = metrics.OutcomeCanceled
		case err != nil:
			outcome = metrics.OutcomeError
		}
		g.metrics.Generations.WithLabelValues(string(mode), outcome).Inc()
		g.metrics.Duration.WithLabelValues(string(mode)).Observe(g.now().Sub(start).Seconds())
	}()

	if s.APIKey == "" {
		g.notify.Notify("Please set your API key in the chattree settings")
		return nil, ErrMissingCredential
	}
	if mode == ModeSearch && s.SearchAPIKey == "" {
		g.notify.Notify("Please set your search API key in the chattree settings")
		return nil, ErrMissingCredential
	}
	if err := g.host.RequestFrame(ctx); err != nil {
		return nil, fmt.Errorf("generate: request frame: %w", err)
	}
	if len(selection) != 1 {
		return nil, ErrSelection
	}
	node := selection[0]

	if !g.acquire(node.ID()) {
		return nil, ErrBusy
	}
	defer g.release(node.ID())

	log := g.log.With(zap.String("mode", string(mode)), zap.String("node", node.ID()), zap.String("model", s.Model))

	// Pending edits to the selected note must be stored before it is read.
	if err := g.host.RequestSave(ctx); err != nil {
		return nil, fmt.Errorf("generate: save: %w", err)
	}

	tok, err := g.tokenizer(s.Model)
	if err != nil {
		log.Warn("tokenizer unavailable, counting runes", zap.Error(err))
		tok = tokenizer.Runes{}
	}
	res, err := assembler.Assemble(ctx, node, assembler.Options{
		Tokenizer:           tok,
		InputLimit:          llm.EffectiveInputLimit(s.Model, s.MaxInputTokens),
		MaxDepth:            s.MaxDepth,
		DefaultSystemPrompt: s.SystemPrompt,
		Logger:              log,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(res.Messages) == 0 {
		outcome = metrics.OutcomeEmpty
		log.Debug("nothing to send")
		return nil, nil
	}
	if g.metrics != nil {
		g.metrics.ContextTokens.Observe(float64(res.TokenCount))
	}

	placeholder, color := fmt.Sprintf("```Calling AI (%s)...```", s.Model), ColorAssistant
	if mode == ModeSearch {
		placeholder, color = fmt.Sprintf("```Calling AI Search with (%s)...```", s.Model), ColorSearch
	}
	created, err := g.host.CreateNode(ctx, node, notegraph.NewNode{
		Text:   placeholder,
		Role:   notegraph.RoleAssistant,
		Color:  color,
		Width:  node.Geometry().Width,
		Height: render.LoadingHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: create note: %w", err)
	}

	g.notify.Notify(fmt.Sprintf("Sending %d notes with %d tokens to GPT", len(res.Messages), res.TokenCount))
	log.Debug("sending", zap.Int("messages", len(res.Messages)), zap.Int("tokens", res.TokenCount), zap.Bool("truncated", res.Truncated))

	sink := render.NewSink(g.host, created, render.Options{Logger: log})
	sent, err := g.respond(ctx, s, mode, res.Messages, sink, log)

	// Cleanup must run even when ctx is what failed.
	cleanupCtx := context.WithoutCancel(ctx)
	if err != nil {
		if rmErr := g.host.RemoveNode(cleanupCtx, created.ID()); rmErr != nil {
			log.Warn("remove failed note", zap.Error(rmErr))
		}
		g.notify.Notify(fmt.Sprintf("Error calling GPT: %v", err))
		if saveErr := g.host.RequestSave(cleanupCtx); saveErr != nil {
			log.Warn("save after failure", zap.Error(saveErr))
		}
		log.Info("generation failed", zap.Error(err))
		return nil, fmt.Errorf("generate: %w", err)
	}

	if g.metrics != nil {
		g.metrics.Fragments.Add(float64(sink.Fragments()))
	}
	if err := g.host.RequestSave(cleanupCtx); err != nil {
		return nil, fmt.Errorf("generate: save: %w", err)
	}
	log.Info("generation finished", zap.Int("fragments", sink.Fragments()), zap.Int("tokens", res.TokenCount))

	return &Outcome{
		Node:       created,
		Messages:   sent,
		TokenCount: res.TokenCount,
		Fragments:  sink.Fragments(),
		Truncated:  res.Truncated,
	}, nil
}

// respond produces the reply into sink and returns the conversation that
// was streamed from.
func (g *Generator) respond(ctx context.Context, s config.Settings, mode Mode, msgs []llm.Message, sink *render.Sink, log *zap.Logger) ([]llm.Message, error) {
	provider, err := g.providers(ctx, s)
	if err != nil {
		return nil, err
	}

	if mode == ModeSearch {
		round := toolRound{provider: provider, searcher: g.searchers(s), log: log, metrics: g.metrics}
		msgs, err = round.run(ctx, s.Model, SearchSystemPrompt(g.now()), msgs)
		if err != nil {
			return nil, err
		}
	}

	stream, err := provider.Stream(ctx, llm.Request{
		Model:       s.Model,
		Messages:    msgs,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxResponseTokens,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := sink.Consume(ctx, stream); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (g *Generator) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[id] {
		return false
	}
	g.busy[id] = true
	return true
}

func (g *Generator) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, id)
}
