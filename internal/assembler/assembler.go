// Package assembler turns a note and its ancestors into a chat conversation
// that fits a token budget.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/notegraph"
	"github.com/HendryAvila/chattree/internal/tokenizer"
)

// SystemPromptMarker starts a note that overrides the system prompt for
// every descendant.
const SystemPromptMarker = "SYSTEM PROMPT"

const imagePrefix = "data:image"

// Options configures one assembly.
type Options struct {
	Tokenizer tokenizer.Tokenizer
	// InputLimit is the effective budget, already reduced to the model's
	// limit by llm.EffectiveInputLimit.
	InputLimit int
	// MaxDepth bounds the ancestor walk; zero is unlimited.
	MaxDepth            int
	DefaultSystemPrompt string
	Logger              *zap.Logger
}

// Result is an assembled conversation, oldest message first.
type Result struct {
	Messages   []llm.Message
	TokenCount int
	// NoteCount is the number of notes that produced a message.
	NoteCount int
	// Truncated is set when the budget cut a note short and ended the walk.
	Truncated bool
}

// IsSystemPrompt reports whether text is a system prompt note.
func IsSystemPrompt(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), SystemPromptMarker)
}

// FindSystemPrompt returns the text of the nearest ancestor of start
// (start included) that is a system prompt note, or def when there is none.
// The search ignores any depth limit.
func FindSystemPrompt(ctx context.Context, start notegraph.Node, def string) (string, error) {
	found := ""
	err := notegraph.Walk(ctx, start, 0, func(ctx context.Context, n notegraph.Node, depth int) (bool, error) {
		if text := n.Text(); IsSystemPrompt(text) {
			found = text
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("assembler: find system prompt: %w", err)
	}
	if found == "" {
		return def, nil
	}
	return found, nil
}

// Assemble builds the conversation ending at start.
func Assemble(ctx context.Context, start notegraph.Node, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.Runes{}
	}

	system, err := FindSystemPrompt(ctx, start, opts.DefaultSystemPrompt)
	if err != nil {
		return Result{}, err
	}

	b := budget{limit: opts.InputLimit}
	if system != "" {
		b.count += len(tok.Encode(system))
	}

	var res Result
	// Built nearest first, reversed at the end.
	var msgs []llm.Message

	err = notegraph.Walk(ctx, start, opts.MaxDepth, func(ctx context.Context, n notegraph.Node, depth int) (bool, error) {
		text := strings.TrimSpace(n.Text())
		if text == "" {
			return true, nil
		}
		if strings.HasPrefix(text, imagePrefix) {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, ImageURL: text})
			res.NoteCount++
			return true, nil
		}
		if IsSystemPrompt(text) {
			return true, nil
		}

		tokens := tok.Encode(text)
		more := true
		if !b.fits(len(tokens)) {
			more = false
			res.Truncated = true
			keep := b.remaining()
			tokens = tokens[:keep]
			cut := cutToPrefix(text, tok.Decode(tokens))
			log.Debug("truncating note",
				zap.String("node", n.ID()),
				zap.Int("from_bytes", len(text)),
				zap.Int("to_bytes", len(cut)),
			)
			text = cut
			tokens = tok.Encode(cut)
		}
		b.count += len(tokens)
		if text == "" {
			return more, nil
		}

		role := llm.RoleUser
		if n.Role() == notegraph.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: text})
		res.NoteCount++
		return more, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("assembler: walk: %w", err)
	}

	if len(msgs) == 0 {
		return Result{}, nil
	}

	out := make([]llm.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	res.Messages = out
	res.TokenCount = b.count
	return res, nil
}

// budget is the running token count for one assembly.
type budget struct {
	count int
	limit int
}

func (b budget) fits(n int) bool {
	return b.count+n <= b.limit
}

// remaining is how many tokens of an overflowing note may be kept. One
// token of margin is left below the limit.
func (b budget) remaining() int {
	return max(0, b.limit-b.count-1)
}

// cutToPrefix returns the longest prefix of text that decoded agrees with,
// ending on a rune boundary. BPE decoders return raw bytes, so a token
// prefix can end inside a multibyte rune; others emit a replacement
// character there instead.
func cutToPrefix(text, decoded string) string {
	n := 0
	for n < len(text) && n < len(decoded) && text[n] == decoded[n] {
		n++
	}
	for n > 0 && n < len(text) && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
