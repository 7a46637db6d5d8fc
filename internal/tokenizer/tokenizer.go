// Package tokenizer converts note text to model tokens and back.
//
// The assembler charges every note against a token budget and, when a note
// overflows, decodes a token prefix to find where to cut the text. Both
// directions therefore have to come from the same encoding.
package tokenizer

import (
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// BPE ranks are embedded in the binary, so tokenizing never touches the
// network.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncoding is used for models tiktoken does not know about.
const DefaultEncoding = "cl100k_base"

// Tokenizer encodes text to token IDs and decodes token IDs to text.
// Decode(Encode(s)[:n]) must yield a prefix of s for the BPE encodings.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Tiktoken wraps a tiktoken BPE encoding.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Tiktoken{}
)

// ForModel returns the encoding tiktoken associates with model, falling
// back to cl100k_base. Encodings are cached per process since loading the
// BPE ranks is expensive.
func ForModel(model string) (*Tiktoken, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if t, ok := cache[model]; ok {
		return t, nil
	}

	name := model
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		name = DefaultEncoding
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
		}
	}

	t := &Tiktoken{name: name, enc: enc}
	cache[model] = t
	return t, nil
}

// Name returns the model or encoding name this tokenizer was resolved from.
func (t *Tiktoken) Name() string { return t.name }

// Encode returns the token IDs for text. Special tokens are encoded as
// ordinary text.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode returns the text for tokens.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func Count(tok Tokenizer, text string) int {
	return len(tok.Encode(text))
}
