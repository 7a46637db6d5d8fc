package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunes_RoundTrip(t *testing.T) {
	var tok Runes
	for _, s := range []string{"", "hello", "héllo wörld", "日本語 テキスト", "emoji 🙂 ok"} {
		assert.Equal(t, s, tok.Decode(tok.Encode(s)), "round trip %q", s)
	}
}

func TestRunes_PrefixDecode(t *testing.T) {
	var tok Runes
	text := "one two three"
	tokens := tok.Encode(text)
	for n := 0; n <= len(tokens); n++ {
		prefix := tok.Decode(tokens[:n])
		assert.True(t, strings.HasPrefix(text, prefix), "n=%d prefix %q", n, prefix)
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, 5, Count(Runes{}, "héllo"))
	assert.Equal(t, 0, Count(Runes{}, ""))
}

func mustLoad(t *testing.T, model string) *Tiktoken {
	t.Helper()
	tok, err := ForModel(model)
	require.NoError(t, err)
	return tok
}

func TestForModel_KnownModel(t *testing.T) {
	tok := mustLoad(t, "gpt-4")
	assert.Equal(t, "gpt-4", tok.Name())

	text := "The quick brown fox jumps over the lazy dog."
	tokens := tok.Encode(text)
	require.NotEmpty(t, tokens)
	assert.Less(t, len(tokens), len(text))
	assert.Equal(t, text, tok.Decode(tokens))
}

func TestForModel_UnknownModelFallsBack(t *testing.T) {
	tok := mustLoad(t, "not-a-real-model")
	assert.Equal(t, DefaultEncoding, tok.Name())
}

func TestForModel_Cached(t *testing.T) {
	a := mustLoad(t, "gpt-4")
	b := mustLoad(t, "gpt-4")
	assert.Same(t, a, b)
}

func TestTiktoken_PrefixDecode(t *testing.T) {
	tok := mustLoad(t, "gpt-3.5-turbo")
	text := "Budgets cut notes at token boundaries, not characters."
	tokens := tok.Encode(text)
	for n := 0; n <= len(tokens); n++ {
		prefix := tok.Decode(tokens[:n])
		assert.True(t, strings.HasPrefix(text, prefix), "n=%d prefix %q", n, prefix)
	}
}

// Byte-level BPE: a token prefix may end inside a multibyte rune.
func TestTiktoken_PrefixDecodeIsBytePrefix(t *testing.T) {
	tok := mustLoad(t, "gpt-4")
	text := "🙂🙂🙂 Grüße 東京"
	tokens := tok.Encode(text)
	require.Greater(t, len(tokens), 3)
	for n := 0; n <= len(tokens); n++ {
		prefix := tok.Decode(tokens[:n])
		assert.True(t, strings.HasPrefix(text, prefix), "n=%d prefix %q", n, prefix)
	}
}
