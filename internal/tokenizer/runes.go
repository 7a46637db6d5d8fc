package tokenizer

// Runes is a lossless tokenizer with one token per Unicode code point.
// It overestimates every BPE encoding, which keeps a budget computed with
// it safe, and it needs no ranks file, so it is the fallback when tiktoken
// cannot load its encoding (offline hosts).
type Runes struct{}

// Encode returns the code points of text.
func (Runes) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

// Decode converts code points back to text.
func (Runes) Decode(tokens []int) string {
	rs := make([]rune, len(tokens))
	for i, t := range tokens {
		rs[i] = rune(t)
	}
	return string(rs)
}
