package llm

import "strings"

// FallbackModel is used to size the budget for models not in Models.
const FallbackModel = "gpt-3.5-turbo-0125"

// Models maps model names to their input token limits.
var Models = map[string]int{
	"gpt-3.5-turbo":       4096,
	"gpt-3.5-turbo-0125":  16385,
	"gpt-3.5-turbo-16k":   16385,
	"gpt-3.5-turbo-1106":  16385,
	"gpt-4o":              128000,
	"gpt-4":               8192,
	"gpt-4-turbo-preview": 128000,
	"gpt-4-0125-preview":  128000,
	"gpt-4-1106-preview":  128000,
	"gpt-4-0613":          8192,
	"gpt-4-32k":           32768,
	"gpt-4-32k-0613":      32768,
	"gemini-1.5-flash":    1048576,
	"gemini-1.5-pro":      2097152,
	"gemini-2.0-flash":    1048576,
}

// ModelLimit returns the input token limit for model.
func ModelLimit(model string) int {
	if limit, ok := Models[model]; ok {
		return limit
	}
	return Models[FallbackModel]
}

// EffectiveInputLimit is min(userLimit, model limit) when userLimit is
// positive, otherwise the model limit.
func EffectiveInputLimit(model string, userLimit int) int {
	limit := ModelLimit(model)
	if userLimit > 0 && userLimit < limit {
		return userLimit
	}
	return limit
}

// IsGemini reports whether model is served by the Gemini backend.
func IsGemini(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}
