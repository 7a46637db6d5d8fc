package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/llm"
	"github.com/HendryAvila/chattree/internal/metrics"
	"github.com/HendryAvila/chattree/internal/search"
)

// SearchToolName is the only tool the search round offers.
const SearchToolName = "search"

// ErrMalformedToolCall is returned when the model calls an unknown tool or
// sends arguments that are not a JSON object.
var ErrMalformedToolCall = errors.New("generate: malformed tool call")

const searchPrompt = `As a professional search expert, you possess the ability to search for any information on the web.
For each user query, utilize the search results to their fullest potential to provide additional information and assistance in your response.
Aim to directly address the user's question, augmenting your response with insights gleaned from the search results.
Whenever quoting or referencing information from a specific URL, always explicitly cite the source URL using the [number](url) format make sure leave and extra space before and after the citation. Multiple citations can be included as needed, e.g., [number](url), [number](url).
The number must always match the order of the search results And USE ALL SEARCH RESULTS.
The retrieve tool can only be used with URLs provided by the user. URLs from search results cannot be used.
If it is a domain instead of a URL, specify it in the include_domains of the search tool.
Please match the language of the response to the user's language. Current date and time: %s`

// SearchSystemPrompt is the system message that opens the tool round.
func SearchSystemPrompt(now time.Time) string {
	return fmt.Sprintf(searchPrompt, now.Format(time.RFC1123))
}

// SearchTool describes the web search function to the model.
func SearchTool() llm.Tool {
	domains := func(desc string) *llm.Schema {
		return &llm.Schema{Type: "array", Items: &llm.Schema{Type: "string"}, Description: desc}
	}
	return llm.Tool{
		Name:        SearchToolName,
		Description: "Search the web for information",
		Parameters: llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"query":       {Type: "string", Description: "The query to search for"},
				"max_results": {Type: "number", Description: "The maximum number of results to return"},
				"search_depth": {
					Type:        "string",
					Enum:        []string{search.DepthBasic, search.DepthAdvanced},
					Description: "The depth of the search",
				},
				"include_domains": domains("A list of domains to specifically include in the search results. Default is None, which includes all domains."),
				"exclude_domains": domains("A list of domains to specifically exclude from the search results. Default is None, which doesn't exclude any domains."),
			},
			Required: []string{"query"},
		},
	}
}

// searchArgs mirrors the tool schema. max_results is a JSON number and may
// arrive with a fraction.
type searchArgs struct {
	Query          string   `json:"query"`
	MaxResults     *float64 `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains"`
	ExcludeDomains []string `json:"exclude_domains"`
}

// ParseSearchCall validates a tool call and returns the query it asks for,
// with defaults applied.
func ParseSearchCall(tc llm.ToolCall) (search.Query, error) {
	if tc.Name != SearchToolName {
		return search.Query{}, fmt.Errorf("%w: unknown function %q", ErrMalformedToolCall, tc.Name)
	}
	var args searchArgs
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return search.Query{}, fmt.Errorf("%w: arguments of %s: %v", ErrMalformedToolCall, tc.ID, err)
	}
	q := search.Query{
		Query:          args.Query,
		SearchDepth:    args.SearchDepth,
		IncludeDomains: args.IncludeDomains,
		ExcludeDomains: args.ExcludeDomains,
	}
	if args.MaxResults != nil {
		q.MaxResults = int(*args.MaxResults)
		// An explicit zero still means "as few as allowed".
		if q.MaxResults == 0 {
			q.MaxResults = search.MinResults
		}
	}
	return q.Normalize(), nil
}

// toolRound runs the forced search round and returns the conversation to
// stream the final answer from.
type toolRound struct {
	provider llm.Provider
	searcher search.Searcher
	log      *zap.Logger
	metrics  *metrics.Collector
}

func (r toolRound) run(ctx context.Context, model string, systemPrompt string, msgs []llm.Message) ([]llm.Message, error) {
	conv := make([]llm.Message, 0, len(msgs)+3)
	conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	conv = append(conv, msgs...)

	resp, err := r.provider.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    conv,
		Temperature: 0,
		Tools:       []llm.Tool{SearchTool()},
		ToolChoice:  llm.ToolChoiceRequired,
	})
	if err != nil {
		return nil, fmt.Errorf("tool round: %w", err)
	}

	calls := resp.Message.ToolCalls
	if len(calls) == 0 {
		r.log.Debug("model made no tool calls")
		return conv, nil
	}

	conv = append(conv, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Message.Content,
		ToolCalls: calls,
	})
	for _, tc := range calls {
		q, err := ParseSearchCall(tc)
		if err != nil {
			return nil, err
		}
		r.log.Debug("searching",
			zap.String("call", tc.ID),
			zap.String("query", q.Query),
			zap.Int("max_results", q.MaxResults),
			zap.String("depth", q.SearchDepth),
		)
		result, err := r.searcher.Search(ctx, q)
		if err != nil {
			r.count(metrics.OutcomeError)
			return nil, fmt.Errorf("search %q: %w", q.Query, err)
		}
		r.count(metrics.OutcomeOK)
		conv = append(conv, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(result),
			ToolCallID: tc.ID,
			Name:       tc.Name,
		})
	}
	return conv, nil
}

func (r toolRound) count(outcome string) {
	if r.metrics != nil {
		r.metrics.SearchCalls.WithLabelValues(outcome).Inc()
	}
}
