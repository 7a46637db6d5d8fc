// Package search is the web search backend used by the search tool round.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultURL is the Tavily search endpoint.
	DefaultURL = "https://api.tavily.com/search"

	// MinResults is the floor applied to a query's result count.
	MinResults = 5

	// DefaultResults is used when a query does not ask for a count.
	DefaultResults = 10

	requestTimeout = 30 * time.Second
)

// Depth values accepted by Tavily.
const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"
)

// Query is one search request as the model phrases it.
type Query struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// Normalize fills defaults: 10 results floored to 5, basic depth, and
// empty domain filters.
func (q Query) Normalize() Query {
	if q.MaxResults == 0 {
		q.MaxResults = DefaultResults
	}
	if q.MaxResults < MinResults {
		q.MaxResults = MinResults
	}
	if q.SearchDepth != DepthAdvanced {
		q.SearchDepth = DepthBasic
	}
	if q.IncludeDomains == nil {
		q.IncludeDomains = []string{}
	}
	if q.ExcludeDomains == nil {
		q.ExcludeDomains = []string{}
	}
	return q
}

// Searcher runs a web search and returns the raw JSON result.
type Searcher interface {
	Search(ctx context.Context, q Query) (json.RawMessage, error)
}

// StatusError is returned for a non-2xx search response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error: %d", e.StatusCode)
}

// Tavily is a client for the Tavily search API.
type Tavily struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewTavily creates a client. An empty endpoint uses DefaultURL.
func NewTavily(apiKey, endpoint string, client *http.Client) *Tavily {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Tavily{apiKey: apiKey, endpoint: endpoint, client: client}
}

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeImages  bool     `json:"include_images"`
	IncludeAnswers bool     `json:"include_answers"`
	IncludeDomains []string `json:"include_domains"`
	ExcludeDomains []string `json:"exclude_domains"`
}

// Search posts q to Tavily. The response body is returned undecoded so it
// can be handed to the model verbatim.
func (t *Tavily) Search(ctx context.Context, q Query) (json.RawMessage, error) {
	q = q.Normalize()
	body, err := json.Marshal(tavilyRequest{
		APIKey:         t.apiKey,
		Query:          q.Query,
		MaxResults:     q.MaxResults,
		SearchDepth:    q.SearchDepth,
		IncludeImages:  true,
		IncludeAnswers: true,
		IncludeDomains: q.IncludeDomains,
		ExcludeDomains: q.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("search: response is not JSON")
	}
	return json.RawMessage(data), nil
}
