package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIURL is the public OpenAI API base.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey string
	// BaseURL may be the API root or a full chat/completions endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI talks to any OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	c := openai.DefaultConfig(cfg.APIKey)
	if base := normalizeBaseURL(cfg.BaseURL); base != "" {
		c.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(c)}
}

func normalizeBaseURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimSuffix(u, "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

// Complete sends a non-streaming request.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: openai: response has no choices")
	}
	return &Response{Model: resp.Model, Message: fromOpenAIMessage(resp.Choices[0].Message)}, nil
}

// Stream sends a streaming request.
func (p *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	r := toOpenAIRequest(req)
	r.Stream = true
	s, err := p.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Next() (string, error) {
	for {
		chunk, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", wrapOpenAIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

func toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	r := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	// go-openai omits a zero temperature, which the API reads as 1.
	if r.Temperature == 0 {
		r.Temperature = math.SmallestNonzeroFloat32
	}
	for _, m := range req.Messages {
		r.Messages = append(r.Messages, toOpenAIMessage(m))
	}
	for _, t := range req.Tools {
		r.Tools = append(r.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ToolChoice != "" && len(req.Tools) > 0 {
		r.ToolChoice = req.ToolChoice
	}
	return r
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	if m.ImageURL != "" {
		out.Content = ""
		out.MultiContent = []openai.ChatMessagePart{{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: m.ImageURL},
		}}
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	out := Message{
		Role:       Role(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		typ := apiErr.Type
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Type: typ, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("llm: openai: %w", err)
}
