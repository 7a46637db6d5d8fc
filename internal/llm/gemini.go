package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Complete sends a non-streaming request.
func (p *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	contents, cfg, err := toGemini(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	return &Response{Model: req.Model, Message: fromGeminiResponse(resp)}, nil
}

// Stream sends a streaming request.
func (p *Gemini) Stream(ctx context.Context, req Request) (Stream, error) {
	contents, cfg, err := toGemini(req)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg))
	return &geminiStream{next: next, stop: stop}, nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *geminiStream) Next() (string, error) {
	resp, err, ok := s.next()
	if !ok {
		return "", io.EOF
	}
	if err != nil {
		return "", wrapGeminiError(err)
	}
	return resp.Text(), nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func toGemini(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	// Function responses refer to calls by name, so remember which name each
	// call ID belongs to.
	callNames := map[string]string{}
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("llm: gemini: tool call %s arguments: %w", tc.ID, err)
					}
				}
				callNames[tc.ID] = tc.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case RoleTool:
			name := m.Name
			if name == "" {
				name = callNames[m.ToolCallID]
			}
			var output any
			if err := json.Unmarshal([]byte(m.Content), &output); err != nil {
				output = m.Content
			}
			part := genai.NewPartFromFunctionResponse(name, map[string]any{"output": output})
			part.FunctionResponse.ID = m.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			if m.ImageURL != "" {
				data, mime, err := decodeDataURI(m.ImageURL)
				if err != nil {
					return nil, nil, err
				}
				contents = append(contents, genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes(data, mime)}, genai.RoleUser))
				continue
			}
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(&t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if req.ToolChoice == ToolChoiceRequired {
			cfg.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny},
			}
		}
	}
	return contents, cfg, nil
}

func toGeminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGeminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGeminiSchema(v)
		}
	}
	return out
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) Message {
	msg := Message{Role: RoleAssistant, Content: resp.Text()}
	for i, fc := range resp.FunctionCalls() {
		args, _ := json.Marshal(fc.Args)
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: string(args)})
	}
	return msg
}

// decodeDataURI splits a base64 data URI into bytes and MIME type.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("llm: not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("llm: malformed data URI")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return []byte(payload), mime, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("llm: decode data URI: %w", err)
	}
	return data, mime, nil
}

func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.Code, Type: apiErr.Status, Message: apiErr.Message}
	}
	return fmt.Errorf("llm: gemini: %w", err)
}
