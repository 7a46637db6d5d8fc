package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// OverviewPrompt handles the canvas-overview MCP prompt.
type OverviewPrompt struct{}

// NewOverviewPrompt creates an OverviewPrompt.
func NewOverviewPrompt() *OverviewPrompt {
	return &OverviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *OverviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("canvas-overview",
		mcp.WithPromptDescription(
			"Summarize the conversations on the canvas and the active generation settings.",
		),
	)
}

// Handle processes the canvas-overview prompt request.
func (p *OverviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Canvas overview",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please read the `chattree://canvas` and `chattree://settings` resources.\n\n" +
						"Then:\n" +
						"1. List each conversation thread, starting from its root note\n" +
						"2. Point out notes starting with SYSTEM PROMPT and which threads they apply to\n" +
						"3. Tell me which model is configured and whether the API keys are set",
				),
			},
		},
	}, nil
}
