// Package prompts implements MCP prompt handlers for chattree.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ContinuePrompt handles the continue MCP prompt.
// It guides the AI to add a question below a note and generate the reply.
type ContinuePrompt struct{}

// NewContinuePrompt creates a ContinuePrompt.
func NewContinuePrompt() *ContinuePrompt {
	return &ContinuePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ContinuePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("continue",
		mcp.WithPromptDescription(
			"Continue a conversation on the canvas: add your question below a note "+
				"and generate the model's reply as a new note.",
		),
		mcp.WithArgument("note_id",
			mcp.ArgumentDescription("Note to continue from. Default: the current selection"),
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("What to ask next"),
		),
		mcp.WithArgument("search",
			mcp.ArgumentDescription("'yes' to let the model search the web first. Default: no"),
		),
	)
}

// Handle processes the continue prompt request.
func (p *ContinuePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	noteID := args["note_id"]
	question := args["question"]

	target := "the selected note"
	parents := "the id of the selected note (read chattree://selection/context if unsure)"
	if noteID != "" {
		target = fmt.Sprintf("note %s", noteID)
		parents = fmt.Sprintf("'%s'", noteID)
	}

	ask := "2. Ask me what I want to ask next"
	if question != "" {
		ask = fmt.Sprintf("2. Use this question: %q", question)
	}

	command := "generate_note_openai"
	if args["search"] == "yes" {
		command = "generate_note_search"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Continue from %s", target),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to continue the conversation from %s.\n\n"+
						"Please:\n"+
						"1. Run `note_show` on it so we both see the chain of ancestors\n"+
						"%s\n"+
						"3. Run `note_create` with that text and parents=%s\n"+
						"4. Run `%s` with the new note's id\n"+
						"5. Show me the generated reply",
					target, ask, parents, command,
				)),
			},
		},
	}, nil
}
