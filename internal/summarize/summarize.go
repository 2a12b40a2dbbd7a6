// Package summarize generates short human-readable summaries of a GDB
// session's command/output transcript using the Anthropic Messages API.
// Grounded on the teacher's internal/session/summarizeResponse, lifted into
// its own package since summarization is no longer tied to a single tier's
// response text but to a session's full history (internal/store records).
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

const systemPrompt = "You are a concise technical summarizer. Summarize the following GDB debugging session transcript in 2-4 sentences. Focus on: what was being debugged, what was discovered (crashes, breakpoints hit, variable values of note), and how the session ended."

// Client wraps the Anthropic SDK client with the model used for session
// summaries.
type Client struct {
	anthropic anthropic.Client
	model     string
}

// New constructs a Client. model should be an Anthropic model identifier
// (e.g. "claude-haiku-4-5"); an empty model falls back to a small default
// suitable for short summaries.
func New(model string) *Client {
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &Client{anthropic: anthropic.NewClient(), model: model}
}

// TranscriptEntry is one command/output pair from a session's history,
// supplied by internal/store when building a transcript to summarize.
type TranscriptEntry struct {
	Command string
	Output  string
}

// Summarize renders entries into a flat transcript and asks the model for
// a short summary. It returns "" with a nil error if entries is empty —
// there is nothing worth summarizing yet.
func (c *Client) Summarize(ctx context.Context, entries []TranscriptEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "(gdb) %s\n%s\n", e.Command, e.Output)
	}

	msg, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 200,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}
