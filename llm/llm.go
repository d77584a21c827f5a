package llm

import (
	"context"

	"pest-diagnosis-service/prompts"
)

// InlineImage is a binary attachment sent alongside a prompt.
type InlineImage struct {
	MimeType string
	Data     []byte
}

// Request is one round trip to the generation backend.
type Request struct {
	Kind   prompts.Kind
	Prompt string
	// Schema constrains the answer to JSON; nil asks for plain text.
	Schema *prompts.Schema
	Image  *InlineImage
}

// NewRequest builds a Request from a built prompt and an optional image.
func NewRequest(p prompts.Prompt, image *InlineImage) Request {
	return Request{Kind: p.Kind, Prompt: p.Text, Schema: p.Schema, Image: image}
}

// Client abstracts the generation backend used by the analyzer.
// Implementations must be concurrency-safe; one Client serves all requests.
type Client interface {
	// Generate performs a single round trip and returns the raw generated text
	// (the first candidate's first text part). It does not interpret the payload.
	Generate(ctx context.Context, req Request) (string, error)
	// SourceName returns a short provider label for logs and metrics (e.g. "Gemini").
	SourceName() string
}
