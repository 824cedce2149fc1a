package llm

import "context"

// Message is a single turn in a model conversation.
type Message struct {
	Role    string
	Content string
}

// FileData references a document or asset stored outside the request,
// addressed by URI (typically a gs:// object).
type FileData struct {
	URI      string
	MIMEType string
}

// CompletionRequest describes one generative-model call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	// File, when set, is attached to the request alongside the messages.
	File        *FileData
	Temperature float64
	MaxTokens   int
	// ForceJSON asks the provider for a JSON-typed response.
	ForceJSON bool
	// Schema, when non-nil, is a raw JSON Schema constraining the response
	// shape. Implies ForceJSON.
	Schema []byte
}

// CompletionResponse is the provider's answer to a CompletionRequest.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	DurationMS   int64
}

// Provider abstracts a generative-model service. Implementations must be
// safe for concurrent use.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
