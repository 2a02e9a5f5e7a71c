package engine

import "context"

// Usage mirrors a provider's token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ToolSchema is the tool descriptor forwarded to the LLM: {name,
// description, parameter_schema}. The core never interprets JSONSchema
// beyond passing it through; Retryable lets the retry layer (retry.go)
// decide whether a tool call is safe to re-attempt on a transient error.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
	Retryable   bool
}

// ChatOptions carries the per-call knobs a provider client needs beyond the
// message list itself.
type ChatOptions struct {
	Temperature     float64
	MaxOutputTokens int
	Stream          bool
}

// LLMResponse is what a chat call returns: the assistant message it
// produced (content and/or tool_calls) plus accounting.
type LLMResponse struct {
	Assistant    ChatMessage
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string
}

// StreamEvent is one server-sent-event frame from a streaming completion.
type StreamEvent struct {
	Type       string // "delta" | "tool_call" | "done"
	Text       string
	ToolCall   *ToolCall
	ToolCallID string
	Content    string
	Usage      *Usage
}

// LLMClient is the provider-agnostic chat/completion contract (spec §4.2).
// complete and stream_complete are expressed as Chat with Stream=false/true
// plus the on-chunk callback; complete_with_tools is Chat with tools passed.
type LLMClient interface {
	// Chat performs one provider call. When opts.Stream is true, onChunk is
	// invoked for every text delta and the returned Assistant.Content equals
	// the concatenation of those deltas.
	Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema, opts ChatOptions, onChunk func(delta string)) (LLMResponse, error)
}

// ToolStreamer is implemented by clients that can stream raw StreamEvents
// rather than collapse them into deltas; the voice pipeline uses this to
// forward partial text to the TTS segmenter without waiting for Chat to
// return.
type ToolStreamer interface {
	Stream(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema, opts ChatOptions) (<-chan StreamEvent, error)
}
