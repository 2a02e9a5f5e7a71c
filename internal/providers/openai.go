package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements engine.LLMClient against any OpenAI-compatible
// chat completions endpoint (OpenAI itself, or one of the compatible
// providers factory.go wires up with a different base URL).
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client against baseURL (empty means the real
// OpenAI API).
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}, nil
}

func toOpenAIMessages(messages []engine.ChatMessage) ([]openai.ChatCompletionMessage, string) {
	openaiMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	var systemMsg string
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemMsg = msg.ContentAsText()
			prevAssistantHadToolCalls = false
		case engine.RoleUser:
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.ContentAsText(),
			})
			prevAssistantHadToolCalls = false
		case engine.RoleAssistant:
			// The SDK serializes an empty string as a JSON null, which some
			// OpenAI-compatible endpoints reject for tool-call-only turns.
			content := msg.ContentAsText()
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
			if i+1 < len(messages) && messages[i+1].Role == engine.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return openaiMsgs, systemMsg
}

func toOpenAITools(toolSchemas []engine.ToolSchema) ([]openai.Tool, error) {
	var tools []openai.Tool
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}

func buildChatRequest(model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (openai.ChatCompletionRequest, error) {
	openaiMsgs, systemMsg := toOpenAIMessages(messages)
	tools, err := toOpenAITools(toolSchemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{Model: model, Messages: openaiMsgs}
	if systemMsg != "" {
		req.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemMsg,
		}}, req.Messages...)
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	return req, nil
}

// Chat implements engine.LLMClient. When onChunk is non-nil it streams via
// CreateChatCompletionStream and invokes onChunk per text delta; the
// returned Assistant.Content always equals the full accumulated text.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions, onChunk func(delta string)) (engine.LLMResponse, error) {
	req, err := buildChatRequest(model, messages, toolSchemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	if onChunk != nil {
		return c.chatStreaming(ctx, req, onChunk)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, status, retryAfter)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, fmt.Errorf("empty response from OpenAI-compatible endpoint")
	}
	return openaiChoiceToEngine(resp.Choices[0], resp.Usage)
}

// toolCallAccumulator collects a streamed tool call's arguments, which
// OpenAI-compatible endpoints deliver as successive partial JSON chunks.
type toolCallAccumulator struct {
	toolCall *engine.ToolCall
	args     strings.Builder
	index    int
}

func (c *OpenAIClient) chatStreaming(ctx context.Context, req openai.ChatCompletionRequest, onChunk func(delta string)) (engine.LLMResponse, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, status, retryAfter)
	}
	defer stream.Close()

	accum := make(map[string]*toolCallAccumulator)
	nextIndex := 0
	var textContent strings.Builder
	var usage engine.Usage

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			status, retryAfter := extractErrorMetadata(err)
			return engine.LLMResponse{}, engine.WrapLLMError(err, status, retryAfter)
		}

		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			usage = engine.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			textContent.WriteString(delta.Content)
			onChunk(delta.Content)
		}
		for _, tcDelta := range delta.ToolCalls {
			acc := accumulatorFor(accum, tcDelta, &nextIndex)
			if tcDelta.Function.Name != "" {
				acc.toolCall.Name = tcDelta.Function.Name
			}
			if tcDelta.Function.Arguments != "" {
				acc.args.WriteString(tcDelta.Function.Arguments)
			}
		}
	}

	toolCalls := make([]engine.ToolCall, 0, len(accum))
	for _, acc := range orderedAccumulators(accum) {
		tc := *acc.toolCall
		tc.Arguments = acc.args.String()
		if tc.Arguments == "" {
			tc.Arguments = "{}"
		} else if !json.Valid([]byte(tc.Arguments)) {
			tc.Error = "stream ended with incomplete tool call arguments"
		}
		toolCalls = append(toolCalls, tc)
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	assistant := engine.ChatMessage{Role: engine.RoleAssistant, Content: textContent.String(), ToolCalls: toolCalls}
	return engine.LLMResponse{Assistant: assistant, ToolCalls: toolCalls, Usage: usage, FinishReason: finishReason}, nil
}

func accumulatorFor(accum map[string]*toolCallAccumulator, d openai.ToolCall, nextIndex *int) *toolCallAccumulator {
	key := d.ID
	if key == "" && d.Index != nil {
		key = fmt.Sprintf("index_%d", *d.Index)
	}
	if acc, ok := accum[key]; ok {
		return acc
	}
	acc := &toolCallAccumulator{
		toolCall: &engine.ToolCall{ID: d.ID},
		index:    *nextIndex,
	}
	if d.ID == "" {
		acc.toolCall.ID = key
	}
	*nextIndex++
	accum[key] = acc
	return acc
}

func orderedAccumulators(accum map[string]*toolCallAccumulator) []*toolCallAccumulator {
	out := make([]*toolCallAccumulator, 0, len(accum))
	for _, acc := range accum {
		out = append(out, acc)
	}
	for i := 0; i < len(out)-1; i++ {
		for j := i + 1; j < len(out); j++ {
			if out[i].index > out[j].index {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func openaiChoiceToEngine(choice openai.ChatCompletionChoice, usage openai.Usage) (engine.LLMResponse, error) {
	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finishReason = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	assistant := engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content, ToolCalls: toolCalls}
	return engine.LLMResponse{
		Assistant: assistant,
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// extractErrorMetadata recovers an HTTP status and Retry-After hint from an
// SDK error's message text, since the go-openai client does not expose
// structured error metadata for every transport it's used over (several of
// factory.go's providers are OpenAI-compatible proxies with their own error
// bodies).
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	errStr := err.Error()

	var httpStatus int
	switch {
	case strings.Contains(errStr, "429"):
		httpStatus = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		httpStatus = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		httpStatus = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		httpStatus = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		httpStatus = http.StatusGatewayTimeout
	case strings.Contains(errStr, "401"):
		httpStatus = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		httpStatus = http.StatusForbidden
	case strings.Contains(errStr, "402"):
		httpStatus = http.StatusPaymentRequired
	case strings.Contains(errStr, "400"):
		httpStatus = http.StatusBadRequest
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+len("retry-after"):]); len(parts) > 0 {
			retryAfter = parts[0]
		}
	} else if idx := strings.Index(lower, "retry after"); idx != -1 {
		if parts := strings.Fields(errStr[idx+len("retry after"):]); len(parts) > 0 {
			retryAfter = parts[0]
		}
	}
	return httpStatus, retryAfter
}
