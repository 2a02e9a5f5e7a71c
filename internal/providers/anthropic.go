// Package providers holds concrete engine.LLMClient implementations.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements engine.LLMClient by calling the Anthropic SDK
// directly.
type AnthropicClient struct {
	client *anthropic.Client
}

func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}, nil
}

func toAnthropicMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message, error) {
	var systemParts []anthropic.MessageSystemPart
	var anthropicMsgs []anthropic.Message
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: msg.ContentAsText()})
			prevAssistantHadToolCalls = false
		case engine.RoleUser:
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.ContentAsText())},
			})
			prevAssistantHadToolCalls = false
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if text := msg.ContentAsText(); text != "" {
				content = append(content, anthropic.NewTextMessageContent(text))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(tc.Arguments)))
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewToolResultMessageContent(msg.ToolCallID, content, false)},
			})
			if i+1 < len(messages) && messages[i+1].Role == engine.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return systemParts, anthropicMsgs, nil
}

func toAnthropicTools(toolSchemas []engine.ToolSchema) ([]anthropic.ToolDefinition, error) {
	var toolDefs []anthropic.ToolDefinition
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		toolDefs = append(toolDefs, anthropic.ToolDefinition{Name: ts.Name, Description: ts.Description, InputSchema: schemaObj})
	}
	return toolDefs, nil
}

// Chat implements engine.LLMClient. When onChunk is non-nil it streams via
// the SDK's callback-based streaming API and invokes onChunk per text
// delta; the returned Assistant.Content always equals the full text
// regardless of whether streaming was used.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions, onChunk func(delta string)) (engine.LLMResponse, error) {
	systemParts, anthropicMsgs, err := toAnthropicMessages(messages)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	toolDefs, err := toAnthropicTools(toolSchemas)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	maxTokens := 4096
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := float32(0.1)
	if opts.Temperature > 0 {
		temperature = float32(opts.Temperature)
	}

	base := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    anthropicMsgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(systemParts) > 0 {
		base.MultiSystem = systemParts
	}
	if len(toolDefs) > 0 {
		base.Tools = toolDefs
	}

	if onChunk != nil {
		return c.chatStreaming(ctx, base, onChunk)
	}

	resp, err := c.client.CreateMessages(ctx, base)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, status, retryAfter)
	}
	return anthropicResponseToEngine(resp.Content, resp.StopReason, resp.Usage)
}

func (c *AnthropicClient) chatStreaming(ctx context.Context, base anthropic.MessagesRequest, onChunk func(delta string)) (engine.LLMResponse, error) {
	req := anthropic.MessagesStreamRequest{MessagesRequest: base}

	var streamErr error
	req.OnError = func(errResp anthropic.ErrorResponse) {
		streamErr = fmt.Errorf("anthropic streaming error: %s", errResp.Error.Message)
	}
	req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
		if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
			onChunk(*delta.Delta.Text)
		}
	}

	resp, err := c.client.CreateMessagesStream(ctx, req)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, status, retryAfter)
	}
	if streamErr != nil {
		return engine.LLMResponse{}, streamErr
	}
	return anthropicResponseToEngine(resp.Content, resp.StopReason, resp.Usage)
}

func anthropicResponseToEngine(blocks []anthropic.MessageContent, stopReason anthropic.MessagesStopReason, usage anthropic.MessagesUsage) (engine.LLMResponse, error) {
	var textContent string
	var toolCalls []engine.ToolCall

	for _, block := range blocks {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				textContent += *block.Text
			}
		case "tool_use":
			if block.MessageContentToolUse != nil && block.ID != "" && block.Name != "" {
				args := block.Input
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				toolCalls = append(toolCalls, engine.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
			}
		}
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case stopReason == "max_tokens":
		finishReason = "length"
	case stopReason == "content_filtered":
		finishReason = "content_filter"
	}

	assistant := engine.ChatMessage{Role: engine.RoleAssistant, Content: textContent, ToolCalls: toolCalls}
	return engine.LLMResponse{
		Assistant: assistant,
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.InputTokens + usage.OutputTokens,
		},
		FinishReason: finishReason,
	}, nil
}
