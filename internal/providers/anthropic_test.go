package providers

import (
	"testing"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

func TestToAnthropicMessagesSeparatesSystemParts(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "be concise"},
		{Role: engine.RoleUser, Content: "hi"},
	}
	systemParts, out, err := toAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(systemParts) != 1 || systemParts[0].Text != "be concise" {
		t.Errorf("unexpected system parts: %+v", systemParts)
	}
	if len(out) != 1 {
		t.Errorf("expected one converted user message, got %+v", out)
	}
}

func TestToAnthropicMessagesDropsOrphanedToolResult(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleUser, Content: "hi"},
		{Role: engine.RoleTool, Content: "leftover", ToolCallID: "1"},
	}
	_, out, err := toAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected the orphaned tool result to be dropped, got %+v", out)
	}
}

func TestToAnthropicMessagesConvertsToolCallAndResult(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "1", Name: "echo", Arguments: `{"text":"hi"}`}}},
		{Role: engine.RoleTool, Content: "hi", ToolCallID: "1"},
	}
	_, out, err := toAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected both the tool-calling assistant turn and the tool result to convert, got %+v", out)
	}
}
