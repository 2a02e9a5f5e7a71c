package engine

import (
	"context"
	"strings"
	"testing"
)

func TestModelContextLimitLookup(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o", 128000},
		{"claude-3-5-sonnet", 128000},
		{"gpt-3.5-turbo", 16000},
		{"some-unknown-model", 120000},
	}
	for _, tt := range tests {
		if got := ModelContextLimit(tt.model); got != tt.want {
			t.Errorf("ModelContextLimit(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestManageContextPassesThroughSmallConversations(t *testing.T) {
	cm := &ContextManager{}
	messages := []ChatMessage{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	out, err := cm.ManageContext(context.Background(), "gpt-4o", messages, "be helpful", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.WasTrimmed {
		t.Error("expected no trimming for a small conversation")
	}
	if out.Messages[0].Role != RoleSystem || !strings.Contains(out.Messages[0].Content, "be helpful") {
		t.Errorf("expected system prompt fused in as the first message, got %+v", out.Messages[0])
	}
}

func TestManageContextWarnsApproachingLimit(t *testing.T) {
	cm := &ContextManager{}
	// gpt-3.5-turbo: limit 16000, warning threshold 0.70*16000=11200 tokens,
	// cap 0.85*16000=13600 tokens. 10000 "word " repeats is ~12500 tokens:
	// past the warning line, still under the trim cap.
	big := strings.Repeat("word ", 10000)
	messages := []ChatMessage{
		{Role: RoleUser, Content: big},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "ok"},
	}
	out, err := cm.ManageContext(context.Background(), "gpt-3.5-turbo", messages, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Warning == "" {
		t.Error("expected a warning once tokens cross the warning threshold")
	}
}

func TestManageContextTrimsByIndexOneWithoutCompressor(t *testing.T) {
	cm := &ContextManager{}
	var messages []ChatMessage
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: "sys"})
	for i := 0; i < 50; i++ {
		messages = append(messages, ChatMessage{Role: RoleUser, Content: strings.Repeat("word ", 3000)})
	}

	out, err := cm.ManageContext(context.Background(), "gpt-3.5-turbo", messages, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.WasTrimmed {
		t.Fatal("expected trimming for a conversation far over budget")
	}
	if out.EstimatedTokens > out.MaxTokens {
		t.Errorf("expected trimmed conversation to fit under MaxTokens, got %d > %d", out.EstimatedTokens, out.MaxTokens)
	}
}

func TestManageContextUsesCompressorWhenAvailable(t *testing.T) {
	compressor := &Compressor{RecursionThreshold: 50, MaxDepth: 5, Summarize: identitySummarize}
	cm := &ContextManager{Compressor: compressor}

	var messages []ChatMessage
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: "sys"})
	for i := 0; i < 30; i++ {
		messages = append(messages, ChatMessage{Role: RoleUser, Content: strings.Repeat("word ", 2000)})
	}

	out, err := cm.ManageContext(context.Background(), "gpt-3.5-turbo", messages, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.WasTrimmed {
		t.Fatal("expected the oversized conversation to be reduced")
	}
	foundCompressed := false
	for _, m := range out.Messages {
		if strings.Contains(m.Content, "Compressed") {
			foundCompressed = true
		}
	}
	if !foundCompressed {
		t.Error("expected a spliced-in compression summary message when a compressor is configured")
	}
}
