package engine

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short word", "hello", 1},                              // 5/4 = 1
		{"sentence", "hello world this is a test", 6},            // 26/4 = 6
		{"code snippet", "func main() { fmt.Println(\"hi\") }", 8}, // 33/4 = 8
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleUser, Content: "hello"},
		{
			Role:    RoleAssistant,
			Content: "calling tool",
			ToolCalls: []ToolCall{
				{Name: "test_tool", Arguments: `{"key":"val"}`},
			},
		},
	}
	// msg1: content(5)/4=1 + overhead 4 = 5
	// msg2: (content(12) + name(9) + args(13))=34/4=8 + overhead 4 = 12
	want := 5 + 12
	if got := EstimateMessages(msgs); got != want {
		t.Errorf("EstimateMessages() = %d, want %d", got, want)
	}
}

func TestCountTokensForMessages(t *testing.T) {
	tokenizer := DefaultTokenizer{}
	model := "test-model"

	tests := []struct {
		name     string
		messages []ChatMessage
		minWant  int
	}{
		{
			name: "single message",
			messages: []ChatMessage{
				{Role: RoleUser, Content: "hello"},
			},
			minWant: 4, // overhead alone
		},
		{
			name: "with tool calls",
			messages: []ChatMessage{
				{
					Role:    RoleAssistant,
					Content: "calling tool",
					ToolCalls: []ToolCall{
						{Name: "test_tool", Arguments: `{"key":"val"}`},
					},
				},
			},
			minWant: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountTokensForMessages(tokenizer, tt.messages, model)
			if err != nil {
				t.Fatalf("CountTokensForMessages() error = %v", err)
			}
			if got < tt.minWant {
				t.Errorf("CountTokensForMessages() = %d, want >= %d", got, tt.minWant)
			}
		})
	}
}

func TestGetTokenizerForModel(t *testing.T) {
	for _, model := range []string{"gpt-4", "o1-preview", "claude-3", "llama-3"} {
		tok := GetTokenizerForModel(model)
		if tok == nil {
			t.Fatal("GetTokenizerForModel() returned nil")
		}
		count, err := tok.CountTokens("test", model)
		if err != nil {
			t.Fatalf("CountTokens error = %v", err)
		}
		if count <= 0 {
			t.Errorf("CountTokens(%q) = %d, want > 0", model, count)
		}
	}
}
