package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

// mockFailoverClient fails for every model in failFor, succeeds otherwise.
type mockFailoverClient struct {
	failFor map[string]error
	calls   []string
}

func (m *mockFailoverClient) Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema, opts ChatOptions, onChunk func(string)) (LLMResponse, error) {
	m.calls = append(m.calls, model)
	if err, ok := m.failFor[model]; ok {
		return LLMResponse{}, err
	}
	return LLMResponse{Assistant: ChatMessage{Role: RoleAssistant, Content: "ok from " + model}}, nil
}

func noRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0}
}

func TestCompleteWithFailoverAdvancesOnRetryableError(t *testing.T) {
	client := &mockFailoverClient{failFor: map[string]error{
		"gpt-4o": errors.New("503 service unavailable"),
	}}
	router := &FailoverRouter{
		Client: client,
		Chains: ModelChains{"primary": {"gpt-4o", "gpt-4o-mini"}},
		Retry:  noRetryPolicy(),
		Hooks:  Hooks{},
	}
	st := newState("gpt-4o", nil, ToolRegistry{})

	resp, err := router.CompleteWithFailover(context.Background(), st, "primary", "gpt-4o", nil, nil, ChatOptions{}, nil)
	if err != nil {
		t.Fatalf("expected success after failover, got error: %v", err)
	}
	if resp.Assistant.Content != "ok from gpt-4o-mini" {
		t.Errorf("expected response from fallback model, got %q", resp.Assistant.Content)
	}
	if len(client.calls) != 2 || client.calls[0] != "gpt-4o" || client.calls[1] != "gpt-4o-mini" {
		t.Errorf("expected calls [gpt-4o gpt-4o-mini], got %v", client.calls)
	}
}

func TestCompleteWithFailoverSurfacesNonAdvanceableError(t *testing.T) {
	client := &mockFailoverClient{failFor: map[string]error{
		"gpt-4o": errors.New("401 unauthorized: invalid api key"),
	}}
	router := &FailoverRouter{
		Client: client,
		Chains: ModelChains{"primary": {"gpt-4o", "gpt-4o-mini"}},
		Retry:  noRetryPolicy(),
	}
	st := newState("gpt-4o", nil, ToolRegistry{})

	_, err := router.CompleteWithFailover(context.Background(), st, "primary", "gpt-4o", nil, nil, ChatOptions{}, nil)
	if err == nil {
		t.Fatal("expected an auth error to surface immediately")
	}
	if len(client.calls) != 1 {
		t.Errorf("expected no failover advance on an auth error, got calls %v", client.calls)
	}
}

func TestCompleteWithFailoverExhaustsChain(t *testing.T) {
	client := &mockFailoverClient{failFor: map[string]error{
		"gpt-4o":      errors.New("500 internal server error"),
		"gpt-4o-mini": errors.New("500 internal server error"),
	}}
	router := &FailoverRouter{
		Client: client,
		Chains: ModelChains{"primary": {"gpt-4o", "gpt-4o-mini"}},
		Retry:  noRetryPolicy(),
	}
	st := newState("gpt-4o", nil, ToolRegistry{})

	_, err := router.CompleteWithFailover(context.Background(), st, "primary", "gpt-4o", nil, nil, ChatOptions{}, nil)
	if err == nil {
		t.Fatal("expected an error once the whole chain is exhausted")
	}
	if len(client.calls) != 2 {
		t.Errorf("expected exactly 2 calls (one per chain entry), got %v", client.calls)
	}
}

func TestEffectiveChainDedupesAndPrependsPrimary(t *testing.T) {
	chain := effectiveChain("gpt-4o", []string{"gpt-4o-mini", "gpt-4o", "claude-3"})
	want := []string{"gpt-4o", "gpt-4o-mini", "claude-3"}
	if len(chain) != len(want) {
		t.Fatalf("expected %v, got %v", want, chain)
	}
	for i, m := range want {
		if chain[i] != m {
			t.Errorf("index %d: expected %q, got %q", i, m, chain[i])
		}
	}
}

func TestClassifyFailoverTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailoverClass
	}{
		{"rate limit", WrapLLMError(errors.New("429 too many requests"), http.StatusTooManyRequests, ""), FailoverRateLimit},
		{"server down", errors.New("503 service unavailable"), FailoverModelDown},
		{"plain rate-limit string without EngineError wrapping", errors.New("429 too many requests"), FailoverModelDown},
		{"context overflow", errors.New("maximum context length exceeded"), FailoverContextOverflow},
		{"auth error", WrapLLMError(errors.New("401 unauthorized"), http.StatusUnauthorized, ""), FailoverAuthError},
		{"plain auth string without EngineError wrapping", errors.New("401 unauthorized"), FailoverUnknown},
		{"unknown", errors.New("something weird happened"), FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailover(tt.err); got != tt.want {
				t.Errorf("classifyFailover(%q) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
