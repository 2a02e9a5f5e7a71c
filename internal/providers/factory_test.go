package providers

import (
	"context"
	"testing"
)

func TestProviderDefaultsResolveUsesEnvOverDefaults(t *testing.T) {
	t.Setenv("OLLAMA_API_KEY", "")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("OLLAMA_BASE_URL", "")

	d := openAICompatibleProviders["ollama"]
	apiKey, model, baseURL, err := d.resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if apiKey != "ollama" {
		t.Errorf("expected the default api key fallback %q, got %q", "ollama", apiKey)
	}
	if model != "mistral" {
		t.Errorf("expected env override %q, got %q", "mistral", model)
	}
	if baseURL != "http://localhost:11434/v1" {
		t.Errorf("expected default base URL, got %q", baseURL)
	}
}

func TestProviderDefaultsResolveRequiresAPIKeyWhenNoDefault(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	d := openAICompatibleProviders["groq"]
	if _, _, _, err := d.resolve(); err == nil {
		t.Error("expected an error when no API key is set and there is no default")
	}
}

func TestNewLLMClientFromEnvDefaultsToOpenAI(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "")

	client, model, err := NewLLMClientFromEnv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
	if model != "gpt-4o-mini" {
		t.Errorf("expected the default openai model, got %q", model)
	}
}

func TestNewLLMClientFromEnvRoutesToAnthropic(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ANTHROPIC_MODEL", "")

	client, model, err := NewLLMClientFromEnv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
	if model != "claude-3-sonnet-20240229" {
		t.Errorf("expected the default anthropic model, got %q", model)
	}
}

func TestNewLLMClientFromEnvRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "not-a-real-provider")
	if _, _, err := NewLLMClientFromEnv(context.Background()); err == nil {
		t.Error("expected an error for an unrecognized LLM_PROVIDER")
	}
}

func TestNewLLMClientFromEnvRequiresAnthropicKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, _, err := NewLLMClientFromEnv(context.Background()); err == nil {
		t.Error("expected an error when ANTHROPIC_API_KEY is unset")
	}
}
