package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

// providerDefaults is an OpenAI-compatible endpoint's env var names and
// fallback model/base URL.
type providerDefaults struct {
	apiKeyEnv    string
	apiKeyDefault string
	modelEnv     string
	modelDefault string
	baseURLEnv   string
	baseURLDefault string
}

func (d providerDefaults) resolve() (apiKey, model, baseURL string, err error) {
	apiKey = os.Getenv(d.apiKeyEnv)
	if apiKey == "" {
		apiKey = d.apiKeyDefault
	}
	if apiKey == "" {
		return "", "", "", fmt.Errorf("%s not set", d.apiKeyEnv)
	}
	model = os.Getenv(d.modelEnv)
	if model == "" {
		model = d.modelDefault
	}
	baseURL = d.baseURLDefault
	if d.baseURLEnv != "" {
		if v := os.Getenv(d.baseURLEnv); v != "" {
			baseURL = v
		}
	}
	return apiKey, model, baseURL, nil
}

var openAICompatibleProviders = map[string]providerDefaults{
	"openai": {
		apiKeyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", modelDefault: "gpt-4o-mini",
		baseURLEnv: "OPENAI_BASE_URL",
	},
	"kimi": {
		apiKeyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", modelDefault: "kimi-k2-250711",
		baseURLEnv: "KIMI_BASE_URL", baseURLDefault: "https://ark.ap-southeast.bytepluses.com/api/v3",
	},
	"gemini": {
		apiKeyEnv: "GEMINI_API_KEY", modelEnv: "GEMINI_MODEL", modelDefault: "gemini-1.5-flash",
		baseURLDefault: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	"lmstudio": {
		apiKeyEnv: "LMSTUDIO_API_KEY", apiKeyDefault: "lm-studio",
		modelEnv: "LMSTUDIO_MODEL", modelDefault: "local-model",
		baseURLEnv: "LMSTUDIO_BASE_URL", baseURLDefault: "http://localhost:1234/v1",
	},
	"ollama": {
		apiKeyEnv: "OLLAMA_API_KEY", apiKeyDefault: "ollama",
		modelEnv: "OLLAMA_MODEL", modelDefault: "llama3.1",
		baseURLEnv: "OLLAMA_BASE_URL", baseURLDefault: "http://localhost:11434/v1",
	},
	"glm": {
		apiKeyEnv: "GLM_API_KEY", modelEnv: "GLM_MODEL", modelDefault: "glm-4-plus",
		baseURLDefault: "https://open.bigmodel.cn/api/paas/v4",
	},
	"minimax": {
		apiKeyEnv: "MINIMAX_API_KEY", modelEnv: "MINIMAX_MODEL", modelDefault: "abab6.5s-chat",
		baseURLDefault: "https://api.minimax.chat/v1",
	},
	"deepseek": {
		apiKeyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL", modelDefault: "deepseek-chat",
		baseURLDefault: "https://api.deepseek.com/v1",
	},
	"groq": {
		apiKeyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL", modelDefault: "llama-3.1-70b-versatile",
		baseURLDefault: "https://api.groq.com/openai/v1",
	},
}

// NewLLMClientFromEnv builds an engine.LLMClient from the LLM_PROVIDER
// environment variable (default "openai") plus that provider's API key and
// model env vars, returning the resolved client and default model name.
// Every provider except "anthropic" speaks the OpenAI chat completions wire
// format, so they all route through OpenAIClient with a different base URL.
func NewLLMClientFromEnv(ctx context.Context) (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	if provider == "anthropic" {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-sonnet-20240229"
		}
		client, err := NewAnthropicClient(apiKey)
		if err != nil {
			return nil, "", fmt.Errorf("creating Anthropic client: %w", err)
		}
		return client, model, nil
	}

	defaults, ok := openAICompatibleProviders[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: openai, anthropic, kimi, gemini, lmstudio, ollama, glm, minimax, deepseek, groq)", provider)
	}
	apiKey, model, baseURL, err := defaults.resolve()
	if err != nil {
		return nil, "", err
	}
	client, err := NewOpenAIClient(apiKey, baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("creating %s client: %w", provider, err)
	}
	return client, model, nil
}
