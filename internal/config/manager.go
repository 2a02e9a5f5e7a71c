package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds persistent configuration for the agent core binary. Provider
// credentials stay in the environment (internal/providers.NewLLMClientFromEnv);
// this file only holds settings that don't belong in a process environment -
// where on disk the memory store lives, how long it retains conversations,
// and what address the voice websocket server listens on.
type Config struct {
	DataDir            string `json:"data_dir,omitempty"`         // directory holding the memory store's sqlite db + bleve index
	VoiceListenAddr    string `json:"voice_listen_addr,omitempty"` // e.g. ":8088"
	MemoryRetention    string `json:"memory_retention,omitempty"`  // Go duration string, e.g. "720h"; a zero duration such as "0s" disables eviction
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	TranscriptionModel string `json:"transcription_model,omitempty"`
	SpeechModel        string `json:"speech_model,omitempty"`
	SpeechVoice        string `json:"speech_voice,omitempty"`
}

// DefaultConfig returns the values main.go falls back to when no config
// file is present and no flag overrides them.
func DefaultConfig() Config {
	return Config{
		DataDir:         filepath.Join(".", "data"),
		VoiceListenAddr: ":8088",
		MemoryRetention: "720h",
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	agentConfigDir := filepath.Join(configDir, "dodo-agentcore")
	return &Manager{
		configDir: agentConfigDir,
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	// Ensure directory exists
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	// Write with 0600 permissions (read/write only by owner)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
