package main

import (
	"testing"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/config"
)

func TestApplyDefaultsFillsOnlyEmptyFields(t *testing.T) {
	cfg := &config.Config{VoiceListenAddr: ":9999"}
	applyDefaults(cfg)

	if cfg.VoiceListenAddr != ":9999" {
		t.Errorf("expected explicit VoiceListenAddr to survive, got %q", cfg.VoiceListenAddr)
	}
	if cfg.DataDir == "" {
		t.Error("expected DataDir to be defaulted")
	}
	if cfg.MemoryRetention == "" {
		t.Error("expected MemoryRetention to be defaulted")
	}
}

func TestApplyDefaultsOnEmptyConfig(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)

	defaults := config.DefaultConfig()
	if cfg.DataDir != defaults.DataDir {
		t.Errorf("expected DataDir %q, got %q", defaults.DataDir, cfg.DataDir)
	}
	if cfg.VoiceListenAddr != defaults.VoiceListenAddr {
		t.Errorf("expected VoiceListenAddr %q, got %q", defaults.VoiceListenAddr, cfg.VoiceListenAddr)
	}
}
