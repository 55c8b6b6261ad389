package gateway

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Render.URL == "" {
		t.Error("default render URL must be set")
	}
	if cfg.Render.DefaultPreset == "" {
		t.Error("default preset name must be set")
	}
	if cfg.Evolve.GenomeLength != 10 {
		t.Errorf("default genome length = %d, want 10", cfg.Evolve.GenomeLength)
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"discord": {"token": "abc", "allowed_channel_ids": ["1", "2"]},
		"render": {"url": "http://gpubox:7860"},
		"evolve": {"genome_length": 12, "hide_prompt": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Discord.Token != "abc" {
		t.Errorf("token = %q, want abc", cfg.Discord.Token)
	}
	if len(cfg.Discord.AllowedChannelIDs) != 2 {
		t.Errorf("allowed channels = %v, want 2 entries", cfg.Discord.AllowedChannelIDs)
	}
	if cfg.Render.URL != "http://gpubox:7860" {
		t.Errorf("render URL = %q", cfg.Render.URL)
	}
	if cfg.Evolve.GenomeLength != 12 || !cfg.Evolve.HidePrompt {
		t.Errorf("evolve config not applied: %+v", cfg.Evolve)
	}
	// Untouched fields keep defaults
	if cfg.Render.DefaultPreset != "default" {
		t.Errorf("default preset lost in merge: %q", cfg.Render.DefaultPreset)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}
