package render

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltinPresets(t *testing.T) {
	presets, err := LoadPresets("")
	if err != nil {
		t.Fatalf("LoadPresets failed: %v", err)
	}

	p, err := presets.Get("default")
	if err != nil {
		t.Fatalf("built-in default preset missing: %v", err)
	}
	if p.Steps <= 0 || p.Width <= 0 || p.Height <= 0 {
		t.Errorf("default preset has degenerate parameters: %+v", p)
	}
	if p.Seed != -1 {
		t.Errorf("Get must default seed to -1, got %d", p.Seed)
	}
}

func TestLoadPresetsMergesUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	user := `
default:
  steps: 99
  width: 256
  height: 256
custom:
  steps: 5
  width: 128
  height: 128
`
	if err := os.WriteFile(path, []byte(user), 0o644); err != nil {
		t.Fatalf("failed to write preset file: %v", err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets failed: %v", err)
	}

	d, err := presets.Get("default")
	if err != nil {
		t.Fatalf("default preset missing: %v", err)
	}
	if d.Steps != 99 {
		t.Errorf("user preset did not override builtin: steps = %d, want 99", d.Steps)
	}

	if _, err := presets.Get("custom"); err != nil {
		t.Errorf("user-only preset missing: %v", err)
	}
	if _, err := presets.Get("fast"); err != nil {
		t.Errorf("builtin preset lost in merge: %v", err)
	}
}

func TestLoadPresetsMissingFileFallsBack(t *testing.T) {
	presets, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadPresets failed for missing file: %v", err)
	}
	if _, err := presets.Get("default"); err != nil {
		t.Errorf("builtin presets unavailable: %v", err)
	}
}

func TestGetUnknownPreset(t *testing.T) {
	presets, err := LoadPresets("")
	if err != nil {
		t.Fatalf("LoadPresets failed: %v", err)
	}
	if _, err := presets.Get("does-not-exist"); err == nil {
		t.Error("expected error for unknown preset")
	}
}
