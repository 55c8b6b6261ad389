package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for musegen.
type Config struct {
	Discord DiscordConfig `json:"discord"`
	Render  RenderConfig  `json:"render"`
	Evolve  EvolveConfig  `json:"evolve"`
}

// DiscordConfig holds Discord bot configuration.
type DiscordConfig struct {
	Token             string   `json:"token"`
	AllowedGuildIDs   []string `json:"allowed_guild_ids"`
	AllowedChannelIDs []string `json:"allowed_channel_ids"`
	AllowedUserIDs    []string `json:"allowed_user_ids"`
}

// RenderConfig points at the image generation service.
type RenderConfig struct {
	URL            string `json:"url"`             // e.g. "http://localhost:7860"
	PresetFile     string `json:"preset_file"`     // optional user preset YAML
	DefaultPreset  string `json:"default_preset"`  // preset used when a session doesn't pick one
	TimeoutSeconds int    `json:"timeout_seconds"` // per-render cap
}

// EvolveConfig holds session defaults.
type EvolveConfig struct {
	GenomeLength     int    `json:"genome_length"`      // genes per candidate (default 10)
	TagsURL          string `json:"tags_url"`           // default tag list source; empty uses the bundled list
	HidePrompt       bool   `json:"hide_prompt"`        // withhold prompt text from posts
	GalleryChannelID string `json:"gallery_channel_id"` // target for promoted images
}

// LoadConfig loads configuration from a JSON file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			URL:            "http://localhost:7860",
			DefaultPreset:  "default",
			TimeoutSeconds: 300,
		},
		Evolve: EvolveConfig{
			GenomeLength: 10,
		},
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".musegen", "config.json")
}
