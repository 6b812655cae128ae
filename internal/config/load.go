package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise produce a broken frame.
func (c *Config) Validate() error {
	if c.Display.Width < 0 || c.Display.Height < 0 {
		return fmt.Errorf("display size %dx%d is negative", c.Display.Width, c.Display.Height)
	}
	if c.Shadows.Size <= 0 {
		return fmt.Errorf("shadow size must be positive, got %d", c.Shadows.Size)
	}
	if c.Shadows.Distance <= 0 {
		return fmt.Errorf("shadow distance must be positive, got %g", c.Shadows.Distance)
	}
	if c.Shadows.Transition < 0 || c.Shadows.Transition > c.Shadows.Distance {
		return fmt.Errorf("shadow transition %g outside [0, %g]", c.Shadows.Transition, c.Shadows.Distance)
	}
	if c.Post.BlurSize <= 0 {
		return fmt.Errorf("blur size must be positive, got %g", c.Post.BlurSize)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./render.yaml",
		filepath.Join(ConfigDir(), "render.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MidgardRender")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MidgardRender")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "midgard-render")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "midgard-render")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
