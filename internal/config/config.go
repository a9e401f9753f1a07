// Package config loads and validates tool configuration from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/willixrain/go-mathimg/internal/fileutil"
	"github.com/willixrain/go-mathimg/internal/pipeline"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrConfigTooLarge  = errors.New("config file too large")
	ErrInvalidTimeout  = errors.New("invalid timeout")
	ErrInvalidWorkers  = errors.New("invalid workers value")
	ErrPromptTooLong   = errors.New("prompt exceeds maximum length")
)

// Limits.
const (
	MaxWorkers      = 16
	MaxPromptLength = 4096
	MaxTimeout      = 10 * time.Minute
	MaxConfigSize   = 1 << 20
)

// Config holds all configuration for the render tool.
type Config struct {
	Render RenderConfig `yaml:"render"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// RenderConfig defines render pipeline options.
type RenderConfig struct {
	Background string `yaml:"background"` // CSS color, empty = default
	Timeout    string `yaml:"timeout"`    // Go duration string, empty = default
	Workers    int    `yaml:"workers"`    // Pool size, 0 = auto
}

// OpenAIConfig defines article generation options. Only needed for the
// article modes; rendering raw content works without it.
type OpenAIConfig struct {
	APIKey      string `yaml:"apiKey"`
	BaseURL     string `yaml:"baseURL"` // Optional, for compatible providers
	Model       string `yaml:"model"`
	MathPrompt  string `yaml:"mathPrompt"`  // Override, empty = built-in
	PlainPrompt string `yaml:"plainPrompt"` // Override, empty = built-in
}

// DefaultConfig returns a configuration with all defaults in effect.
func DefaultConfig() *Config {
	return &Config{}
}

// ParsedTimeout parses the render timeout. Zero means "use the library default".
func (c *RenderConfig) ParsedTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTimeout, c.Timeout, err)
	}
	if d <= 0 || d > MaxTimeout {
		return 0, fmt.Errorf("%w: %q (must be positive, at most %s)", ErrInvalidTimeout, c.Timeout, MaxTimeout)
	}
	return d, nil
}

// Validate checks the configuration. Called automatically by LoadConfig,
// but available for consumers who construct Config manually.
func (c *Config) Validate() error {
	if err := pipeline.ValidateBackground(c.Render.Background); err != nil {
		return err
	}
	if _, err := c.Render.ParsedTimeout(); err != nil {
		return err
	}
	if c.Render.Workers < 0 || c.Render.Workers > MaxWorkers {
		return fmt.Errorf("%w: %d (must be 0..%d)", ErrInvalidWorkers, c.Render.Workers, MaxWorkers)
	}
	for name, prompt := range map[string]string{
		"mathPrompt":  c.OpenAI.MathPrompt,
		"plainPrompt": c.OpenAI.PlainPrompt,
	} {
		if len(prompt) > MaxPromptLength {
			return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrPromptTooLong, name, len(prompt), MaxPromptLength)
		}
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > MaxConfigSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, len(data), MaxConfigSize)
	}

	// An empty file means all defaults. Unknown fields are rejected so a
	// misspelled key fails loudly instead of silently using the default.
	var cfg Config
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-mathimg/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-mathimg", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
