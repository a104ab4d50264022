// Package config loads cauldron settings from built-in defaults and
// CAULDRON_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variable names, so
// CAULDRON_RECIPES_DIR overrides the recipes_dir key.
const envPrefix = "CAULDRON_"

// Config holds runtime settings for the CLI and the source gateways.
type Config struct {
	// RecipesDir is the directory holding recipe YAML files.
	RecipesDir string `koanf:"recipes_dir" validate:"required"`

	// SourcesDir is the cache root for bare git mirrors and downloaded archives.
	SourcesDir string `koanf:"sources_dir" validate:"required"`

	// BuildDir is where source trees are materialized for building.
	BuildDir string `koanf:"build_dir" validate:"required"`

	// GitRoot is the URL prefix used to derive an origin remote for
	// recipes that do not declare one.
	GitRoot string `koanf:"git_root"`

	// Branch is the branch tracked by recipes that pin no commit.
	Branch string `koanf:"branch" validate:"required"`

	// FetchTimeout bounds a single recipe fetch end to end.
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0"`

	// MaxRetries caps retry attempts for transient network failures.
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=10"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogJSON emits log entries as JSON lines instead of text.
	LogJSON bool `koanf:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RecipesDir:   "recipes",
		SourcesDir:   filepath.Join(xdg.CacheHome, "cauldron", "sources"),
		BuildDir:     filepath.Join(xdg.CacheHome, "cauldron", "build"),
		Branch:       "master",
		FetchTimeout: 10 * time.Minute,
		MaxRetries:   3,
		LogLevel:     "info",
	}
}

// Load builds the configuration from defaults overridden by CAULDRON_*
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
