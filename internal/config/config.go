// Package config loads and validates process-wide configuration:
// the ordered backend list, the permission policy, and per-provider
// connection settings. Supplied once at startup; runtime changes go
// through explicit re-registration, never through this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hanzoai/aci/internal/logging"
)

// Config holds all ACI configuration.
type Config struct {
	// Backends is the ordered backend list. Lower priority = preferred.
	Backends []BackendConfig `yaml:"backends"`

	// Permissions configures the permission gate.
	Permissions PermissionConfig `yaml:"permissions"`

	// Semantic configures the semantic search provider.
	Semantic SemanticConfig `yaml:"semantic"`

	// Logging configures the categorized file logger.
	Logging logging.Settings `yaml:"logging"`
}

// BackendConfig describes one backend adapter to register.
type BackendConfig struct {
	// Name identifies the adapter kind: "native", "session", "remote".
	Name string `yaml:"name"`

	// Priority orders backend selection. Lower = preferred.
	Priority int `yaml:"priority"`

	// Enabled disables registration without removing the entry.
	Enabled bool `yaml:"enabled"`

	// Command is the subprocess for session and remote backends
	// (e.g. "hanzo-dev" or "aci-agent serve --stdio").
	Command string `yaml:"command,omitempty"`

	// Timeout bounds a single backend invocation. Zero means the
	// adapter's default.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// PermissionConfig configures the permission gate policy.
type PermissionConfig struct {
	// Allow lists resource prefixes that are always permitted.
	Allow []string `yaml:"allow"`

	// Deny lists resource prefixes that are always refused.
	Deny []string `yaml:"deny"`

	// AutoConfirm answers yes to every confirmation prompt. Intended
	// for non-interactive use; elevated operations are otherwise denied
	// when no confirmation hook is configured.
	AutoConfirm bool `yaml:"auto_confirm"`
}

// SemanticConfig configures the semantic search provider.
type SemanticConfig struct {
	// DatabasePath is the sqlite file backing collections.
	// Defaults to <workspace>/.aci/collections.db.
	DatabasePath string `yaml:"database_path"`

	// WatchRoots enables fsnotify staleness tracking on loaded
	// collection roots.
	WatchRoots bool `yaml:"watch_roots"`

	// Embedding selects and configures the embedding engine.
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig holds embedding engine configuration.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai" or "hash".
	Provider string `yaml:"provider"`

	// Ollama configuration.
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI configuration.
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"
}

// Default returns the configuration used when no config file exists.
func Default(workspace string) *Config {
	return &Config{
		Backends: []BackendConfig{
			{Name: "remote", Priority: 1, Enabled: false},
			{Name: "session", Priority: 2, Enabled: false},
			{Name: "native", Priority: 3, Enabled: true},
		},
		Permissions: PermissionConfig{
			Allow: []string{workspace},
		},
		Semantic: SemanticConfig{
			DatabasePath: filepath.Join(workspace, ".aci", "collections.db"),
			WatchRoots:   true,
			Embedding: EmbeddingConfig{
				Provider:       "hash",
				OllamaEndpoint: "http://localhost:11434",
				OllamaModel:    "embeddinggemma",
				GenAIModel:     "gemini-embedding-001",
			},
		},
		Logging: logging.Settings{Level: "info"},
	}
}

// Load reads the config file at path, falling back to Default when the
// file does not exist.
func Load(path, workspace string) (*Config, error) {
	cfg := Default(workspace)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend entry missing name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend entry: %s", b.Name)
		}
		seen[b.Name] = true

		switch b.Name {
		case "native":
		case "session", "remote":
			if b.Enabled && b.Command == "" {
				return fmt.Errorf("backend %s enabled but no command configured", b.Name)
			}
		default:
			return fmt.Errorf("unknown backend kind: %s", b.Name)
		}
	}
	return nil
}
