package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by Defaults via Merge.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Exactly one repository source: a remote HTTP repository or a local
	// directory of models.
	RepoURL            string `json:"repo_url" yaml:"repo_url" toml:"repo_url"`
	RepoDir            string `json:"repo_dir" yaml:"repo_dir" toml:"repo_dir"`
	RepoTimeoutSeconds int    `json:"repo_timeout_seconds" yaml:"repo_timeout_seconds" toml:"repo_timeout_seconds"`

	CacheBudgetBytes      int64  `json:"cache_budget_bytes" yaml:"cache_budget_bytes" toml:"cache_budget_bytes"`
	PrefetchDepth         uint32 `json:"prefetch_depth" yaml:"prefetch_depth" toml:"prefetch_depth"`
	DefaultMaxTokens      int    `json:"default_max_tokens" yaml:"default_max_tokens" toml:"default_max_tokens"`
	BlockOnQualityFailure bool   `json:"block_on_quality_failure" yaml:"block_on_quality_failure" toml:"block_on_quality_failure"`
	// Model bound at startup when no snapshot restored a binding.
	BindOnStart string `json:"bind_on_start" yaml:"bind_on_start" toml:"bind_on_start"`

	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path" toml:"snapshot_path"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// Upper bound for bind, prefetch and generate requests; 0 disables.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
