// Package config loads and validates the engine's TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
//
// Grounded on internal/config's own Duration type (cortex), carried over
// byte-for-byte because it is the teacher's idiomatic way to get
// human-readable durations out of BurntSushi/toml (which has no native
// duration type).
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration document.
type Config struct {
	General   General   `toml:"general"`
	Tree      Tree      `toml:"tree"`
	Risk      Risk      `toml:"risk"`
	Embedding Embedding `toml:"embedding"`
	Git       Git       `toml:"git"`
	Architect Architect `toml:"architect"`
	Codie     Codie     `toml:"codie"`
	Store     Store     `toml:"store"`
}

// General holds engine-wide runtime settings.
type General struct {
	LogLevel       string   `toml:"log_level"`
	DefaultTimeout Duration `toml:"default_timeout"`
	WorkerPoolSize int      `toml:"worker_pool_size"`
}

// Tree points at the tree document to load.
type Tree struct {
	Path string `toml:"path"`
}

// Risk configures the approval gate's scoring and sensitive-path detection.
type Risk struct {
	SensitivePrefixes []string `toml:"sensitive_prefixes"`
	CTOFallbackID     string   `toml:"cto_fallback_id"`
}

// Embedding configures the Embedding Index's optional vector backend.
type Embedding struct {
	Enabled  bool   `toml:"enabled"`
	Model    string `toml:"model"`
	Dim      int    `toml:"dim"`
	APIKeyEnv string `toml:"api_key_env"`
}

// Git configures the Git Layer's workspace and default branch.
type Git struct {
	Workspace     string `toml:"workspace"`
	DefaultBranch string `toml:"default_branch"`
}

// Architect configures the Architect's semantic-cache threshold.
type Architect struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Codie configures the CODIE interpreter's filesystem resolvers.
type Codie struct {
	ValidatorsDir    string   `toml:"validators_dir"`
	ToolchainAllow   []string `toml:"toolchain_allow"`
}

// Store configures the Content Store's SQLite-backed document store and
// local content-addressed object store.
type Store struct {
	DocumentDB  string `toml:"document_db"`
	ObjectDir   string `toml:"object_dir"`
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.DefaultTimeout.Duration == 0 {
		cfg.General.DefaultTimeout = Duration{30 * time.Second}
	}
	if cfg.General.WorkerPoolSize <= 0 {
		cfg.General.WorkerPoolSize = 4
	}
	if cfg.Embedding.Dim <= 0 {
		cfg.Embedding.Dim = 384
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gemini-embedding-001"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Git.DefaultBranch == "" {
		cfg.Git.DefaultBranch = "main"
	}
	if cfg.Architect.SimilarityThreshold <= 0 {
		cfg.Architect.SimilarityThreshold = 0.9
	}
	if len(cfg.Risk.SensitivePrefixes) == 0 {
		cfg.Risk.SensitivePrefixes = []string{"security/", "docker/", ".env", "credentials", "config/"}
	}
	if cfg.Risk.CTOFallbackID == "" {
		cfg.Risk.CTOFallbackID = "exec:cto"
	}
	if cfg.Store.DocumentDB == "" {
		cfg.Store.DocumentDB = "ptc.db"
	}
	if cfg.Store.ObjectDir == "" {
		cfg.Store.ObjectDir = "objects"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Tree.Path) == "" {
		return fmt.Errorf("tree.path is required")
	}
	if cfg.Architect.SimilarityThreshold < 0 || cfg.Architect.SimilarityThreshold > 1 {
		return fmt.Errorf("architect.similarity_threshold must be within [0,1], got %f", cfg.Architect.SimilarityThreshold)
	}
	return nil
}

// Load reads and validates an engine TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validating: %w", err)
	}

	return &cfg, nil
}
