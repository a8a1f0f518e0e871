package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ptc.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[tree]
path = "tree.json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("log_level default = %q, want info", cfg.General.LogLevel)
	}
	if cfg.Embedding.Dim != 384 {
		t.Errorf("embedding.dim default = %d, want 384", cfg.Embedding.Dim)
	}
	if cfg.Architect.SimilarityThreshold != 0.9 {
		t.Errorf("architect.similarity_threshold default = %f, want 0.9", cfg.Architect.SimilarityThreshold)
	}
	if len(cfg.Risk.SensitivePrefixes) == 0 {
		t.Error("expected default sensitive prefixes")
	}
}

func TestLoadRequiresTreePath(t *testing.T) {
	path := writeConfig(t, `
[general]
log_level = "debug"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing tree.path")
	}
}

func TestLoadParsesDuration(t *testing.T) {
	path := writeConfig(t, `
[tree]
path = "tree.json"

[general]
default_timeout = "2m"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.DefaultTimeout.Duration.String() != "2m0s" {
		t.Errorf("default_timeout = %v, want 2m0s", cfg.General.DefaultTimeout.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/ptc.toml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
