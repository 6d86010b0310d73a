package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvass.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfigFile(t, `analyzer: /usr/local/bin/can-analyzer
analyzer_args:
  - --quiet
scratch_dir: /tmp/canvass
save_path: /data/out.dbc
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Analyzer != "/usr/local/bin/can-analyzer" {
		t.Errorf("Analyzer = %q", cfg.Analyzer)
	}
	if len(cfg.AnalyzerArgs) != 1 || cfg.AnalyzerArgs[0] != "--quiet" {
		t.Errorf("AnalyzerArgs = %v", cfg.AnalyzerArgs)
	}
	if cfg.SavePath != "/data/out.dbc" {
		t.Errorf("SavePath = %q", cfg.SavePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfigFile(t, `analyzer: can-analyzer
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SavePath != DefaultSavePath {
		t.Errorf("SavePath = %q, want %q", cfg.SavePath, DefaultSavePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CANVASS_SCRATCH", "/var/scratch")

	path := writeConfigFile(t, `scratch_dir: ${CANVASS_SCRATCH}
save_path: ${CANVASS_SAVE:-/tmp/restored.dbc}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ScratchDir != "/var/scratch" {
		t.Errorf("ScratchDir = %q", cfg.ScratchDir)
	}
	if cfg.SavePath != "/tmp/restored.dbc" {
		t.Errorf("SavePath = %q", cfg.SavePath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "analyzer: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
