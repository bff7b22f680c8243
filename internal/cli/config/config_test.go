// Package config defines the CLI configuration structure.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultServer != "localhost:25080" {
		t.Errorf("DefaultServer = %q, want %q", cfg.DefaultServer, "localhost:25080")
	}
	if cfg.DefaultOutput != "table" {
		t.Errorf("DefaultOutput = %q, want %q", cfg.DefaultOutput, "table")
	}
	if cfg.Servers == nil {
		t.Error("Servers should not be nil")
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("Servers should be empty, got %d", len(cfg.Servers))
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path == "" {
		t.Error("DefaultConfigPath should not be empty")
	}
	if !filepath.IsAbs(path) {
		t.Error("Path should be absolute")
	}

	expected := filepath.Join(".tokmesh", "cli.yaml")
	if !containsSuffix(path, expected) {
		t.Errorf("Path = %q, should end with %q", path, expected)
	}
}

func containsSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("Load should not error for nonexistent file: %v", err)
	}
	if cfg == nil {
		t.Error("Load should return default config")
	}
	if cfg.DefaultServer != "localhost:25080" {
		t.Error("Should return default config for nonexistent file")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Errorf("Load should not error: %v", err)
	}
	if cfg == nil {
		t.Error("Load should return config")
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "cli.yaml")

	cfg := Default()
	cfg.DefaultServer = "10.0.0.5:25080"
	cfg.Servers["prod"] = ServerConfig{Server: "prod.internal:25080"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Error("Directory should have been created")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DefaultServer != "10.0.0.5:25080" {
		t.Errorf("DefaultServer = %q, want %q", loaded.DefaultServer, "10.0.0.5:25080")
	}
	if loaded.Servers["prod"].Server != "prod.internal:25080" {
		t.Errorf("Servers[prod].Server = %q, want %q", loaded.Servers["prod"].Server, "prod.internal:25080")
	}
}

func TestMerge(t *testing.T) {
	cfg := Default()

	env := map[string]string{
		"TOKMESH_SERVER": "example.com:25080",
	}
	flags := map[string]string{
		"output": "json",
	}

	result := Merge(cfg, env, flags)
	if result.DefaultServer != "example.com:25080" {
		t.Errorf("DefaultServer = %q, want env override", result.DefaultServer)
	}
	if result.DefaultOutput != "json" {
		t.Errorf("DefaultOutput = %q, want flag override", result.DefaultOutput)
	}
}

func TestMerge_FlagWinsOverEnv(t *testing.T) {
	cfg := Default()

	env := map[string]string{"TOKMESH_SERVER": "env.example.com:25080"}
	flags := map[string]string{"server": "flag.example.com:25080"}

	result := Merge(cfg, env, flags)
	if result.DefaultServer != "flag.example.com:25080" {
		t.Errorf("DefaultServer = %q, want flag to win over env", result.DefaultServer)
	}
}

func TestCLIConfig_Struct(t *testing.T) {
	cfg := CLIConfig{
		DefaultServer:     "api.example.com:25080",
		DefaultOutput:     "json",
		CurrentServerName: "prod",
		Servers: map[string]ServerConfig{
			"prod": {Server: "prod.example.com:25080"},
			"dev":  {Server: "localhost:25080"},
		},
	}

	if cfg.DefaultServer != "api.example.com:25080" {
		t.Error("DefaultServer not set correctly")
	}
	if len(cfg.Servers) != 2 {
		t.Error("Servers count incorrect")
	}
	if cfg.Servers["dev"].Server != "localhost:25080" {
		t.Error("dev server not set correctly")
	}
}
