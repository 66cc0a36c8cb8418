package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if got := cfg.ListenAddr(); got != "127.0.0.1:37778" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:37778", got)
	}
	if cfg.Boundary.MaxSessionDuration != 4*time.Hour {
		t.Errorf("MaxSessionDuration = %v, want 4h", cfg.Boundary.MaxSessionDuration)
	}
	if cfg.Injection.MaxTokens != 800 {
		t.Errorf("MaxTokens = %d, want 800", cfg.Injection.MaxTokens)
	}
	if cfg.Injection.Cooldown != 15*time.Minute || cfg.Injection.ShortCooldown != 5*time.Minute {
		t.Errorf("cooldowns = %v/%v, want 15m/5m", cfg.Injection.Cooldown, cfg.Injection.ShortCooldown)
	}
	if cfg.Watcher.MaxMessages != 100 {
		t.Errorf("MaxMessages = %d, want 100", cfg.Watcher.MaxMessages)
	}
	if cfg.Vector.Provider != "local" {
		t.Errorf("Vector.Provider = %q, want local", cfg.Vector.Provider)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Injection != want.Injection {
		t.Errorf("Injection = %+v, want %+v", cfg.Injection, want.Injection)
	}
	if cfg.Boundary != want.Boundary {
		t.Errorf("Boundary = %+v, want %+v", cfg.Boundary, want.Boundary)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[server]
port = 40000

[injection]
max_tokens = 1200
cooldown = "10m"

[vector]
provider = "qdrant"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 40000 {
		t.Errorf("Port = %d, want 40000", cfg.Server.Port)
	}
	if cfg.Injection.MaxTokens != 1200 {
		t.Errorf("MaxTokens = %d, want 1200", cfg.Injection.MaxTokens)
	}
	if cfg.Injection.Cooldown != 10*time.Minute {
		t.Errorf("Cooldown = %v, want 10m", cfg.Injection.Cooldown)
	}
	// Unset keys keep their defaults.
	if cfg.Injection.ShortCooldown != 5*time.Minute {
		t.Errorf("ShortCooldown = %v, want 5m", cfg.Injection.ShortCooldown)
	}
	if cfg.Vector.Provider != "qdrant" || cfg.Vector.Collection != "recall_memories" {
		t.Errorf("Vector = %+v", cfg.Vector)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RECALL_INJECTION_MAX_TOKENS", "400")
	t.Setenv("RECALL_LOG_DEBUG", "true")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Injection.MaxTokens != 400 {
		t.Errorf("MaxTokens = %d, want 400", cfg.Injection.MaxTokens)
	}
	if !cfg.Log.Debug {
		t.Error("Log.Debug = false, want true")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server\nport = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recall")
	cfg := Default()
	cfg.Server.Port = 41000
	cfg.Retention.Days = 30

	if err := Save(Path(dir), &cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.Port != 41000 {
		t.Errorf("Port = %d, want 41000", loaded.Server.Port)
	}
	if loaded.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want 30", loaded.Retention.Days)
	}
	if loaded.Injection.Cooldown != 15*time.Minute {
		t.Errorf("Cooldown = %v, want 15m", loaded.Injection.Cooldown)
	}
}

func TestSaveNil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "config.toml"), nil); err == nil {
		t.Error("expected error saving nil config")
	}
}
