package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const fileName = "config.toml"

// Load reads configuration with this precedence, highest first:
//  1. RECALL_ environment variables (RECALL_INJECTION_MAX_TOKENS, ...)
//  2. config.toml in dir
//  3. Default()
//
// A missing config file is not an error. An empty dir skips the file.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if dir != "" {
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as TOML to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, fileName)
}

// setDefaults registers Default() with viper using dotted keys, so every key
// is known to AutomaticEnv even when no config file sets it.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("boundary.max_session_duration", d.Boundary.MaxSessionDuration)
	v.SetDefault("boundary.boundary_time_threshold", d.Boundary.BoundaryTimeThreshold)
	v.SetDefault("boundary.continuity_threshold", d.Boundary.ContinuityThreshold)

	v.SetDefault("injection.max_tokens", d.Injection.MaxTokens)
	v.SetDefault("injection.cooldown", d.Injection.Cooldown)
	v.SetDefault("injection.short_cooldown", d.Injection.ShortCooldown)
	v.SetDefault("injection.min_confidence", d.Injection.MinConfidence)
	v.SetDefault("injection.timeout", d.Injection.Timeout)

	v.SetDefault("summarizer.timeout", d.Summarizer.Timeout)

	v.SetDefault("watcher.enabled", d.Watcher.Enabled)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("watcher.max_messages", d.Watcher.MaxMessages)
	v.SetDefault("watcher.max_message_age", d.Watcher.MaxMessageAge)

	v.SetDefault("retention.days", d.Retention.Days)
	v.SetDefault("retention.interval", d.Retention.Interval)

	v.SetDefault("embedder.provider", d.Embedder.Provider)
	v.SetDefault("embedder.ollama_url", d.Embedder.OllamaURL)
	v.SetDefault("embedder.model", d.Embedder.Model)

	v.SetDefault("vector.provider", d.Vector.Provider)
	v.SetDefault("vector.qdrant_host", d.Vector.QdrantHost)
	v.SetDefault("vector.qdrant_port", d.Vector.QdrantPort)
	v.SetDefault("vector.collection", d.Vector.Collection)

	v.SetDefault("hooks.timeout", d.Hooks.Timeout)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.pretty", d.Log.Pretty)
}
