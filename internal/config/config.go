package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all recall configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `toml:"database" mapstructure:"database"`
	Boundary   BoundaryConfig   `toml:"boundary" mapstructure:"boundary"`
	Injection  InjectionConfig  `toml:"injection" mapstructure:"injection"`
	Summarizer SummarizerConfig `toml:"summarizer" mapstructure:"summarizer"`
	Watcher    WatcherConfig    `toml:"watcher" mapstructure:"watcher"`
	Retention  RetentionConfig  `toml:"retention" mapstructure:"retention"`
	Embedder   EmbedderConfig   `toml:"embedder" mapstructure:"embedder"`
	Vector     VectorConfig     `toml:"vector" mapstructure:"vector"`
	Hooks      HooksConfig      `toml:"hooks" mapstructure:"hooks"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" mapstructure:"bind"`
	Port int    `toml:"port" mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path" mapstructure:"path"` // empty resolves to store.DefaultDBPath()
}

// BoundaryConfig tunes session boundary detection.
type BoundaryConfig struct {
	MaxSessionDuration    time.Duration `toml:"max_session_duration" mapstructure:"max_session_duration"`
	BoundaryTimeThreshold time.Duration `toml:"boundary_time_threshold" mapstructure:"boundary_time_threshold"`
	ContinuityThreshold   float64       `toml:"continuity_threshold" mapstructure:"continuity_threshold"`
}

// InjectionConfig tunes the injection orchestrator.
type InjectionConfig struct {
	MaxTokens     int           `toml:"max_tokens" mapstructure:"max_tokens"`
	Cooldown      time.Duration `toml:"cooldown" mapstructure:"cooldown"`
	ShortCooldown time.Duration `toml:"short_cooldown" mapstructure:"short_cooldown"`
	MinConfidence float64       `toml:"min_confidence" mapstructure:"min_confidence"`
	Timeout       time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type SummarizerConfig struct {
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// WatcherConfig controls the file watcher and the conversation buffer.
type WatcherConfig struct {
	Enabled       bool          `toml:"enabled" mapstructure:"enabled"`
	Debounce      time.Duration `toml:"debounce" mapstructure:"debounce"`
	MaxMessages   int           `toml:"max_messages" mapstructure:"max_messages"`
	MaxMessageAge time.Duration `toml:"max_message_age" mapstructure:"max_message_age"`
}

type RetentionConfig struct {
	Days     int           `toml:"days" mapstructure:"days"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

type EmbedderConfig struct {
	Provider  string `toml:"provider" mapstructure:"provider"` // "ollama" or "tfidf"
	OllamaURL string `toml:"ollama_url" mapstructure:"ollama_url"`
	Model     string `toml:"model" mapstructure:"model"`
}

type VectorConfig struct {
	Provider   string `toml:"provider" mapstructure:"provider"` // "local" or "qdrant"
	QdrantHost string `toml:"qdrant_host" mapstructure:"qdrant_host"`
	QdrantPort int    `toml:"qdrant_port" mapstructure:"qdrant_port"`
	Collection string `toml:"collection" mapstructure:"collection"`
}

type HooksConfig struct {
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type LogConfig struct {
	Debug  bool `toml:"debug" mapstructure:"debug"`
	JSON   bool `toml:"json" mapstructure:"json"`
	Pretty bool `toml:"pretty" mapstructure:"pretty"`
}

// Default returns a Config with sensible defaults. It is the single source of
// default values; Load registers these with viper.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Boundary: BoundaryConfig{
			MaxSessionDuration:    4 * time.Hour,
			BoundaryTimeThreshold: 30 * time.Minute,
			ContinuityThreshold:   0.7,
		},
		Injection: InjectionConfig{
			MaxTokens:     800,
			Cooldown:      15 * time.Minute,
			ShortCooldown: 5 * time.Minute,
			MinConfidence: 0.6,
			Timeout:       3 * time.Second,
		},
		Summarizer: SummarizerConfig{
			Timeout: 2 * time.Second,
		},
		Watcher: WatcherConfig{
			Enabled:       true,
			Debounce:      2 * time.Second,
			MaxMessages:   100,
			MaxMessageAge: 24 * time.Hour,
		},
		Retention: RetentionConfig{
			Days:     90,
			Interval: 24 * time.Hour,
		},
		Embedder: EmbedderConfig{
			Provider:  "ollama",
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		Vector: VectorConfig{
			Provider:   "local",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "recall_memories",
		},
		Hooks: HooksConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultDir returns ~/.recall, where config.toml and the database live.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall"), nil
}
