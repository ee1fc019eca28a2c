// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (INNOFOLIO_* prefix, runtime override)
//  2. Config file (~/.innofolio/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder model
//   - Retrieval: top-K, minimum relevance score, embed cache size
//   - Prompt: character budget, history window
//   - Storage: PostgreSQL connection (pgvector knowledge store)
//   - Server: listen address, CORS, proxy trust, rate limiting
//
// Sensitive data (the Postgres password) is never logged. Validation lives in
// validation.go with sentinel errors so callers can use errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrievalK indicates the retrieval top-K is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidMinScore indicates the minimum relevance score is out of range.
	ErrInvalidMinScore = errors.New("invalid minimum relevance score")

	// ErrInvalidPromptBudget indicates the prompt budget is out of range.
	ErrInvalidPromptBudget = errors.New("invalid prompt budget")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTimeout indicates an external-call timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Defaults for the deployment-tunable pipeline parameters. These are starting
// points, not contracts; operators override them per environment.
const (
	// DefaultRetrievalK is the number of nearest neighbors fetched per query.
	DefaultRetrievalK = 5

	// DefaultMinRelevanceScore is the cosine-similarity floor below which a
	// retrieved passage is discarded.
	DefaultMinRelevanceScore = 0.70

	// DefaultPromptBudget is the maximum assembled prompt size in characters
	// (system instructions + context + history + user turn).
	DefaultPromptBudget = 12000

	// DefaultHistoryWindow is the number of most recent conversation turns
	// considered before budget enforcement.
	DefaultHistoryWindow = 6
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`         // Provider-qualified, e.g. "googleai/gemini-2.5-flash"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"` // e.g. "text-embedding-004"

	// Retrieval configuration
	RetrievalK        int     `mapstructure:"retrieval_k" json:"retrieval_k"`
	MinRelevanceScore float64 `mapstructure:"min_relevance_score" json:"min_relevance_score"`
	EmbedCacheSize    int     `mapstructure:"embed_cache_size" json:"embed_cache_size"`

	// Prompt configuration
	PromptBudget  int `mapstructure:"prompt_budget" json:"prompt_budget"` // characters
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	// External call timeouts
	EmbedTimeout    time.Duration `mapstructure:"embed_timeout" json:"embed_timeout"`
	SearchTimeout   time.Duration `mapstructure:"search_timeout" json:"search_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" json:"generate_timeout"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE: never serialized
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // Per-IP rate limiter burst (0 = default)
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".innofolio")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "text-embedding-004")

	v.SetDefault("retrieval_k", DefaultRetrievalK)
	v.SetDefault("min_relevance_score", DefaultMinRelevanceScore)
	v.SetDefault("embed_cache_size", 256)

	v.SetDefault("prompt_budget", DefaultPromptBudget)
	v.SetDefault("history_window", DefaultHistoryWindow)

	v.SetDefault("embed_timeout", 10*time.Second)
	v.SetDefault("search_timeout", 10*time.Second)
	v.SetDefault("generate_timeout", 60*time.Second)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "innofolio")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "innofolio")
	v.SetDefault("postgres_ssl_mode", "prefer")

	v.SetDefault("addr", "localhost:8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)
}

// bindEnvVariables binds environment variables with the INNOFOLIO_ prefix.
// Example: INNOFOLIO_POSTGRES_HOST overrides postgres_host.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("INNOFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ConnString builds a PostgreSQL connection URL from the storage settings.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}
