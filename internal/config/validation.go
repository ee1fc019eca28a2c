package config

import (
	"fmt"
	"strings"
	"time"
)

// Valid PostgreSQL SSL modes.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for correctness.
// Returns the first validation failure wrapped around a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalK < 1 || c.RetrievalK > 50 {
		return fmt.Errorf("%w: got %d, must be in [1, 50]", ErrInvalidRetrievalK, c.RetrievalK)
	}
	if c.MinRelevanceScore < 0 || c.MinRelevanceScore > 1 {
		return fmt.Errorf("%w: got %v, must be in [0, 1]", ErrInvalidMinScore, c.MinRelevanceScore)
	}

	if c.PromptBudget < 1000 {
		return fmt.Errorf("%w: got %d, must be at least 1000 characters", ErrInvalidPromptBudget, c.PromptBudget)
	}
	if c.HistoryWindow < 0 || c.HistoryWindow > 100 {
		return fmt.Errorf("%w: got %d, must be in [0, 100]", ErrInvalidHistoryWindow, c.HistoryWindow)
	}

	for name, d := range map[string]time.Duration{
		"embed_timeout":    c.EmbedTimeout,
		"search_timeout":   c.SearchTimeout,
		"generate_timeout": c.GenerateTimeout,
	} {
		if d <= 0 || d > 10*time.Minute {
			return fmt.Errorf("%w: %s is %v, must be in (0, 10m]", ErrInvalidTimeout, name, d)
		}
	}

	return c.validateStorage()
}

// validateStorage checks the PostgreSQL connection settings.
func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: got %d, must be in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}
