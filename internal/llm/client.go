// Package llm wraps model generation behind a small client with blocking and
// streaming modes and a stable error taxonomy.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/innofolio/innofolio/internal/prompt"
)

// defaultGenerateTimeout bounds a single generation call.
const defaultGenerateTimeout = 60 * time.Second

// StreamCallback receives incremental response chunks during streaming
// generation. Returning an error aborts the stream.
type StreamCallback func(chunk string) error

// Client generates responses for assembled prompts. Safe for concurrent use.
type Client struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client bound to a model by name.
func New(g *genkit.Genkit, modelName string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		g:         g,
		modelName: modelName,
		logger:    logger,
		timeout:   defaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate produces the complete response in one call.
func (c *Client) Generate(ctx context.Context, p *prompt.Prompt) (string, error) {
	return c.generate(ctx, p, nil)
}

// GenerateStream produces the response incrementally, invoking cb for each
// chunk, and returns the accumulated full text. The returned text equals
// the concatenation of all chunks delivered to cb.
func (c *Client) GenerateStream(ctx context.Context, p *prompt.Prompt, cb StreamCallback) (string, error) {
	if cb == nil {
		return "", fmt.Errorf("%w: nil stream callback", ErrGenerationFailed)
	}
	return c.generate(ctx, p, cb)
}

func (c *Client) generate(ctx context.Context, p *prompt.Prompt, cb StreamCallback) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithSystem(p.System),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(p.Body))),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return cb(chunk.Text())
		}))
	}

	start := time.Now()
	resp, err := genkit.Generate(genCtx, c.g, opts...)
	if err != nil {
		classified := classifyError(err)
		c.logger.Error("generation failed",
			"model", c.modelName,
			"streaming", cb != nil,
			"elapsed", time.Since(start),
			"error", err)
		return "", fmt.Errorf("%w: %w", classified, err)
	}

	text := resp.Text()
	c.logger.Debug("generation complete",
		"model", c.modelName,
		"streaming", cb != nil,
		"elapsed", time.Since(start),
		"response_length", len(text))
	return text, nil
}
