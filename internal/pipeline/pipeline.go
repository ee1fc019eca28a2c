// Package pipeline orchestrates one chat turn: inbound screening, retrieval,
// prompt assembly, generation, and outbound screening.
//
// Each stage either advances the request or terminates it with a refusal or
// failure. Retrieval failures degrade to ungrounded generation instead of
// failing the turn; transient generation failures are retried once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/innofolio/innofolio/internal/knowledge"
	"github.com/innofolio/innofolio/internal/llm"
	"github.com/innofolio/innofolio/internal/prompt"
	"github.com/innofolio/innofolio/internal/retrieval"
	"github.com/innofolio/innofolio/internal/safety"
)

// Status is the terminal outcome of a chat turn.
type Status string

const (
	// StatusDone means a response was generated and screened.
	StatusDone Status = "done"
	// StatusRefused means screening produced a canned response and the
	// model was never consulted, or the model's output was replaced.
	StatusRefused Status = "refused"
	// StatusFailed means no response could be produced.
	StatusFailed Status = "failed"
)

// Retriever fetches relevant knowledge passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]knowledge.SearchResult, error)
}

// Generator produces model responses for assembled prompts.
type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt) (string, error)
	GenerateStream(ctx context.Context, p *prompt.Prompt, cb llm.StreamCallback) (string, error)
}

// Screener applies content rules in a given direction.
type Screener interface {
	Screen(text string, dir safety.Direction) safety.Verdict
}

// Assembler builds budget-compliant prompts.
type Assembler interface {
	Assemble(in prompt.Input) (*prompt.Prompt, error)
}

// Request is one chat turn to process.
type Request struct {
	Message    string
	History    []prompt.Turn
	SessionID  string
	ResumeText string
}

// Result is the outcome of a processed turn.
type Result struct {
	Response  string
	Sources   []string // cited SourceIDs in citation order; empty when ungrounded
	SessionID string
	Status    Status
	Degraded  bool // true when retrieval failed and generation ran ungrounded
}

// Config tunes the pipeline.
type Config struct {
	RetrievalK   int
	RetryBackoff time.Duration // wait before the single generation retry
}

// Pipeline wires the stages together. Safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	guard     Screener
	assembler Assembler
	generator Generator
	breaker   *CircuitBreaker
	logger    *slog.Logger

	retrievalK   int
	retryBackoff time.Duration
}

// New creates a Pipeline.
func New(retriever Retriever, guard Screener, assembler Assembler, generator Generator, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Pipeline{
		retriever:    retriever,
		guard:        guard,
		assembler:    assembler,
		generator:    generator,
		breaker:      NewCircuitBreaker(CircuitBreakerConfig{}),
		logger:       logger,
		retrievalK:   cfg.RetrievalK,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Run processes a turn in blocking mode.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	return p.run(ctx, req, nil)
}

// RunStream processes a turn, delivering the response incrementally via cb.
// Refusals and redirects are delivered as a single chunk. The returned
// Result carries the same response a blocking Run would have produced.
func (p *Pipeline) RunStream(ctx context.Context, req Request, cb llm.StreamCallback) (*Result, error) {
	if cb == nil {
		return nil, errors.New("nil stream callback")
	}
	return p.run(ctx, req, cb)
}

// errOutputBlocked aborts a stream when accumulated output trips the
// outbound screen.
var errOutputBlocked = errors.New("output blocked")

func (p *Pipeline) run(ctx context.Context, req Request, cb llm.StreamCallback) (*Result, error) {
	// Inbound screening. Blocked input never reaches retrieval or the model.
	verdict := p.guard.Screen(req.Message, safety.Inbound)
	if !verdict.Allowed {
		return p.refuse(req, verdict.Reason, cb)
	}

	// Retrieval. An unreachable store or failed embedding degrades to
	// ungrounded generation; the coach still answers from the system prompt.
	var passages []knowledge.SearchResult
	degraded := false
	results, err := p.retriever.Retrieve(ctx, verdict.SanitizedText, p.retrievalK)
	switch {
	case err == nil:
		passages = results
	case errors.Is(err, retrieval.ErrUnavailable), errors.Is(err, retrieval.ErrEmbeddingFailed):
		degraded = true
		p.logger.Warn("retrieval degraded, generating ungrounded",
			"session_id", req.SessionID, "error", err)
	default:
		return &Result{SessionID: req.SessionID, Status: StatusFailed},
			fmt.Errorf("retrieval: %w", err)
	}

	// Assembly. A budget failure is user-correctable (message too long).
	asm, err := p.assembler.Assemble(prompt.Input{
		ResumeText:  req.ResumeText,
		Passages:    passages,
		History:     req.History,
		UserMessage: verdict.SanitizedText,
	})
	if err != nil {
		return &Result{SessionID: req.SessionID, Status: StatusFailed},
			fmt.Errorf("assembling prompt: %w", err)
	}

	// Generation, with outbound screening.
	text, blocked, err := p.generate(ctx, asm, req.SessionID, cb)
	if err != nil {
		return &Result{SessionID: req.SessionID, Status: StatusFailed},
			fmt.Errorf("generating response: %w", err)
	}
	if blocked {
		res := &Result{
			Response:  safety.OutputRefusalMessage,
			SessionID: req.SessionID,
			Status:    StatusRefused,
			Degraded:  degraded,
		}
		if cb != nil {
			if cbErr := cb(res.Response); cbErr != nil {
				return res, fmt.Errorf("delivering refusal: %w", cbErr)
			}
		}
		return res, nil
	}

	return &Result{
		Response:  text,
		Sources:   asm.Sources,
		SessionID: req.SessionID,
		Status:    StatusDone,
		Degraded:  degraded,
	}, nil
}

// refuse terminates a turn at inbound screening with the canned response
// for the verdict reason.
func (p *Pipeline) refuse(req Request, reason safety.Reason, cb llm.StreamCallback) (*Result, error) {
	var response string
	switch reason {
	case safety.ReasonHarmfulContent, safety.ReasonPromptInjection:
		response = safety.RefusalMessage
	default:
		response = safety.RedirectMessage(reason)
	}

	p.logger.Info("turn refused at input screening",
		"session_id", req.SessionID, "reason", reason)

	res := &Result{
		Response:  response,
		SessionID: req.SessionID,
		Status:    StatusRefused,
	}
	if cb != nil {
		if err := cb(response); err != nil {
			return res, fmt.Errorf("delivering refusal: %w", err)
		}
	}
	return res, nil
}

// generate calls the model behind the circuit breaker, retrying once after
// backoff on transient errors. In streaming mode each chunk passes the
// outbound screen cumulatively before it is forwarded; a retry only happens
// if no chunk has been delivered yet. Returns blocked=true when the output
// tripped the outbound screen.
func (p *Pipeline) generate(ctx context.Context, asm *prompt.Prompt, sessionID string, cb llm.StreamCallback) (string, bool, error) {
	if err := p.breaker.Allow(); err != nil {
		return "", false, err
	}

	var delivered bool
	attempt := func() (string, bool, error) {
		if cb == nil {
			text, err := p.generator.Generate(ctx, asm)
			if err != nil {
				return "", false, err
			}
			out := p.guard.Screen(text, safety.Outbound)
			return text, !out.Allowed, nil
		}

		var sb strings.Builder
		_, err := p.generator.GenerateStream(ctx, asm, func(chunk string) error {
			sb.WriteString(chunk)
			if out := p.guard.Screen(sb.String(), safety.Outbound); !out.Allowed {
				return errOutputBlocked
			}
			delivered = true
			return cb(chunk)
		})
		if errors.Is(err, errOutputBlocked) {
			return sb.String(), true, nil
		}
		if err != nil {
			return "", false, err
		}
		return sb.String(), false, nil
	}

	text, blocked, err := attempt()
	if err == nil {
		p.breaker.Success()
		return text, blocked, nil
	}

	if !retryable(err) || delivered {
		p.breaker.Failure()
		return "", false, err
	}

	p.logger.Warn("generation failed, retrying once",
		"session_id", sessionID, "backoff", p.retryBackoff, "error", err)

	select {
	case <-time.After(p.retryBackoff):
	case <-ctx.Done():
		p.breaker.Failure()
		return "", false, ctx.Err()
	}

	text, blocked, err = attempt()
	if err != nil {
		p.breaker.Failure()
		return "", false, err
	}
	p.breaker.Success()
	return text, blocked, nil
}

// retryable reports whether a single retry is worthwhile.
func retryable(err error) bool {
	return errors.Is(err, llm.ErrRateLimited) || errors.Is(err, llm.ErrTimeout)
}
