// Package prompt assembles the grounded prompt sent to the model: retrieved
// passages, optional resume context, a bounded conversation window, and the
// current question, all under a character budget.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/innofolio/innofolio/internal/knowledge"
)

// ErrBudgetExceeded indicates the prompt cannot fit the budget even after
// dropping all optional content. The user message itself is too large.
var ErrBudgetExceeded = errors.New("prompt budget exceeded")

// Turn roles, matching the chat API wire format.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string
	Content string
}

// Input carries everything the assembler combines into a prompt.
type Input struct {
	ResumeText  string
	Passages    []knowledge.SearchResult // descending relevance
	History     []Turn
	UserMessage string
}

// Prompt is an assembled, budget-compliant prompt ready for generation.
type Prompt struct {
	System  string
	Body    string
	Sources []string // cited SourceIDs, in citation order
}

// Assembler builds prompts deterministically: the same input always yields
// the same prompt. Safe for concurrent use.
type Assembler struct {
	system        string
	budget        int
	historyWindow int
	logger        *slog.Logger
}

// NewAssembler creates an Assembler. budget is the maximum combined character
// length of the system prompt and body; historyWindow is the maximum number
// of prior turns included.
func NewAssembler(budget, historyWindow int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		system:        SystemPrompt,
		budget:        budget,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// Assemble builds the prompt. When the budget is tight, optional content is
// dropped in fixed order: oldest history turns first, then lowest-relevance
// passages, then the resume. If the system prompt and current question alone
// exceed the budget, ErrBudgetExceeded is returned.
func (a *Assembler) Assemble(in Input) (*Prompt, error) {
	history := in.History
	if len(history) > a.historyWindow {
		history = history[len(history)-a.historyWindow:]
	}
	passages := in.Passages
	resume := in.ResumeText

	for {
		body := renderBody(passages, resume, history, in.UserMessage)
		if len(a.system)+len(body) <= a.budget {
			a.logger.Debug("prompt assembled",
				"body_length", len(body),
				"passages", len(passages),
				"history_turns", len(history))
			return &Prompt{
				System:  a.system,
				Body:    body,
				Sources: sourceIDs(passages),
			}, nil
		}

		switch {
		case len(history) > 0:
			history = history[1:]
		case len(passages) > 0:
			passages = passages[:len(passages)-1]
		case resume != "":
			resume = ""
		default:
			return nil, fmt.Errorf("%w: question of %d chars cannot fit budget %d",
				ErrBudgetExceeded, len(in.UserMessage), a.budget)
		}
	}
}

// renderBody lays out the prompt sections. Section headers and the closing
// instruction follow a fixed format the model is tuned against; changing
// them changes response quality.
func renderBody(passages []knowledge.SearchResult, resume string, history []Turn, userMessage string) string {
	var parts []string

	// The resume precedes retrieved passages: it is the user's own context
	// and grounds how the passages should be applied.
	if resume != "" {
		parts = append(parts, "\n## User's Resume\n"+resume)
	}

	if len(passages) > 0 {
		var ctx strings.Builder
		ctx.WriteString("\n## Relevant Information\n")
		for i, p := range passages {
			fmt.Fprintf(&ctx, "[Source %d]: %s\n", i+1, p.Passage.Content)
		}
		ctx.WriteString("\nUse the above information to provide accurate, helpful advice. If the information doesn't fully answer the question, supplement with your general knowledge about career topics.")
		parts = append(parts, ctx.String())
	}

	if len(history) > 0 {
		parts = append(parts, "\n## Previous Conversation")
		for _, turn := range history {
			role := "User"
			if turn.Role == RoleAssistant {
				role = "InnoFolio"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", role, turn.Content))
		}
	}

	parts = append(parts, fmt.Sprintf("\n## Current Question\nUser: %s", userMessage))
	parts = append(parts, "\nPlease provide a helpful, actionable response:")

	return strings.TrimPrefix(strings.Join(parts, "\n"), "\n")
}

func sourceIDs(passages []knowledge.SearchResult) []string {
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.Passage.SourceID)
	}
	return ids
}
