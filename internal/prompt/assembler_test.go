package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/innofolio/innofolio/internal/knowledge"
)

func passage(id, sourceID, content string, score float64) knowledge.SearchResult {
	return knowledge.SearchResult{
		Passage: knowledge.Passage{ID: id, SourceID: sourceID, Content: content},
		Score:   score,
	}
}

func TestAssemble_AllSections(t *testing.T) {
	t.Parallel()

	a := NewAssembler(12000, 6, nil)

	p, err := a.Assemble(Input{
		ResumeText: "Jane Doe. Software engineer, 3 years at Acme.",
		Passages: []knowledge.SearchResult{
			passage("p1", "Resume Formatting Guide", "Keep it to one page.", 0.92),
			passage("p2", "Writing Resume Bullets", "Start with action verbs.", 0.85),
		},
		History: []Turn{
			{Role: RoleUser, Content: "Hi, I need resume help."},
			{Role: RoleAssistant, Content: "Happy to help! What role are you targeting?"},
		},
		UserMessage: "How long should my resume be?",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if p.System != SystemPrompt {
		t.Error("system prompt not set")
	}

	for _, want := range []string{
		"## Relevant Information",
		"[Source 1]: Keep it to one page.",
		"[Source 2]: Start with action verbs.",
		"## User's Resume",
		"Jane Doe.",
		"## Previous Conversation",
		"User: Hi, I need resume help.",
		"InnoFolio: Happy to help! What role are you targeting?",
		"## Current Question\nUser: How long should my resume be?",
		"Please provide a helpful, actionable response:",
	} {
		if !strings.Contains(p.Body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	resumeAt := strings.Index(p.Body, "## User's Resume")
	passagesAt := strings.Index(p.Body, "## Relevant Information")
	if resumeAt < 0 || passagesAt < 0 || resumeAt > passagesAt {
		t.Errorf("resume section must precede retrieved passages (resume at %d, passages at %d)", resumeAt, passagesAt)
	}

	wantSources := []string{"Resume Formatting Guide", "Writing Resume Bullets"}
	if len(p.Sources) != len(wantSources) {
		t.Fatalf("sources = %v, want %v", p.Sources, wantSources)
	}
	for i, want := range wantSources {
		if p.Sources[i] != want {
			t.Errorf("source[%d] = %q, want %q", i, p.Sources[i], want)
		}
	}
}

func TestAssemble_NoPassagesNoHistory(t *testing.T) {
	t.Parallel()

	a := NewAssembler(12000, 6, nil)

	p, err := a.Assemble(Input{UserMessage: "What is a cover letter?"})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if strings.Contains(p.Body, "## Relevant Information") {
		t.Error("empty passages should omit the context section")
	}
	if strings.Contains(p.Body, "## Previous Conversation") {
		t.Error("empty history should omit the conversation section")
	}
	if !strings.Contains(p.Body, "## Current Question\nUser: What is a cover letter?") {
		t.Error("current question section missing")
	}
	if len(p.Sources) != 0 {
		t.Errorf("sources = %v, want empty", p.Sources)
	}
}

func TestAssemble_HistoryWindow(t *testing.T) {
	t.Parallel()

	a := NewAssembler(100000, 6, nil)

	// 50-turn conversation: only the most recent 6 turns survive.
	history := make([]Turn, 0, 50)
	for i := range 50 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: fmt.Sprintf("turn number %d", i)})
	}

	p, err := a.Assemble(Input{History: history, UserMessage: "question"})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if strings.Contains(p.Body, "turn number 43") {
		t.Error("turn outside the window should be dropped")
	}
	for i := 44; i < 50; i++ {
		if !strings.Contains(p.Body, fmt.Sprintf("turn number %d", i)) {
			t.Errorf("turn %d inside the window missing", i)
		}
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()

	a := NewAssembler(12000, 6, nil)
	in := Input{
		Passages: []knowledge.SearchResult{
			passage("p1", "Job Search Strategy", "Apply early.", 0.9),
		},
		History:     []Turn{{Role: RoleUser, Content: "hello"}},
		UserMessage: "how do I find jobs?",
	}

	first, err := a.Assemble(in)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	for range 5 {
		p, err := a.Assemble(in)
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}
		if p.Body != first.Body {
			t.Fatal("repeated assembly produced different bodies")
		}
	}
}

func TestAssemble_TruncationOrder(t *testing.T) {
	t.Parallel()

	passages := []knowledge.SearchResult{
		passage("p1", "Source A", strings.Repeat("a", 200), 0.9),
		passage("p2", "Source B", strings.Repeat("b", 200), 0.8),
	}
	history := []Turn{
		{Role: RoleUser, Content: "oldest " + strings.Repeat("x", 200)},
		{Role: RoleAssistant, Content: "newest " + strings.Repeat("y", 200)},
	}

	// Generous budget: everything fits.
	full, err := NewAssembler(len(SystemPrompt)+2000, 6, nil).Assemble(Input{
		Passages: passages, History: history, UserMessage: "q",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !strings.Contains(full.Body, "oldest") || len(full.Sources) != 2 {
		t.Fatal("expected full prompt under generous budget")
	}

	// Tighter: the oldest history turn goes first.
	trimmed, err := NewAssembler(len(SystemPrompt)+1000, 6, nil).Assemble(Input{
		Passages: passages, History: history, UserMessage: "q",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if strings.Contains(trimmed.Body, "oldest") {
		t.Error("oldest history turn should be dropped before passages")
	}

	// Tighter still: passages drop lowest relevance first.
	trimmed, err = NewAssembler(len(SystemPrompt)+350, 6, nil).Assemble(Input{
		Passages: passages, History: history, UserMessage: "q",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(trimmed.Sources) >= 2 {
		t.Errorf("expected lowest-relevance passage dropped, sources = %v", trimmed.Sources)
	}
	if len(trimmed.Sources) == 1 && trimmed.Sources[0] != "Source A" {
		t.Errorf("kept source = %q, want highest-relevance Source A", trimmed.Sources[0])
	}
}

func TestAssemble_BudgetExceeded(t *testing.T) {
	t.Parallel()

	a := NewAssembler(len(SystemPrompt)+50, 6, nil)

	_, err := a.Assemble(Input{UserMessage: strings.Repeat("q", 500)})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("error = %v, want ErrBudgetExceeded", err)
	}
}

func TestAssemble_BudgetRespected(t *testing.T) {
	t.Parallel()

	budget := len(SystemPrompt) + 600
	a := NewAssembler(budget, 6, nil)

	p, err := a.Assemble(Input{
		ResumeText: strings.Repeat("r", 400),
		Passages: []knowledge.SearchResult{
			passage("p1", "Source A", strings.Repeat("a", 300), 0.9),
		},
		History:     []Turn{{Role: RoleUser, Content: strings.Repeat("h", 300)}},
		UserMessage: "short question",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if got := len(p.System) + len(p.Body); got > budget {
		t.Errorf("assembled length %d exceeds budget %d", got, budget)
	}
}
