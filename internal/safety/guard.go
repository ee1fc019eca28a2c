// Package safety screens chat content in both directions. Inbound screening
// catches harmful content, prompt injection, and off-topic requests before
// they reach retrieval or generation; outbound screening catches harmful
// model output before it reaches the client.
//
// No pattern filter is perfect. This is a first line of defense; the system
// prompt constrains the model as a second layer.
package safety

import (
	"log/slog"
	"regexp"
)

// Direction selects which rule set applies to a screening pass.
type Direction int

const (
	// Inbound screens user input: harmful content, injection, topic bounds.
	Inbound Direction = iota
	// Outbound screens model output: harmful content only. Topic steering
	// is the model's job once the input passed.
	Outbound
)

// Verdict is the result of screening one piece of text.
type Verdict struct {
	Allowed       bool
	Reason        Reason // set when not allowed
	SanitizedText string // input with markup stripped and whitespace normalized
}

// Guard applies the screening rules. Safe for concurrent use; all rule
// state is immutable after construction.
type Guard struct {
	logger *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Screen sanitizes text and checks it against the rule set for the given
// direction. Patterns run against both the raw and sanitized forms: raw
// catches markup-based attacks that sanitization removes (script tags),
// sanitized catches content hidden behind markup or zero-width characters.
func (g *Guard) Screen(text string, dir Direction) Verdict {
	sanitized := Sanitize(text)

	if matchAny(harmfulPatterns, text, sanitized) {
		g.logger.Warn("content blocked", "direction", dirString(dir), "reason", ReasonHarmfulContent)
		return Verdict{Allowed: false, Reason: ReasonHarmfulContent, SanitizedText: sanitized}
	}

	if dir == Outbound {
		return Verdict{Allowed: true, SanitizedText: sanitized}
	}

	if matchAny(injectionPatterns, text, sanitized) {
		g.logger.Warn("content blocked", "direction", "inbound", "reason", ReasonPromptInjection)
		return Verdict{Allowed: false, Reason: ReasonPromptInjection, SanitizedText: sanitized}
	}

	for _, rule := range topicRules {
		if rule.pattern.MatchString(sanitized) {
			g.logger.Info("off-topic input redirected", "reason", rule.reason)
			return Verdict{Allowed: false, Reason: rule.reason, SanitizedText: sanitized}
		}
	}

	return Verdict{Allowed: true, SanitizedText: sanitized}
}

func matchAny(patterns []*regexp.Regexp, texts ...string) bool {
	for _, re := range patterns {
		for _, text := range texts {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

func dirString(dir Direction) string {
	if dir == Outbound {
		return "outbound"
	}
	return "inbound"
}
