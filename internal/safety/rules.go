package safety

import "regexp"

// Reason classifies why a screening verdict blocked or redirected content.
type Reason string

const (
	ReasonHarmfulContent  Reason = "harmful_content"
	ReasonPromptInjection Reason = "prompt_injection"
	ReasonOffTopicLegal   Reason = "off_topic_legal"
	ReasonOffTopicFinance Reason = "off_topic_financial"
	ReasonOffTopicMedical Reason = "off_topic_medical"
	ReasonOffTopicGeneral Reason = "off_topic_general"
)

// RefusalMessage is returned verbatim when input is blocked outright.
const RefusalMessage = "I apologize, but I can't process that request. Let me know if you have questions about resumes, interviews, job search, or career growth!"

// OutputRefusalMessage replaces a generated response that failed outbound
// screening.
const OutputRefusalMessage = "I apologize, but I wasn't able to produce a helpful answer to that. Let me know if you have questions about resumes, interviews, job search, or career growth!"

// redirectMessages are the category-specific responses for off-topic input.
// These steer the user back to career topics instead of refusing cold.
var redirectMessages = map[Reason]string{
	ReasonOffTopicLegal:   "I appreciate you asking, but legal and immigration questions are outside my expertise. I'd recommend consulting with an immigration attorney. However, I'd love to help you with your resume, interview prep, or job search strategy!",
	ReasonOffTopicFinance: "That's an important question, but financial investment advice is outside my scope. A financial advisor would be the best resource for that. Would you like help with career-related topics like resume building or interview preparation instead?",
	ReasonOffTopicMedical: "I understand that's important to you, but I'm not qualified to give medical or mental health advice. Please reach out to a healthcare professional. Is there anything career-related I can help you with?",
	ReasonOffTopicGeneral: "I appreciate you asking! That's outside my expertise as a career coach. I focus on resumes, interviews, job search, and career growth. Would you like help with any of those instead?",
}

// RedirectMessage returns the canned response for an off-topic reason,
// falling back to the general redirect for unknown reasons.
func RedirectMessage(reason Reason) string {
	if msg, ok := redirectMessages[reason]; ok {
		return msg
	}
	return redirectMessages[ReasonOffTopicGeneral]
}

// harmfulPatterns match content the coach must never engage with, in either
// direction. The XSS patterns guard against reflected markup reaching web
// clients.
var harmfulPatterns = compileAll([]string{
	`(?i)\b(kill|murder|suicide|self.?harm|hate|racist|sexist)\b`,
	`(?i)\b(bomb|explosive|weapon|firearm)\b`,
	`(?i)\b(hack|exploit|steal|fraud|scam)\b`,
	`(?i)<script|javascript:|data:text/html`,
})

// injectionPatterns match attempts to override the system prompt or escape
// the coaching persona.
var injectionPatterns = compileAll([]string{
	`(?i)ignore\s+(all\s+)?(previous|above|prior|all)\s+(instructions?|prompts?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
	`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`,
	`(?i)you\s+are\s+now\s+[a-z]+`,
	`(?i)pretend\s+(to\s+be|you'?re)`,
	`(?i)jailbreak`,
	`(?i)system\s*prompt`,
	`(?i)</?(system|instruction|prompt)>`,
	`(?i)bypass\s+(safety|filter|restrictions?)`,
})

// topicRule maps an off-topic pattern to its redirect category. Rules are
// checked in order; the first match wins.
type topicRule struct {
	pattern *regexp.Regexp
	reason  Reason
}

var topicRules = []topicRule{
	{regexp.MustCompile(`(?i)\b(visa|immigration|green\s*card|h1b|h-1b|work\s*permit|citizenship|asylum)\b`), ReasonOffTopicLegal},
	{regexp.MustCompile(`(?i)\b(invest|stock|crypto|bitcoin|trading|forex|mutual\s*fund|retirement\s*fund|401k)\b`), ReasonOffTopicFinance},
	{regexp.MustCompile(`(?i)\b(diagnos|symptom|medication|prescription|treatment\s+for|mental\s*health\s*disorder)\b`), ReasonOffTopicMedical},
}

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}
