package agent

import (
	"regexp"
	"strings"
)

// Escalation triggers. When a request's parameters touch one of these topics
// the agent abstains and returns routing advice instead of generated content.

type escalationRule struct {
	topic   string
	pattern *regexp.Regexp
	advice  string
}

var escalationRules = []escalationRule{
	{
		topic:   "pricing",
		pattern: regexp.MustCompile(`(?i)\b(pricing|discount|quote|cost|price|licensing fee)\b`),
		advice:  "Pricing and discounting questions must be routed to the account executive and deal desk.",
	},
	{
		topic:   "legal",
		pattern: regexp.MustCompile(`(?i)\b(legal|contract|liability|indemnif\w*|terms of service|compliance review)\b`),
		advice:  "Legal and contractual topics require review by the legal team before any customer response.",
	},
	{
		topic:   "executive",
		pattern: regexp.MustCompile(`(?i)\b(ceo|cfo|cto|executive|board|c-suite)\b`),
		advice:  "Executive-level engagement should be coordinated through sales leadership.",
	},
	{
		topic:   "roadmap",
		pattern: regexp.MustCompile(`(?i)\b(roadmap|future release|upcoming feature|product commitment)\b`),
		advice:  "Roadmap and product-commitment questions must go through product management.",
	},
	{
		topic:   "competitive",
		pattern: regexp.MustCompile(`(?i)\b(competitor|competitive displacement|rip and replace)\b`),
		advice:  "Competitive displacement strategy should involve the competitive intelligence team.",
	},
}

// CheckEscalation scans the request parameters for topics the agent must not
// handle on its own. It returns the matched topic and routing advice, or
// ok=false when the request is safe to process.
func CheckEscalation(params map[string]string) (topic, advice string, ok bool) {
	var b strings.Builder
	for _, v := range params {
		b.WriteString(v)
		b.WriteString("\n")
	}
	text := b.String()
	for _, r := range escalationRules {
		if r.pattern.MatchString(text) {
			return r.topic, r.advice, true
		}
	}
	return "", "", false
}

// EscalationResponse formats the abstention message returned to the caller.
func EscalationResponse(topic, advice string) string {
	return "This request involves a " + topic + " topic that requires human review.\n\n" +
		"Recommended routing: " + advice + "\n\n" +
		"No automated response has been generated."
}
