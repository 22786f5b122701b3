package llm

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/request"
	"github.com/wardenhq/warden/internal/rulebook"
)

const (
	// judgeBodyLimit caps how much of the request body is sent to the model.
	judgeBodyLimit = 500

	// learnerEventLimit caps how many flagged events one learner prompt
	// carries, to keep the context window bounded.
	learnerEventLimit = 50
)

// judgePrompt builds the low-latency classification prompt. Rules are
// summarized one per line so the model can cite them.
func judgePrompt(p *request.Payload, rb *rulebook.Rulebook) string {
	var b strings.Builder

	b.WriteString("WAF security expert: evaluate this request for threats.\n\n")
	b.WriteString("REQUEST:\n")
	fmt.Fprintf(&b, "%s %s\n", p.Method, p.Path)
	fmt.Fprintf(&b, "Query params: %s\n", formatQueryParams(p.QueryParams))
	fmt.Fprintf(&b, "Headers: %s\n", formatHeaders(p.Headers))
	fmt.Fprintf(&b, "Body: %s\n", formatBody(p.Body))

	b.WriteString("\nRULES:\n")
	b.WriteString(formatRuleSummaries(rb))

	b.WriteString("\nAnalyze: injection attacks (SQL/code/command), XSS, path manipulation, auth bypass, API abuse.\n\n")
	b.WriteString("DECIDE:\n")
	b.WriteString("- block (confidence > 0.8): definitive attack\n")
	b.WriteString("- flag (0.5-0.8): suspicious\n")
	b.WriteString("- allow (> 0.8): legitimate\n\n")
	b.WriteString(`Respond with a single JSON object: {"decision": "allow|flag|block", "confidence": 0.0-1.0, "reason": "...", "threat_level": "low|medium|high|critical"}`)

	return b.String()
}

// learnerPrompt builds the batch analysis prompt from flagged events and the
// current rulebook state.
func learnerPrompt(flagged []events.Entry, rb *rulebook.Rulebook) string {
	shown := flagged
	if len(shown) > learnerEventLimit {
		shown = shown[:learnerEventLimit]
	}

	var b strings.Builder

	b.WriteString("WAF rule learning system. Analyze flagged requests and suggest rule improvements.\n\n")
	fmt.Fprintf(&b, "FLAGGED REQUESTS (%d total):\n", len(flagged))
	for _, e := range shown {
		reason := e.Reason
		if reason == "" {
			reason = "none"
		}
		fmt.Fprintf(&b, "- %s %s | Hash: %s | Reason: %s\n", e.Method, e.Path, shortHash(e.PayloadHash), reason)
	}

	fmt.Fprintf(&b, "\nCURRENT RULES (%d total):\n", len(rb.Rules))
	if len(rb.Rules) == 0 {
		b.WriteString("No existing rules.\n")
	}
	for _, r := range rb.Rules {
		fmt.Fprintf(&b, "- ID: %s | Type: %s | Pattern: %s | Action: %s | Confidence: %.2f\n",
			r.ID, r.ThreatType, r.Pattern, r.Action, r.Confidence)
	}

	b.WriteString("\nTasks:\n")
	b.WriteString("1. Find patterns in flagged requests (3+ similar = new rule)\n")
	b.WriteString("2. Suggest new rules for recurring threats\n")
	b.WriteString("3. Weaken rules with consistent low confidence\n")
	b.WriteString("4. Remove unused rules\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Prefer \"flag\" over \"block\" initially\n")
	b.WriteString("- High confidence (>0.8) for OWASP Top 10 patterns\n")
	b.WriteString("- Low confidence (0.5-0.7) for emerging patterns\n\n")
	b.WriteString(`Respond with a single JSON object: {"new_rules": [{"pattern": "...", "threat_type": "...", "description": "...", "confidence": 0.0-1.0, "action": "allow|flag|block"}], "weaken_rule_ids": ["..."], "remove_rule_ids": ["..."], "rationales": ["..."]}`)

	return b.String()
}

func formatRuleSummaries(rb *rulebook.Rulebook) string {
	if len(rb.Rules) == 0 {
		return "No existing rules yet.\n"
	}
	var b strings.Builder
	for _, r := range rb.Rules {
		fmt.Fprintf(&b, "- %s (%s): %s [action: %s]\n", r.ThreatType, r.ID, r.Pattern, r.Action)
	}
	return b.String()
}

func formatQueryParams(params []request.QueryParam) string {
	if len(params) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(params))
	for _, qp := range params {
		parts = append(parts, fmt.Sprintf("%s=%s", qp.Name, qp.Value))
	}
	return strings.Join(parts, " ")
}

func formatHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(headers))
	for name, value := range headers {
		parts = append(parts, fmt.Sprintf("%s: %s", name, value))
	}
	return strings.Join(parts, " | ")
}

func formatBody(body string) string {
	if body == "" {
		return "none"
	}
	return truncate(body, judgeBodyLimit)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
