// Package rulebook owns the versioned rule set consulted by the LLM: its
// on-disk JSON form, the in-memory snapshot shared with the Judge, and hot
// reload on external edits.
package rulebook

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/decision"
)

// Rule is guidance for the LLM. Pattern is opaque text, never executed.
type Rule struct {
	ID          string              `json:"id"`
	Pattern     string              `json:"pattern"`
	ThreatType  string              `json:"threat_type"`
	Confidence  float64             `json:"confidence"`
	Action      decision.RuleAction `json:"action"`
	CreatedBy   string              `json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
	Description string              `json:"description"`
}

// NewRule stamps a suggestion with an id and provenance.
func NewRule(s decision.RuleSuggestion, createdBy string) Rule {
	return Rule{
		ID:          uuid.NewString(),
		Pattern:     s.Pattern,
		ThreatType:  s.ThreatType,
		Confidence:  s.Confidence,
		Action:      s.Action,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
		Description: s.Description,
	}
}

// Rulebook is a versioned ordered rule set. Version strictly increases on
// every persisted mutation.
type Rulebook struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Rules     []Rule    `json:"rules"`
}

// Empty returns the initial rulebook at version 1.
func Empty() *Rulebook {
	return &Rulebook{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Rules:     []Rule{},
	}
}

// Clone returns a deep copy safe to mutate independently.
func (rb *Rulebook) Clone() *Rulebook {
	rules := make([]Rule, len(rb.Rules))
	copy(rules, rb.Rules)
	return &Rulebook{
		Version:   rb.Version,
		UpdatedAt: rb.UpdatedAt,
		Rules:     rules,
	}
}

// Rule returns the rule with the given id, if present.
func (rb *Rulebook) Rule(id string) (Rule, bool) {
	for _, r := range rb.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// HasPattern reports whether a rule with the same pattern and threat type
// already exists. The learner uses it to deduplicate suggestions.
func (rb *Rulebook) HasPattern(pattern, threatType string) bool {
	for _, r := range rb.Rules {
		if r.Pattern == pattern && r.ThreatType == threatType {
			return true
		}
	}
	return false
}

// Validate enforces the structural invariants readers may assume: version at
// least 1, all required fields present, unique ids, confidence in bounds.
func (rb *Rulebook) Validate() error {
	if rb.Version < 1 {
		return fmt.Errorf("rulebook version %d, must be >= 1", rb.Version)
	}
	if rb.UpdatedAt.IsZero() {
		return fmt.Errorf("rulebook missing updated_at")
	}

	seen := make(map[string]struct{}, len(rb.Rules))
	for i, r := range rb.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d missing id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}

		if r.Pattern == "" {
			return fmt.Errorf("rule %s missing pattern", r.ID)
		}
		if r.ThreatType == "" {
			return fmt.Errorf("rule %s missing threat_type", r.ID)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %s confidence %v out of [0,1]", r.ID, r.Confidence)
		}
		if !r.Action.Valid() {
			return fmt.Errorf("rule %s has unknown action %q", r.ID, r.Action)
		}
		if r.CreatedBy == "" {
			return fmt.Errorf("rule %s missing created_by", r.ID)
		}
		if r.CreatedAt.IsZero() {
			return fmt.Errorf("rule %s missing created_at", r.ID)
		}
	}
	return nil
}
