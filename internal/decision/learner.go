package decision

import "fmt"

// RuleAction is what a rule recommends when its pattern matches.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionFlag  RuleAction = "flag"
	ActionBlock RuleAction = "block"
)

func (a RuleAction) Valid() bool {
	return a == ActionAllow || a == ActionFlag || a == ActionBlock
}

// RuleSuggestion is a rule proposed by the learner backend before it is
// stamped with an id and provenance.
type RuleSuggestion struct {
	Pattern     string     `json:"pattern"`
	ThreatType  string     `json:"threat_type"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	Action      RuleAction `json:"action"`
}

func (s RuleSuggestion) Validate() error {
	if s.Pattern == "" {
		return fmt.Errorf("rule suggestion missing pattern")
	}
	if s.ThreatType == "" {
		return fmt.Errorf("rule suggestion missing threat_type")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("rule suggestion confidence %v out of [0,1]", s.Confidence)
	}
	if !s.Action.Valid() {
		return fmt.Errorf("rule suggestion has unknown action %q", s.Action)
	}
	return nil
}

// LearnerOutput is the structured mutation set produced by one learner pass.
type LearnerOutput struct {
	NewRules      []RuleSuggestion `json:"new_rules"`
	WeakenRuleIDs []string         `json:"weaken_rule_ids"`
	RemoveRuleIDs []string         `json:"remove_rule_ids"`
	Rationales    []string         `json:"rationales,omitempty"`
}

func (o LearnerOutput) Validate() error {
	for i, s := range o.NewRules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("new_rules[%d]: %w", i, err)
		}
	}
	return nil
}

// Empty reports whether the output mutates nothing.
func (o LearnerOutput) Empty() bool {
	return len(o.NewRules) == 0 && len(o.WeakenRuleIDs) == 0 && len(o.RemoveRuleIDs) == 0
}
