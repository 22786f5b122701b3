// Package decision defines the verdict taxonomy shared by the Judge, the
// verdict cache and the audit log.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Type string

const (
	TypeAllow Type = "allow"
	TypeFlag  Type = "flag"
	TypeBlock Type = "block"
)

func (t Type) Valid() bool {
	return t == TypeAllow || t == TypeFlag || t == TypeBlock
}

// ThreatLevel is ordered from least to most severe.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

var threatRank = map[ThreatLevel]int{
	ThreatLow:      0,
	ThreatMedium:   1,
	ThreatHigh:     2,
	ThreatCritical: 3,
}

// ParseThreatLevel is case-insensitive; backends are inconsistent about
// capitalization.
func ParseThreatLevel(s string) (ThreatLevel, bool) {
	level := ThreatLevel(strings.ToLower(s))
	_, ok := threatRank[level]
	return level, ok
}

// AtLeast reports whether t is as severe as other.
func (t ThreatLevel) AtLeast(other ThreatLevel) bool {
	return threatRank[t] >= threatRank[other]
}

// Decision is the Judge's verdict. Flag and Block carry a reason and a
// threat level; Allow carries only confidence.
type Decision struct {
	Verdict    Type        `json:"decision"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason,omitempty"`
	Threat     ThreatLevel `json:"threat,omitempty"`
}

func Allow(confidence float64) Decision {
	return Decision{Verdict: TypeAllow, Confidence: confidence}
}

func Flag(confidence float64, reason string, threat ThreatLevel) Decision {
	return Decision{Verdict: TypeFlag, Confidence: confidence, Reason: reason, Threat: threat}
}

func Block(confidence float64, reason string, threat ThreatLevel) Decision {
	return Decision{Verdict: TypeBlock, Confidence: confidence, Reason: reason, Threat: threat}
}

// FailOpen is the verdict returned when evaluation itself failed.
func FailOpen() Decision {
	return Allow(0.0)
}

func (d Decision) IsBlock() bool { return d.Verdict == TypeBlock }
func (d Decision) IsFlag() bool  { return d.Verdict == TypeFlag }
func (d Decision) IsAllow() bool { return d.Verdict == TypeAllow }

// Validate enforces the decision bounds: confidence in [0,1] and a non-empty
// reason on flag and block verdicts.
func (d Decision) Validate() error {
	if !d.Verdict.Valid() {
		return fmt.Errorf("unknown decision type %q", d.Verdict)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", d.Confidence)
	}
	if d.Verdict != TypeAllow && d.Reason == "" {
		return fmt.Errorf("%s decision requires a reason", d.Verdict)
	}
	return nil
}

// Marshal produces the stable structural form stored in the verdict cache.
func (d Decision) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal parses a cached verdict and rejects structurally invalid ones.
func Unmarshal(data []byte) (Decision, error) {
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return Decision{}, fmt.Errorf("decode verdict: %w", err)
	}
	d.Threat = ThreatLevel(strings.ToLower(string(d.Threat)))
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}
