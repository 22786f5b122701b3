// Package events is the append-only audit log shared by the Judge (writer)
// and the Learner (reader).
package events

import (
	"context"

	"github.com/wardenhq/warden/internal/decision"
)

// Entry is one immutable audit record. Timestamp is Unix seconds.
type Entry struct {
	ID          int64         `json:"id"`
	Timestamp   int64         `json:"timestamp"`
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	PayloadHash string        `json:"payload_hash"`
	Decision    decision.Type `json:"decision"`
	Confidence  float64       `json:"confidence"`
	Reason      string        `json:"reason,omitempty"`
	IPAddr      string        `json:"ip_addr,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
}

// Store is the event log contract. Appends are serialized by the store;
// queries return entries in ascending time order.
type Store interface {
	Append(ctx context.Context, e Entry) (int64, error)
	FlaggedSince(ctx context.Context, since int64) ([]Entry, error)
	BlockedSince(ctx context.Context, since int64) ([]Entry, error)
	CountSince(ctx context.Context, d decision.Type, since int64) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]Entry, error)
	CountByDecision(ctx context.Context, since int64) (map[decision.Type]int64, error)
	Close() error
}
