// Package model defines the core memory data types.
package model

import (
	"strings"
	"time"
)

// Foresight is a forward-looking statement with a temporal validity window.
// TEnd == nil means indefinitely valid.
type Foresight struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	TStart       time.Time  `json:"t_start"`
	TEnd         *time.Time `json:"t_end,omitempty"`
	Confidence   float64    `json:"confidence"`
	SourceUnitID string     `json:"source_unit_id,omitempty"`
}

// IsValidAt reports whether the foresight is valid at the reference time.
// Both bounds are inclusive: t == TStart and t == TEnd are valid.
func (f Foresight) IsValidAt(t time.Time) bool {
	if t.Before(f.TStart) {
		return false
	}
	if f.TEnd != nil && t.After(*f.TEnd) {
		return false
	}
	return true
}

// MemoryUnit is the atomic structured record derived from one topical
// conversation segment. Immutable once created, except ClusterID which is
// set exactly once by the clustering engine.
type MemoryUnit struct {
	ID             string      `json:"id"`
	Narrative      string      `json:"narrative"`
	AtomicFacts    []string    `json:"atomic_facts,omitempty"`
	Foresights     []Foresight `json:"foresights,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	TurnStart      int         `json:"turn_start,omitempty"`
	TurnEnd        int         `json:"turn_end,omitempty"`
	Participants   []string    `json:"participants,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ClusterID      string      `json:"cluster_id,omitempty"`
	Embedding      []float32   `json:"embedding,omitempty"`
}

// SearchableText combines narrative, facts, and foresight contents into the
// text used for embedding and lexical indexing.
func (u *MemoryUnit) SearchableText() string {
	parts := make([]string, 0, 1+len(u.AtomicFacts)+len(u.Foresights))
	parts = append(parts, u.Narrative)
	parts = append(parts, u.AtomicFacts...)
	for _, f := range u.Foresights {
		parts = append(parts, f.Content)
	}
	return strings.Join(parts, " ")
}

// ThematicCluster groups memory units sharing a semantic theme. The centroid
// is the running mean of member embeddings, updated incrementally; clusters
// only grow, they are never merged or split.
type ThematicCluster struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Theme     string    `json:"theme"`
	Summary   string    `json:"summary"`
	MemberIDs []string  `json:"member_ids"`
	Centroid  []float32 `json:"centroid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DialogueTurn is a single turn in a conversation.
type DialogueTurn struct {
	TurnID    int       `json:"turn_id"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RetrievalResult is a memory unit with its retrieval scores and the
// foresights that were valid at query time.
type RetrievalResult struct {
	Unit            *MemoryUnit `json:"unit"`
	DenseRank       int         `json:"dense_rank,omitempty"`
	SparseRank      int         `json:"sparse_rank,omitempty"`
	RRFScore        float64     `json:"rrf_score"`
	ValidForesights []Foresight `json:"valid_foresights,omitempty"`
}
