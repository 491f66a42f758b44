package model

import "time"

// ResolutionRecency is the only resolution strategy: the temporally later
// fact supersedes the earlier one.
const ResolutionRecency = "recency"

// ProfileAttribute is the current value of one named user attribute.
type ProfileAttribute struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
	SourceUnitID string    `json:"source_unit_id,omitempty"`
	Confidence   float64   `json:"confidence"`
}

// ImplicitTrait is an inferred preference, habit, or personality trait.
type ImplicitTrait struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Evidence    []string  `json:"evidence,omitempty"`
	Strength    float64   `json:"strength"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConflictRecord documents one detected contradiction between a stored and a
// newly extracted attribute value. Records are append-only and never mutated.
type ConflictRecord struct {
	ID           string    `json:"id"`
	Attribute    string    `json:"attribute"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	OldTimestamp time.Time `json:"old_timestamp"`
	NewTimestamp time.Time `json:"new_timestamp"`
	OldSource    string    `json:"old_source,omitempty"`
	NewSource    string    `json:"new_source,omitempty"`
	Resolution   string    `json:"resolution"`
	DetectedAt   time.Time `json:"detected_at"`
}

// UserProfile is the per-user evolving aggregate: one live value per
// attribute name, inferred traits, and the permanent conflict audit trail.
type UserProfile struct {
	UserID         string                      `json:"user_id"`
	Attributes     map[string]ProfileAttribute `json:"attributes"`
	Traits         []ImplicitTrait             `json:"traits,omitempty"`
	Conflicts      []ConflictRecord            `json:"conflicts,omitempty"`
	SourceClusters []string                    `json:"source_clusters,omitempty"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// NewUserProfile creates an empty profile for a user.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:     userID,
		Attributes: make(map[string]ProfileAttribute),
	}
}
