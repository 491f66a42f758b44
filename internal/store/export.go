package store

import (
	"context"

	"github.com/evermemo/evermemo/internal/model"
)

// Export is a full snapshot of a user's memory, suitable for JSON dumps.
type Export struct {
	UserID   string                    `json:"user_id"`
	Units    []*model.MemoryUnit       `json:"units"`
	Clusters []*model.ThematicCluster  `json:"clusters"`
	Profile  *model.UserProfile        `json:"profile"`
}

// ExportUser gathers everything stored for a user.
func (s *SQLiteStore) ExportUser(ctx context.Context, userID string) (*Export, error) {
	units, err := s.ListUnits(ctx, userID)
	if err != nil {
		return nil, err
	}
	clusters, err := s.ListClusters(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.LoadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Export{
		UserID:   userID,
		Units:    units,
		Clusters: clusters,
		Profile:  profile,
	}, nil
}
