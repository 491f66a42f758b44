// Package consolidate turns freshly extracted memory units into organized
// long-term memory: thematic clustering over unit embeddings and evolution of
// the per-user profile with conflict auditing.
package consolidate

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/embedding"
	"github.com/evermemo/evermemo/internal/llm"
	"github.com/evermemo/evermemo/internal/model"
)

// Clusterer assigns memory units to thematic clusters by centroid similarity.
type Clusterer struct {
	client    llm.Client
	threshold float64
	logger    *zap.Logger
}

// NewClusterer builds a clusterer. client may be nil, in which case themes
// and summaries fall back to text derived from the units themselves.
func NewClusterer(client llm.Client, threshold float64, logger *zap.Logger) *Clusterer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clusterer{client: client, threshold: threshold, logger: logger}
}

// Assign places the unit into the most similar existing cluster when that
// similarity reaches the threshold, updating the cluster's running mean
// centroid, or opens a new cluster seeded with the unit's embedding.
//
// clusters must be ordered by creation time: the scan keeps the first cluster
// on a similarity tie, so assignment is deterministic. Returns the chosen
// cluster and whether it was newly created.
func (c *Clusterer) Assign(ctx context.Context, u *model.MemoryUnit, clusters []*model.ThematicCluster, userID, newClusterID string, now time.Time) (*model.ThematicCluster, bool, error) {
	var best *model.ThematicCluster
	bestScore := -1.0
	for _, cl := range clusters {
		score := embedding.CosineSimilarity(u.Embedding, cl.Centroid)
		if score > bestScore {
			best = cl
			bestScore = score
		}
	}

	if best != nil && bestScore >= c.threshold {
		best.MemberIDs = append(best.MemberIDs, u.ID)
		updateCentroid(best.Centroid, u.Embedding, len(best.MemberIDs))
		best.UpdatedAt = now
		if err := c.describe(ctx, best, u); err != nil {
			return nil, false, err
		}
		c.logger.Debug("unit assimilated",
			zap.String("unit", u.ID),
			zap.String("cluster", best.ID),
			zap.Float64("similarity", bestScore))
		return best, false, nil
	}

	cl := &model.ThematicCluster{
		ID:        newClusterID,
		UserID:    userID,
		MemberIDs: []string{u.ID},
		Centroid:  append([]float32(nil), u.Embedding...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.describe(ctx, cl, u); err != nil {
		return nil, false, err
	}
	c.logger.Debug("cluster created",
		zap.String("unit", u.ID),
		zap.String("cluster", cl.ID),
		zap.Float64("best_similarity", bestScore))
	return cl, true, nil
}

// updateCentroid folds one new member embedding into the running mean:
// centroid += (emb - centroid) / n, where n is the membership count after
// the addition.
func updateCentroid(centroid, emb []float32, n int) {
	for i := range centroid {
		if i >= len(emb) {
			break
		}
		centroid[i] += (emb[i] - centroid[i]) / float32(n)
	}
}

const describeSystem = `You maintain thematic labels over a user's long-term conversational memory.
Given a cluster's current label and a newly added memory, produce an updated
theme (a short noun phrase) and a one-paragraph summary covering all members.
Respond with JSON: {"theme": "...", "summary": "..."}`

type clusterDescription struct {
	Theme   string `json:"theme"`
	Summary string `json:"summary"`
}

func (c *Clusterer) describe(ctx context.Context, cl *model.ThematicCluster, u *model.MemoryUnit) error {
	if c.client == nil {
		describeFallback(cl, u)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Current theme: " + cl.Theme + "\n")
	sb.WriteString("Current summary: " + cl.Summary + "\n")
	sb.WriteString("New memory: " + u.Narrative + "\n")
	if len(u.AtomicFacts) > 0 {
		sb.WriteString("Facts: " + strings.Join(u.AtomicFacts, "; ") + "\n")
	}

	var desc clusterDescription
	if err := c.client.GenerateJSON(ctx, describeSystem, sb.String(), &desc); err != nil {
		c.logger.Warn("cluster description failed, using fallback", zap.Error(err))
		describeFallback(cl, u)
		return nil
	}
	if desc.Theme != "" {
		cl.Theme = desc.Theme
	}
	if desc.Summary != "" {
		cl.Summary = desc.Summary
	}
	if cl.Theme == "" || cl.Summary == "" {
		describeFallback(cl, u)
	}
	return nil
}

func describeFallback(cl *model.ThematicCluster, u *model.MemoryUnit) {
	if cl.Theme == "" {
		if len(u.Tags) > 0 {
			cl.Theme = u.Tags[0]
		} else {
			words := strings.Fields(u.Narrative)
			if len(words) > 6 {
				words = words[:6]
			}
			cl.Theme = strings.Join(words, " ")
		}
	}
	if cl.Summary == "" {
		cl.Summary = u.Narrative
	} else if !strings.Contains(cl.Summary, u.Narrative) {
		cl.Summary = cl.Summary + " " + u.Narrative
	}
}
