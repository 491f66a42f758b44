package recall

import (
	"sort"

	"github.com/evermemo/evermemo/internal/model"
)

// SelectClusterIDs picks the thematic clusters most implicated by the fused
// results: each cluster scores the maximum RRF score among its member units
// in the results, and the top limit cluster ids are returned, best first.
func SelectClusterIDs(results []model.RetrievalResult, limit int) []string {
	scores := make(map[string]float64)
	for _, r := range results {
		id := r.Unit.ClusterID
		if id == "" {
			continue
		}
		if r.RRFScore > scores[id] {
			scores[id] = r.RRFScore
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
