// Package recall implements reconstructive retrieval: hybrid dense and
// lexical search fused with reciprocal ranks, temporal filtering of
// foresights, and a bounded sufficiency-and-refinement loop.
package recall

import "sort"

// Fused is one id after reciprocal rank fusion. Ranks are 1-based; 0 means
// the id was absent from that list.
type Fused struct {
	ID         string
	DenseRank  int
	SparseRank int
	Score      float64
}

// absentRank keeps a missing list from dominating rank-sum tie-breaks.
const absentRank = 1 << 20

// FuseRanks merges a dense and a sparse ranking with reciprocal rank fusion:
// each list contributes 1/(k+rank) for the ids it contains and nothing for
// the ids it lacks. Ties break by smaller rank sum, then by id, so the fused
// order is deterministic.
func FuseRanks(dense, sparse []string, k int) []Fused {
	byID := make(map[string]*Fused)
	for i, id := range dense {
		byID[id] = &Fused{ID: id, DenseRank: i + 1}
	}
	for i, id := range sparse {
		f, ok := byID[id]
		if !ok {
			f = &Fused{ID: id}
			byID[id] = f
		}
		f.SparseRank = i + 1
	}

	fused := make([]Fused, 0, len(byID))
	for _, f := range byID {
		if f.DenseRank > 0 {
			f.Score += 1.0 / float64(k+f.DenseRank)
		}
		if f.SparseRank > 0 {
			f.Score += 1.0 / float64(k+f.SparseRank)
		}
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ra, rb := rankSum(a), rankSum(b); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	return fused
}

func rankSum(f Fused) int {
	sum := 0
	if f.DenseRank > 0 {
		sum += f.DenseRank
	} else {
		sum += absentRank
	}
	if f.SparseRank > 0 {
		sum += f.SparseRank
	} else {
		sum += absentRank
	}
	return sum
}
