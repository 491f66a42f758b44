package recall

import (
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

// FilterResults applies the temporal validity filter at query time: each
// result keeps only the foresights valid at now, and a result whose unit has
// no atomic facts and no valid foresights left is dropped entirely. Result
// order is preserved.
func FilterResults(results []model.RetrievalResult, now time.Time) []model.RetrievalResult {
	kept := results[:0]
	for _, r := range results {
		r.ValidForesights = nil
		for _, f := range r.Unit.Foresights {
			if f.IsValidAt(now) {
				r.ValidForesights = append(r.ValidForesights, f)
			}
		}
		if len(r.Unit.AtomicFacts) == 0 && len(r.ValidForesights) == 0 {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
