package consolidate

import (
	"strings"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

// ApplyFacts folds newly extracted attribute values into the profile and
// returns the number of conflicts detected.
//
// For each incoming attribute: if the profile has no value under that name it
// is inserted; if the stored value is the same (case-insensitively) nothing
// changes; otherwise a conflict record is appended and recency decides which
// value stays live. On an exact timestamp tie the incoming value wins. The
// losing value is never deleted, it survives in the conflict history.
func ApplyFacts(p *model.UserProfile, incoming []model.ProfileAttribute, newID func() string, now time.Time) int {
	conflicts := 0
	for _, in := range incoming {
		name := strings.ToLower(strings.TrimSpace(in.Name))
		if name == "" || strings.TrimSpace(in.Value) == "" {
			continue
		}
		in.Name = name

		cur, ok := p.Attributes[name]
		if !ok {
			p.Attributes[name] = in
			continue
		}
		if strings.EqualFold(strings.TrimSpace(cur.Value), strings.TrimSpace(in.Value)) {
			continue
		}

		p.Conflicts = append(p.Conflicts, model.ConflictRecord{
			ID:           newID(),
			Attribute:    name,
			OldValue:     cur.Value,
			NewValue:     in.Value,
			OldTimestamp: cur.Timestamp,
			NewTimestamp: in.Timestamp,
			OldSource:    cur.SourceUnitID,
			NewSource:    in.SourceUnitID,
			Resolution:   model.ResolutionRecency,
			DetectedAt:   now,
		})
		conflicts++

		if !in.Timestamp.Before(cur.Timestamp) {
			p.Attributes[name] = in
		}
	}
	return conflicts
}
