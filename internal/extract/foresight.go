package extract

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evermemo/evermemo/internal/model"
)

// ongoingReviewDays is the default window for "ongoing" foresights that
// carry no explicit end: they come up for review after 30 days rather than
// living forever.
const ongoingReviewDays = 30

const defaultForesightConfidence = 0.8

// ResolveWindow converts a foresight draft's duration hints into a concrete
// validity window anchored at now. Pure; returns nil for empty content.
//
// Precedence: an explicit expiry date wins over a fixed duration, which wins
// over the ongoing-review default. Indefinite foresights keep a nil end.
func ResolveWindow(d ForesightDraft, now time.Time) *model.Foresight {
	content := strings.TrimSpace(d.Content)
	if content == "" {
		return nil
	}

	start := now
	if d.StartOffsetDays > 0 {
		start = now.AddDate(0, 0, d.StartOffsetDays)
	}

	var end *time.Time
	if d.ExpiryDate != "" {
		if t, err := time.Parse("2006-01-02", d.ExpiryDate); err == nil {
			// Expiry dates are valid through the end of that day.
			eod := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, now.Location())
			end = &eod
		}
	}
	if end == nil {
		switch d.DurationType {
		case "fixed":
			if d.DurationDays > 0 {
				t := start.Add(time.Duration(d.DurationDays * 24 * float64(time.Hour)))
				end = &t
			}
		case "ongoing":
			t := start.AddDate(0, 0, ongoingReviewDays)
			end = &t
		}
	}

	return &model.Foresight{
		ID:         uuid.NewString(),
		Content:    content,
		TStart:     start,
		TEnd:       end,
		Confidence: defaultForesightConfidence,
	}
}
