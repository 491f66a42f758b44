package consolidate

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/llm"
	"github.com/evermemo/evermemo/internal/model"
)

// ProfileSource extracts profile material: explicit attributes from a unit's
// atomic facts, implicit traits from a cluster's theme and summary.
type ProfileSource struct {
	client llm.Client
	logger *zap.Logger
}

// NewProfileSource builds a profile source. client may be nil, which disables
// extraction entirely.
func NewProfileSource(client llm.Client, logger *zap.Logger) *ProfileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileSource{client: client, logger: logger}
}

const attributesSystem = `You extract explicit user attributes from memory facts.
An attribute is a stable, named property of the user stated in the facts:
diet, location, occupation, family status, and the like. Skip transient events.
Respond with JSON: {"attributes": [{"name": "...", "value": "...", "confidence": 0.0}]}`

const traitsSystem = `You infer implicit user traits from a theme and summary of related memories.
A trait is a preference, habit, or personality tendency supported by the summary.
Respond with JSON: {"traits": [{"type": "...", "description": "...", "strength": 0.0}]}`

type attributeExtraction struct {
	Attributes []struct {
		Name       string  `json:"name"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"attributes"`
}

type traitExtraction struct {
	Traits []struct {
		Type        string  `json:"type"`
		Description string  `json:"description"`
		Strength    float64 `json:"strength"`
	} `json:"traits"`
}

// AttributesFromUnit extracts explicit attributes from the unit's atomic
// facts. Each result is stamped with the unit's creation time and id, which
// is what recency-based conflict resolution later compares.
func (ps *ProfileSource) AttributesFromUnit(ctx context.Context, u *model.MemoryUnit) ([]model.ProfileAttribute, error) {
	if ps.client == nil || len(u.AtomicFacts) == 0 {
		return nil, nil
	}

	var out attributeExtraction
	prompt := "Facts:\n- " + strings.Join(u.AtomicFacts, "\n- ")
	if err := ps.client.GenerateJSON(ctx, attributesSystem, prompt, &out); err != nil {
		return nil, err
	}

	attrs := make([]model.ProfileAttribute, 0, len(out.Attributes))
	for _, a := range out.Attributes {
		if a.Name == "" || a.Value == "" {
			continue
		}
		conf := a.Confidence
		if conf <= 0 || conf > 1 {
			conf = 1.0
		}
		attrs = append(attrs, model.ProfileAttribute{
			Name:         a.Name,
			Value:        a.Value,
			Timestamp:    u.CreatedAt,
			SourceUnitID: u.ID,
			Confidence:   conf,
		})
	}
	return attrs, nil
}

// TraitsFromCluster infers implicit traits from the cluster's theme and
// summary, each citing the cluster as evidence.
func (ps *ProfileSource) TraitsFromCluster(ctx context.Context, c *model.ThematicCluster, now time.Time) ([]model.ImplicitTrait, error) {
	if ps.client == nil || c.Summary == "" {
		return nil, nil
	}

	var out traitExtraction
	prompt := "Theme: " + c.Theme + "\nSummary: " + c.Summary
	if err := ps.client.GenerateJSON(ctx, traitsSystem, prompt, &out); err != nil {
		return nil, err
	}

	traits := make([]model.ImplicitTrait, 0, len(out.Traits))
	for _, t := range out.Traits {
		if t.Description == "" {
			continue
		}
		strength := t.Strength
		if strength <= 0 || strength > 1 {
			strength = 0.5
		}
		traits = append(traits, model.ImplicitTrait{
			Type:        t.Type,
			Description: t.Description,
			Evidence:    []string{c.ID},
			Strength:    strength,
			UpdatedAt:   now,
		})
	}
	return traits, nil
}

// MergeTraits folds newly inferred traits into the existing list. An incoming
// trait that restates an existing one of the same type (their descriptions
// share more than half their words) reinforces it: strengths are averaged and
// evidence accumulates. Anything else is appended as a new trait.
func MergeTraits(existing, incoming []model.ImplicitTrait, now time.Time) []model.ImplicitTrait {
	for _, in := range incoming {
		merged := false
		for i := range existing {
			if existing[i].Type != in.Type {
				continue
			}
			if descriptionOverlap(existing[i].Description, in.Description) <= 0.5 {
				continue
			}
			existing[i].Strength = (existing[i].Strength + in.Strength) / 2
			for _, ev := range in.Evidence {
				if !containsString(existing[i].Evidence, ev) {
					existing[i].Evidence = append(existing[i].Evidence, ev)
				}
			}
			existing[i].UpdatedAt = now
			merged = true
			break
		}
		if !merged {
			existing = append(existing, in)
		}
	}
	return existing
}

// descriptionOverlap is the share of the smaller description's distinct words
// that also appear in the other.
func descriptionOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	if len(wb) < len(wa) {
		wa, wb = wb, wa
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(wa))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(w, ".,;:!?")] = struct{}{}
	}
	delete(set, "")
	return set
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
