package consolidate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

// stubClient replays canned JSON responses in order.
type stubClient struct {
	responses []string
	calls     int
	err       error
}

func (s *stubClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.calls >= len(s.responses) {
		return "", errors.New("stub exhausted")
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func (s *stubClient) GenerateJSON(ctx context.Context, system, prompt string, out any) error {
	r, err := s.Generate(ctx, system, prompt)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(r), out)
}

func TestAttributesFromUnit(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"attributes": [{"name": "diet", "value": "vegetarian", "confidence": 0.9}, {"name": "", "value": "dropped"}]}`,
	}}
	ps := NewProfileSource(client, nil)

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	u := &model.MemoryUnit{
		ID:          "u1",
		AtomicFacts: []string{"User is vegetarian"},
		CreatedAt:   created,
	}

	attrs, err := ps.AttributesFromUnit(context.Background(), u)
	if err != nil {
		t.Fatalf("AttributesFromUnit: %v", err)
	}
	if len(attrs) != 1 {
		t.Fatalf("attrs = %+v, want 1", attrs)
	}
	a := attrs[0]
	if a.Name != "diet" || a.Value != "vegetarian" {
		t.Errorf("attr = %+v", a)
	}
	if !a.Timestamp.Equal(created) || a.SourceUnitID != "u1" {
		t.Errorf("attr provenance = %v / %s, want unit's", a.Timestamp, a.SourceUnitID)
	}
}

func TestAttributesFromUnitNilClient(t *testing.T) {
	ps := NewProfileSource(nil, nil)
	attrs, err := ps.AttributesFromUnit(context.Background(), &model.MemoryUnit{
		ID: "u1", AtomicFacts: []string{"fact"},
	})
	if err != nil || attrs != nil {
		t.Fatalf("got %v, %v; want nil, nil", attrs, err)
	}
}

func TestTraitsFromCluster(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"traits": [{"type": "interest", "description": "enjoys cooking at home", "strength": 0.7}]}`,
	}}
	ps := NewProfileSource(client, nil)

	now := time.Now().UTC()
	traits, err := ps.TraitsFromCluster(context.Background(), &model.ThematicCluster{
		ID: "cl-1", Theme: "cooking", Summary: "User talks about recipes and kitchen gear.",
	}, now)
	if err != nil {
		t.Fatalf("TraitsFromCluster: %v", err)
	}
	if len(traits) != 1 {
		t.Fatalf("traits = %+v", traits)
	}
	if traits[0].Evidence[0] != "cl-1" {
		t.Errorf("evidence = %v, want cluster id", traits[0].Evidence)
	}
}

func TestMergeTraitsReinforces(t *testing.T) {
	now := time.Now().UTC()
	existing := []model.ImplicitTrait{{
		Type: "interest", Description: "enjoys cooking at home",
		Evidence: []string{"cl-1"}, Strength: 0.6, UpdatedAt: now.Add(-time.Hour),
	}}
	incoming := []model.ImplicitTrait{{
		Type: "interest", Description: "really enjoys cooking at home",
		Evidence: []string{"cl-2"}, Strength: 0.8, UpdatedAt: now,
	}}

	merged := MergeTraits(existing, incoming, now)
	if len(merged) != 1 {
		t.Fatalf("merged = %+v, want reinforcement not append", merged)
	}
	got := merged[0]
	if got.Strength < 0.69 || got.Strength > 0.71 {
		t.Errorf("strength = %f, want averaged 0.7", got.Strength)
	}
	if len(got.Evidence) != 2 || got.Evidence[1] != "cl-2" {
		t.Errorf("evidence = %v", got.Evidence)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at not refreshed")
	}
}

func TestMergeTraitsAppendsDistinct(t *testing.T) {
	now := time.Now().UTC()
	existing := []model.ImplicitTrait{{
		Type: "interest", Description: "enjoys cooking at home", Strength: 0.6,
	}}
	incoming := []model.ImplicitTrait{
		{Type: "habit", Description: "enjoys cooking at home", Strength: 0.5},
		{Type: "interest", Description: "collects vintage maps", Strength: 0.5},
	}

	merged := MergeTraits(existing, incoming, now)
	if len(merged) != 3 {
		t.Fatalf("merged %d traits, want 3 (different type and different description both append)", len(merged))
	}
}
