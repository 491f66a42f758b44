package consolidate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evermemo/evermemo/internal/model"
	"github.com/evermemo/evermemo/internal/store"
)

func newEngineWithStore(t *testing.T, client *stubClient) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	eng := NewEngine(s, NewClusterer(nil, 0.70, nil), NewProfileSource(client, nil), nil)
	return eng, s
}

func TestConsolidateEndToEnd(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"attributes": [{"name": "diet", "value": "vegetarian", "confidence": 0.9}]}`,
		`{"attributes": [{"name": "diet", "value": "pescatarian", "confidence": 0.9}]}`,
		`{"traits": [{"type": "interest", "description": "cares about food choices", "strength": 0.6}]}`,
	}}
	eng, s := newEngineWithStore(t, client)
	ctx := context.Background()

	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 9)
	units := []*model.MemoryUnit{
		{
			ID:          s.NewID(),
			Narrative:   "User said they are vegetarian.",
			AtomicFacts: []string{"User is vegetarian"},
			CreatedAt:   t1,
			Embedding:   []float32{1, 0},
		},
		{
			ID:          s.NewID(),
			Narrative:   "User now eats fish, calling themselves pescatarian.",
			AtomicFacts: []string{"User is pescatarian"},
			CreatedAt:   t2,
			Embedding:   []float32{1, 0},
		},
	}

	res, err := eng.Consolidate(ctx, "alice", units)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.UnitsStored != 2 {
		t.Errorf("units stored = %d, want 2", res.UnitsStored)
	}
	if res.ClustersCreated != 1 || res.ClustersUpdated != 1 {
		t.Errorf("clusters created/updated = %d/%d, want 1/1", res.ClustersCreated, res.ClustersUpdated)
	}
	if res.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", res.Conflicts)
	}

	clusters, err := s.ListClusters(ctx, "alice")
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if len(clusters) != 1 || len(clusters[0].MemberIDs) != 2 {
		t.Fatalf("clusters = %+v, want one cluster with both units", clusters)
	}

	stored, err := s.GetUnits(ctx, []string{units[0].ID, units[1].ID})
	if err != nil {
		t.Fatalf("GetUnits: %v", err)
	}
	for _, u := range stored {
		if u.ClusterID != clusters[0].ID {
			t.Errorf("unit %s cluster = %q", u.ID, u.ClusterID)
		}
	}

	profile, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got := profile.Attributes["diet"].Value; got != "pescatarian" {
		t.Errorf("diet = %q, want later value live", got)
	}
	if len(profile.Conflicts) != 1 || profile.Conflicts[0].OldValue != "vegetarian" {
		t.Errorf("conflicts = %+v", profile.Conflicts)
	}
	if len(profile.Traits) != 1 {
		t.Errorf("traits = %+v", profile.Traits)
	}
	if len(profile.SourceClusters) != 1 || profile.SourceClusters[0] != clusters[0].ID {
		t.Errorf("source clusters = %v", profile.SourceClusters)
	}
}

func TestConsolidateSurvivesExtractionFailure(t *testing.T) {
	// Every model call fails; units and clusters must still be persisted.
	client := &stubClient{}
	eng, s := newEngineWithStore(t, client)
	ctx := context.Background()

	units := []*model.MemoryUnit{{
		ID:          s.NewID(),
		Narrative:   "User adopted a cat.",
		AtomicFacts: []string{"User has a cat"},
		CreatedAt:   time.Now().UTC(),
		Embedding:   []float32{0, 1},
	}}

	res, err := eng.Consolidate(ctx, "alice", units)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if res.UnitsStored != 1 || res.ClustersCreated != 1 {
		t.Fatalf("result = %+v", res)
	}

	stored, err := s.ListUnits(ctx, "alice")
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored units = %v, %v", stored, err)
	}
}
