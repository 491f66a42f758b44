package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testUnit(s *SQLiteStore, narrative string, facts []string, emb []float32, createdAt time.Time) *model.MemoryUnit {
	return &model.MemoryUnit{
		ID:          s.NewID(),
		Narrative:   narrative,
		AtomicFacts: facts,
		Tags:        []string{"test"},
		CreatedAt:   createdAt,
		Embedding:   emb,
	}
}

func TestPutGetUnit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	end := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	u := testUnit(s, "User planned a trip to Kyoto.", []string{"User is planning a Kyoto trip"},
		[]float32{0.1, 0.2, 0.3}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	u.ConversationID = "conv-1"
	u.TurnStart = 3
	u.TurnEnd = 9
	u.Participants = []string{"user", "assistant"}
	u.Foresights = []model.Foresight{{
		ID:         "f-1",
		Content:    "User will be in Kyoto",
		TStart:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		TEnd:       &end,
		Confidence: 0.8,
	}}

	if err := s.PutUnit(ctx, u, "alice"); err != nil {
		t.Fatalf("PutUnit: %v", err)
	}

	got, err := s.GetUnits(ctx, []string{u.ID})
	if err != nil {
		t.Fatalf("GetUnits: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d units, want 1", len(got))
	}
	g := got[0]
	if g.Narrative != u.Narrative {
		t.Errorf("narrative = %q, want %q", g.Narrative, u.Narrative)
	}
	if len(g.AtomicFacts) != 1 || g.AtomicFacts[0] != u.AtomicFacts[0] {
		t.Errorf("atomic facts = %v, want %v", g.AtomicFacts, u.AtomicFacts)
	}
	if g.TurnStart != 3 || g.TurnEnd != 9 {
		t.Errorf("turn range = [%d,%d], want [3,9]", g.TurnStart, g.TurnEnd)
	}
	if len(g.Embedding) != 3 {
		t.Fatalf("embedding length = %d, want 3", len(g.Embedding))
	}
	if len(g.Foresights) != 1 {
		t.Fatalf("foresights = %d, want 1", len(g.Foresights))
	}
	f := g.Foresights[0]
	if f.SourceUnitID != u.ID {
		t.Errorf("foresight source = %q, want %q", f.SourceUnitID, u.ID)
	}
	if f.TEnd == nil || !f.TEnd.Equal(end) {
		t.Errorf("foresight t_end = %v, want %v", f.TEnd, end)
	}
}

func TestGetUnitsPreservesOrderAndSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testUnit(s, "first", nil, nil, time.Now())
	b := testUnit(s, "second", nil, nil, time.Now())
	for _, u := range []*model.MemoryUnit{a, b} {
		if err := s.PutUnit(ctx, u, "alice"); err != nil {
			t.Fatalf("PutUnit: %v", err)
		}
	}

	got, err := s.GetUnits(ctx, []string{b.ID, "missing", a.ID})
	if err != nil {
		t.Fatalf("GetUnits: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("order not preserved: %v", got)
	}
}

func TestSearchSparse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kyoto := testUnit(s, "User planned a trip to Kyoto and booked a ryokan.",
		[]string{"User booked a ryokan in Kyoto"}, nil, time.Now())
	diet := testUnit(s, "User switched to a vegetarian diet.",
		[]string{"User is vegetarian"}, nil, time.Now())
	for _, u := range []*model.MemoryUnit{kyoto, diet} {
		if err := s.PutUnit(ctx, u, "alice"); err != nil {
			t.Fatalf("PutUnit: %v", err)
		}
	}
	// Another user's unit must never surface.
	other := testUnit(s, "Kyoto travel notes for someone else.", nil, nil, time.Now())
	if err := s.PutUnit(ctx, other, "bob"); err != nil {
		t.Fatalf("PutUnit: %v", err)
	}

	ids, err := s.SearchSparse(ctx, "alice", "where is the user traveling? Kyoto!", 10)
	if err != nil {
		t.Fatalf("SearchSparse: %v", err)
	}
	if len(ids) == 0 || ids[0] != kyoto.ID {
		t.Fatalf("top hit = %v, want %s first", ids, kyoto.ID)
	}
	for _, id := range ids {
		if id == other.ID {
			t.Fatalf("leaked another user's unit")
		}
	}

	ids, err = s.SearchSparse(ctx, "alice", "!!! ???", 10)
	if err != nil {
		t.Fatalf("SearchSparse with no tokens: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("tokenless query returned %v", ids)
	}
}

func TestSearchDense(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	near := testUnit(s, "near", nil, []float32{1, 0, 0}, time.Now())
	mid := testUnit(s, "mid", nil, []float32{0.7, 0.7, 0}, time.Now())
	far := testUnit(s, "far", nil, []float32{0, 0, 1}, time.Now())
	for _, u := range []*model.MemoryUnit{far, mid, near} {
		if err := s.PutUnit(ctx, u, "alice"); err != nil {
			t.Fatalf("PutUnit: %v", err)
		}
	}

	ids, err := s.SearchDense(ctx, "alice", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchDense: %v", err)
	}
	if len(ids) != 2 || ids[0] != near.ID || ids[1] != mid.ID {
		t.Fatalf("ids = %v, want [%s %s]", ids, near.ID, mid.ID)
	}

	if _, err := s.SearchDense(ctx, "alice", nil, 2); err == nil {
		t.Fatal("expected error for empty query vector")
	}
}

func TestClusterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	c := &model.ThematicCluster{
		ID:        s.NewID(),
		UserID:    "alice",
		Theme:     "travel",
		Summary:   "Trips and plans.",
		MemberIDs: []string{"u1", "u2"},
		Centroid:  []float32{0.5, 0.5},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.UpsertCluster(ctx, c); err != nil {
		t.Fatalf("UpsertCluster: %v", err)
	}

	c.Summary = "Trips, plans, and bookings."
	c.MemberIDs = append(c.MemberIDs, "u3")
	c.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertCluster(ctx, c); err != nil {
		t.Fatalf("UpsertCluster update: %v", err)
	}

	got, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	if got.Summary != c.Summary {
		t.Errorf("summary = %q, want %q", got.Summary, c.Summary)
	}
	if len(got.MemberIDs) != 3 || got.MemberIDs[2] != "u3" {
		t.Errorf("members = %v, want append-only order with u3 last", got.MemberIDs)
	}
	if len(got.Centroid) != 2 {
		t.Errorf("centroid = %v", got.Centroid)
	}
}

func TestListClustersCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		c := &model.ThematicCluster{
			ID:        s.NewID(),
			UserID:    "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		ids = append(ids, c.ID)
		if err := s.UpsertCluster(ctx, c); err != nil {
			t.Fatalf("UpsertCluster: %v", err)
		}
	}

	got, err := s.ListClusters(ctx, "alice")
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d clusters, want 3", len(got))
	}
	for i, c := range got {
		if c.ID != ids[i] {
			t.Fatalf("cluster %d = %s, want %s", i, c.ID, ids[i])
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile (empty): %v", err)
	}
	if len(p.Attributes) != 0 || len(p.Conflicts) != 0 {
		t.Fatalf("fresh profile not empty: %+v", p)
	}

	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	p.Attributes["diet"] = model.ProfileAttribute{
		Name: "diet", Value: "pescatarian", Timestamp: t2, SourceUnitID: "u2", Confidence: 0.9,
	}
	p.Traits = append(p.Traits, model.ImplicitTrait{
		Type: "interest", Description: "enjoys cooking",
		Evidence: []string{"u1"}, Strength: 0.6, UpdatedAt: t2,
	})
	p.Conflicts = append(p.Conflicts, model.ConflictRecord{
		ID: "c-1", Attribute: "diet",
		OldValue: "vegetarian", NewValue: "pescatarian",
		OldTimestamp: t1, NewTimestamp: t2,
		OldSource: "u1", NewSource: "u2",
		Resolution: model.ResolutionRecency, DetectedAt: t2,
	})
	p.UpdatedAt = t2

	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	got, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	a, ok := got.Attributes["diet"]
	if !ok || a.Value != "pescatarian" || !a.Timestamp.Equal(t2) {
		t.Fatalf("diet attribute = %+v", a)
	}
	if len(got.Traits) != 1 || got.Traits[0].Description != "enjoys cooking" {
		t.Fatalf("traits = %+v", got.Traits)
	}
	if len(got.Conflicts) != 1 || got.Conflicts[0].OldValue != "vegetarian" {
		t.Fatalf("conflicts = %+v", got.Conflicts)
	}

	// A second save with the same conflict id must not duplicate the record.
	if err := s.SaveProfile(ctx, got); err != nil {
		t.Fatalf("SaveProfile (again): %v", err)
	}
	got, err = s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if len(got.Conflicts) != 1 {
		t.Fatalf("conflict history duplicated: %d records", len(got.Conflicts))
	}
}

func TestUserStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUnit(s, "stats unit", nil, nil, time.Now())
	u.Foresights = []model.Foresight{{ID: "f-1", Content: "soon", TStart: time.Now(), Confidence: 0.8}}
	if err := s.PutUnit(ctx, u, "alice"); err != nil {
		t.Fatalf("PutUnit: %v", err)
	}

	st, err := s.UserStats(ctx, "alice")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if st.Units != 1 || st.Foresights != 1 || st.Clusters != 0 || st.Conflicts != 0 {
		t.Fatalf("stats = %+v", st)
	}
}
