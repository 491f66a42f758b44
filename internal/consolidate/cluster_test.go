package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

func unitWithEmbedding(id string, emb []float32) *model.MemoryUnit {
	return &model.MemoryUnit{
		ID:        id,
		Narrative: "narrative for " + id,
		CreatedAt: time.Now().UTC(),
		Embedding: emb,
	}
}

func TestAssignIdenticalEmbeddingsShareCluster(t *testing.T) {
	c := NewClusterer(nil, 0.70, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	var clusters []*model.ThematicCluster
	first, created, err := c.Assign(ctx, unitWithEmbedding("u1", []float32{1, 0}), clusters, "alice", "cl-1", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !created {
		t.Fatal("first unit should open a cluster")
	}
	clusters = append(clusters, first)

	second, created, err := c.Assign(ctx, unitWithEmbedding("u2", []float32{1, 0}), clusters, "alice", "cl-2", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("identical embedding opened cluster %s, want join %s", second.ID, first.ID)
	}
	if len(second.MemberIDs) != 2 {
		t.Fatalf("members = %v", second.MemberIDs)
	}
}

func TestAssignBelowThresholdOpensCluster(t *testing.T) {
	c := NewClusterer(nil, 0.70, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	first, _, err := c.Assign(ctx, unitWithEmbedding("u1", []float32{1, 0}), nil, "alice", "cl-1", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// Orthogonal embedding: similarity 0, well below threshold.
	second, created, err := c.Assign(ctx, unitWithEmbedding("u2", []float32{0, 1}),
		[]*model.ThematicCluster{first}, "alice", "cl-2", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatalf("orthogonal unit joined cluster %s", second.ID)
	}
}

func TestAssignTieKeepsEarliestCluster(t *testing.T) {
	c := NewClusterer(nil, 0.70, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// Two clusters with identical centroids; the scan must keep the first.
	a := &model.ThematicCluster{ID: "cl-a", UserID: "alice", MemberIDs: []string{"x"}, Centroid: []float32{1, 0}}
	b := &model.ThematicCluster{ID: "cl-b", UserID: "alice", MemberIDs: []string{"y"}, Centroid: []float32{1, 0}}

	got, created, err := c.Assign(ctx, unitWithEmbedding("u1", []float32{1, 0}),
		[]*model.ThematicCluster{a, b}, "alice", "cl-new", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if created || got.ID != "cl-a" {
		t.Fatalf("tie resolved to %s, want cl-a", got.ID)
	}
}

func TestCentroidIsRunningMean(t *testing.T) {
	c := NewClusterer(nil, 0.70, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	first, _, err := c.Assign(ctx, unitWithEmbedding("u1", []float32{1, 0}), nil, "alice", "cl-1", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	// Similar enough to join (cos = ~0.95), then the centroid must become
	// the mean of the two member embeddings.
	_, _, err = c.Assign(ctx, unitWithEmbedding("u2", []float32{0.9, 0.3}),
		[]*model.ThematicCluster{first}, "alice", "cl-2", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	want := []float32{0.95, 0.15}
	for i, w := range want {
		got := first.Centroid[i]
		if got < w-0.001 || got > w+0.001 {
			t.Fatalf("centroid[%d] = %f, want %f", i, got, w)
		}
	}
}

func TestDescribeFallback(t *testing.T) {
	c := NewClusterer(nil, 0.70, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	u := unitWithEmbedding("u1", []float32{1, 0})
	u.Narrative = "User booked a pottery class for March."
	u.Tags = []string{"hobbies"}

	cl, _, err := c.Assign(ctx, u, nil, "alice", "cl-1", now)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if cl.Theme != "hobbies" {
		t.Errorf("theme = %q, want first tag", cl.Theme)
	}
	if cl.Summary != u.Narrative {
		t.Errorf("summary = %q, want narrative", cl.Summary)
	}
}
