package consolidate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/model"
)

// Store is the persistence surface consolidation needs.
type Store interface {
	NewID() string
	PutUnit(ctx context.Context, u *model.MemoryUnit, userID string) error
	ListClusters(ctx context.Context, userID string) ([]*model.ThematicCluster, error)
	UpsertCluster(ctx context.Context, c *model.ThematicCluster) error
	LoadProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	SaveProfile(ctx context.Context, p *model.UserProfile) error
}

// Result counts what one consolidation pass did.
type Result struct {
	UnitsStored     int
	ClustersCreated int
	ClustersUpdated int
	Conflicts       int
	TraitsInferred  int
}

// Engine runs the consolidation pipeline: cluster each new unit, persist it,
// then evolve the user's profile from the new material. Passes for the same
// user are serialized so cluster centroids and the profile never race.
type Engine struct {
	store    Store
	cluster  *Clusterer
	profiles *ProfileSource
	logger   *zap.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewEngine wires a consolidation engine.
func NewEngine(store Store, cluster *Clusterer, profiles *ProfileSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		cluster:  cluster,
		profiles: profiles,
		logger:   logger,
		users:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.users[userID] = lock
	}
	return lock
}

// Consolidate clusters and persists the units, then evolves the profile.
// Units are stored one by one; a storage failure aborts mid-batch with the
// already stored units intact. Profile extraction failures are logged and
// skipped so stored memory is never lost to a flaky model call.
func (e *Engine) Consolidate(ctx context.Context, userID string, units []*model.MemoryUnit) (*Result, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	clusters, err := e.store.ListClusters(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	res := &Result{}
	now := time.Now().UTC()
	touched := make(map[string]*model.ThematicCluster)

	for _, u := range units {
		if len(u.Embedding) > 0 {
			cl, created, err := e.cluster.Assign(ctx, u, clusters, userID, e.store.NewID(), now)
			if err != nil {
				return res, fmt.Errorf("cluster unit %s: %w", u.ID, err)
			}
			u.ClusterID = cl.ID
			if created {
				clusters = append(clusters, cl)
				res.ClustersCreated++
			} else {
				res.ClustersUpdated++
			}
			touched[cl.ID] = cl
		} else {
			e.logger.Warn("unit has no embedding, stored unclustered", zap.String("unit", u.ID))
		}

		if err := e.store.PutUnit(ctx, u, userID); err != nil {
			return res, fmt.Errorf("store unit %s: %w", u.ID, err)
		}
		res.UnitsStored++
	}

	for _, cl := range touched {
		if err := e.store.UpsertCluster(ctx, cl); err != nil {
			return res, fmt.Errorf("store cluster %s: %w", cl.ID, err)
		}
	}

	if err := e.evolveProfile(ctx, userID, units, touched, now, res); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) evolveProfile(ctx context.Context, userID string, units []*model.MemoryUnit, touched map[string]*model.ThematicCluster, now time.Time, res *Result) error {
	profile, err := e.store.LoadProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	for _, u := range units {
		attrs, err := e.profiles.AttributesFromUnit(ctx, u)
		if err != nil {
			e.logger.Warn("attribute extraction failed", zap.String("unit", u.ID), zap.Error(err))
			continue
		}
		res.Conflicts += ApplyFacts(profile, attrs, e.store.NewID, now)
	}

	for id, cl := range touched {
		traits, err := e.profiles.TraitsFromCluster(ctx, cl, now)
		if err != nil {
			e.logger.Warn("trait inference failed", zap.String("cluster", id), zap.Error(err))
			continue
		}
		if len(traits) > 0 {
			before := len(profile.Traits)
			profile.Traits = MergeTraits(profile.Traits, traits, now)
			res.TraitsInferred += len(profile.Traits) - before
		}
		if !containsString(profile.SourceClusters, id) {
			profile.SourceClusters = append(profile.SourceClusters, id)
		}
	}

	profile.UpdatedAt = now
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	e.logger.Info("consolidation complete",
		zap.String("user", userID),
		zap.Int("units", res.UnitsStored),
		zap.Int("clusters_created", res.ClustersCreated),
		zap.Int("conflicts", res.Conflicts))
	return nil
}
