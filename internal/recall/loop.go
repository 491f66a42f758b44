package recall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evermemo/evermemo/internal/config"
	"github.com/evermemo/evermemo/internal/embedding"
	"github.com/evermemo/evermemo/internal/model"
)

// ErrIndexUnavailable wraps dense or lexical index failures. Retrieval never
// silently degrades to a partial index: a broken index surfaces as an error.
var ErrIndexUnavailable = errors.New("retrieval index unavailable")

// Indexes is the search and lookup surface recall needs from the store.
type Indexes interface {
	SearchDense(ctx context.Context, userID string, query []float32, topK int) ([]string, error)
	SearchSparse(ctx context.Context, userID, query string, topK int) ([]string, error)
	GetUnits(ctx context.Context, ids []string) ([]*model.MemoryUnit, error)
	GetCluster(ctx context.Context, id string) (*model.ThematicCluster, error)
}

// Recollection is the product of one retrieval: fused, temporally filtered
// results plus the thematic clusters they implicate.
type Recollection struct {
	Query      string
	Rewrites   []string
	Results    []model.RetrievalResult
	Clusters   []*model.ThematicCluster
	Sufficient bool
	Cycles     int
}

// Retriever runs the reconstructive retrieval loop.
type Retriever struct {
	indexes  Indexes
	embedder embedding.Embedder
	gen      Generator
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// NewRetriever wires a retriever. gen may be nil, which disables the
// sufficiency loop: a single search cycle runs and its results stand.
func NewRetriever(indexes Indexes, embedder embedding.Embedder, gen Generator, cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{indexes: indexes, embedder: embedder, gen: gen, cfg: cfg, logger: logger}
}

// Retrieve answers a query against the user's memory. It searches with the
// original query, judges whether the results suffice, and reformulates and
// searches again up to MaxRewrites times, accumulating results across cycles.
// The loop always terminates within MaxRewrites+1 cycles; a judge failure
// ends the loop with the results in hand rather than losing them.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, now time.Time) (*Recollection, error) {
	rec := &Recollection{Query: query}
	merged := make(map[string]model.RetrievalResult)
	tried := []string{query}
	current := query

	for cycle := 0; cycle <= r.cfg.MaxRewrites; cycle++ {
		rec.Cycles++

		results, err := r.searchOnce(ctx, userID, current, now)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			prev, ok := merged[res.Unit.ID]
			if !ok || res.RRFScore > prev.RRFScore {
				merged[res.Unit.ID] = res
			}
		}
		rec.Results = rerank(merged, r.cfg.MaxEpisodes)

		if r.gen == nil {
			rec.Sufficient = true
			break
		}

		verdict, err := r.gen.JudgeSufficiency(ctx, query, ResultContext(rec.Results))
		if err != nil {
			r.logger.Warn("sufficiency judge failed, accepting results", zap.Error(err))
			rec.Sufficient = true
			break
		}
		if verdict.Sufficient {
			rec.Sufficient = true
			break
		}
		if cycle == r.cfg.MaxRewrites {
			break
		}

		rewritten, err := r.gen.Reformulate(ctx, query, verdict.Missing, tried)
		if err != nil {
			r.logger.Warn("query rewrite failed, accepting results", zap.Error(err))
			break
		}
		rewritten = strings.TrimSpace(rewritten)
		if rewritten == "" || alreadyTried(tried, rewritten) {
			break
		}
		r.logger.Debug("query reformulated",
			zap.Int("cycle", cycle+1),
			zap.String("rewritten", rewritten),
			zap.String("missing", verdict.Missing))
		tried = append(tried, rewritten)
		rec.Rewrites = append(rec.Rewrites, rewritten)
		current = rewritten
	}

	if err := r.attachClusters(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Search runs a single hybrid search cycle with no sufficiency loop: fuse,
// load, temporal-filter, done.
func (r *Retriever) Search(ctx context.Context, userID, query string, now time.Time) ([]model.RetrievalResult, error) {
	results, err := r.searchOnce(ctx, userID, query, now)
	if err != nil {
		return nil, err
	}
	if r.cfg.MaxEpisodes > 0 && len(results) > r.cfg.MaxEpisodes {
		results = results[:r.cfg.MaxEpisodes]
	}
	return results, nil
}

// searchOnce runs one hybrid search cycle: dense and sparse in parallel,
// reciprocal rank fusion, unit loading, and the temporal filter.
func (r *Retriever) searchOnce(ctx context.Context, userID, query string, now time.Time) ([]model.RetrievalResult, error) {
	var denseIDs, sparseIDs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if r.embedder == nil {
			return nil
		}
		vec, err := r.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("%w: embed query: %v", ErrIndexUnavailable, err)
		}
		denseIDs, err = r.indexes.SearchDense(gctx, userID, vec, r.cfg.TopK)
		if err != nil {
			return fmt.Errorf("%w: dense: %v", ErrIndexUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sparseIDs, err = r.indexes.SearchSparse(gctx, userID, query, r.cfg.TopK)
		if err != nil {
			return fmt.Errorf("%w: sparse: %v", ErrIndexUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := FuseRanks(denseIDs, sparseIDs, r.cfg.RRFK)
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	units, err := r.indexes.GetUnits(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	byID := make(map[string]*model.MemoryUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	results := make([]model.RetrievalResult, 0, len(fused))
	for _, f := range fused {
		u, ok := byID[f.ID]
		if !ok {
			continue
		}
		results = append(results, model.RetrievalResult{
			Unit:       u,
			DenseRank:  f.DenseRank,
			SparseRank: f.SparseRank,
			RRFScore:   f.Score,
		})
	}
	return FilterResults(results, now), nil
}

func (r *Retriever) attachClusters(ctx context.Context, rec *Recollection) error {
	for _, id := range SelectClusterIDs(rec.Results, r.cfg.TopClusters) {
		c, err := r.indexes.GetCluster(ctx, id)
		if err != nil {
			return fmt.Errorf("load cluster %s: %w", id, err)
		}
		rec.Clusters = append(rec.Clusters, c)
	}
	return nil
}

func rerank(merged map[string]model.RetrievalResult, limit int) []model.RetrievalResult {
	out := make([]model.RetrievalResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return out[i].Unit.ID < out[j].Unit.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func alreadyTried(tried []string, q string) bool {
	for _, t := range tried {
		if strings.EqualFold(strings.TrimSpace(t), q) {
			return true
		}
	}
	return false
}

// ResultContext renders results as the memory context block used by the
// sufficiency judge and the answer prompt.
func ResultContext(results []model.RetrievalResult) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n", i+1, r.Unit.Narrative, r.Unit.CreatedAt.Format("2006-01-02"))
		for _, f := range r.Unit.AtomicFacts {
			sb.WriteString("  - " + f + "\n")
		}
		for _, f := range r.ValidForesights {
			sb.WriteString("  - upcoming: " + f.Content + "\n")
		}
	}
	return sb.String()
}

// ContextText renders the full recollection, cluster summaries first.
func (rec *Recollection) ContextText() string {
	var sb strings.Builder
	for _, c := range rec.Clusters {
		fmt.Fprintf(&sb, "Theme %q: %s\n", c.Theme, c.Summary)
	}
	if sb.Len() > 0 && len(rec.Results) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(ResultContext(rec.Results))
	return sb.String()
}
