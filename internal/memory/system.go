// Package memory is the engine facade: it wires configuration, storage,
// extraction, consolidation, and recall into one System and exposes the
// operations the CLI and embedding applications call.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/config"
	"github.com/evermemo/evermemo/internal/consolidate"
	"github.com/evermemo/evermemo/internal/embedding"
	"github.com/evermemo/evermemo/internal/extract"
	"github.com/evermemo/evermemo/internal/llm"
	"github.com/evermemo/evermemo/internal/model"
	"github.com/evermemo/evermemo/internal/recall"
	"github.com/evermemo/evermemo/internal/store"
)

// noMemoryReply is returned when retrieval finds nothing to ground an answer.
const noMemoryReply = "I don't have any relevant memory about that yet."

// System is the assembled memory engine.
type System struct {
	cfg       config.Config
	store     *store.SQLiteStore
	extractor extract.Service
	embedder  embedding.Embedder
	engine    *consolidate.Engine
	retriever *recall.Retriever
	gen       recall.Generator
	logger    *zap.Logger
}

// Open builds a System from configuration.
func Open(cfg config.Config, logger *zap.Logger) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := llm.NewOpenAIClient(cfg.LLM)
	gen := recall.NewLLMGenerator(client)

	s := &System{
		cfg:       cfg,
		store:     st,
		extractor: extract.NewLLMExtractor(client, logger),
		embedder:  emb,
		engine: consolidate.NewEngine(st,
			consolidate.NewClusterer(client, cfg.Cluster.SimilarityThreshold, logger),
			consolidate.NewProfileSource(client, logger),
			logger),
		retriever: recall.NewRetriever(st, emb, gen, cfg.Retrieval, logger),
		gen:       gen,
		logger:    logger,
	}
	return s, nil
}

// IngestTranscript parses a "Speaker: text" transcript and ingests it.
func (s *System) IngestTranscript(ctx context.Context, userID, conversationID, transcript string, now time.Time) (*consolidate.Result, error) {
	return s.IngestTurns(ctx, userID, conversationID, extract.ParseTranscript(transcript), now)
}

// IngestTurns runs the full ingestion pipeline: extraction, foresight window
// resolution, embedding, then consolidation. Extraction and embedding both
// run before anything touches the store, so a failure in either persists
// nothing.
func (s *System) IngestTurns(ctx context.Context, userID, conversationID string, turns []model.DialogueTurn, now time.Time) (*consolidate.Result, error) {
	if len(turns) == 0 {
		return &consolidate.Result{}, nil
	}

	drafts, err := s.extractor.Extract(ctx, turns, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	participants := participantsOf(turns)
	units := make([]*model.MemoryUnit, 0, len(drafts))
	for _, d := range drafts {
		u := &model.MemoryUnit{
			ID:             s.store.NewID(),
			Narrative:      d.Narrative,
			AtomicFacts:    d.AtomicFacts,
			Tags:           d.Tags,
			ConversationID: conversationID,
			TurnStart:      d.TurnStart,
			TurnEnd:        d.TurnEnd,
			Participants:   participants,
			CreatedAt:      now,
		}
		for _, fd := range d.Foresights {
			if f := extract.ResolveWindow(fd, now); f != nil {
				f.SourceUnitID = u.ID
				u.Foresights = append(u.Foresights, *f)
			}
		}
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, u.SearchableText())
			if err != nil {
				return nil, fmt.Errorf("%w: unit %s: %v", ErrEmbedding, u.ID, err)
			}
			u.Embedding = vec
		}
		units = append(units, u)
	}

	return s.engine.Consolidate(ctx, userID, units)
}

// Query retrieves memory relevant to the question.
func (s *System) Query(ctx context.Context, userID, query string, now time.Time) (*recall.Recollection, error) {
	return s.retriever.Retrieve(ctx, userID, query, now)
}

// Search is a single retrieval pass: no sufficiency judging, no rewrites.
func (s *System) Search(ctx context.Context, userID, query string, now time.Time) ([]model.RetrievalResult, error) {
	return s.retriever.Search(ctx, userID, query, now)
}

// Answer retrieves memory and composes a grounded reply. With no relevant
// memory it returns a fixed reply instead of letting the model guess.
func (s *System) Answer(ctx context.Context, userID, query string, now time.Time) (string, *recall.Recollection, error) {
	rec, err := s.retriever.Retrieve(ctx, userID, query, now)
	if err != nil {
		return "", nil, err
	}

	memoryContext := rec.ContextText()
	if strings.TrimSpace(memoryContext) == "" {
		return noMemoryReply, rec, nil
	}

	answer, err := s.gen.Answer(ctx, query, memoryContext)
	if err != nil {
		return "", rec, fmt.Errorf("compose answer: %w", err)
	}
	return answer, rec, nil
}

// Profile returns the user's profile aggregate.
func (s *System) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return s.store.LoadProfile(ctx, userID)
}

// Clusters lists the user's thematic clusters in creation order.
func (s *System) Clusters(ctx context.Context, userID string) ([]*model.ThematicCluster, error) {
	return s.store.ListClusters(ctx, userID)
}

// ClusterContents returns one cluster and its member units.
func (s *System) ClusterContents(ctx context.Context, clusterID string) (*model.ThematicCluster, []*model.MemoryUnit, error) {
	c, err := s.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, nil, err
	}
	units, err := s.store.GetUnits(ctx, c.MemberIDs)
	if err != nil {
		return nil, nil, err
	}
	return c, units, nil
}

// Stats summarizes the user's stored memory.
func (s *System) Stats(ctx context.Context, userID string) (*store.Stats, error) {
	return s.store.UserStats(ctx, userID)
}

// Export snapshots everything stored for the user.
func (s *System) Export(ctx context.Context, userID string) (*store.Export, error) {
	return s.store.ExportUser(ctx, userID)
}

// Close releases the underlying store.
func (s *System) Close() error {
	return s.store.Close()
}

// ProfileSummary renders a profile as readable text.
func ProfileSummary(p *model.UserProfile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile for %s\n", p.UserID)

	if len(p.Attributes) > 0 {
		sb.WriteString("\nAttributes:\n")
		names := make([]string, 0, len(p.Attributes))
		for name := range p.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := p.Attributes[name]
			fmt.Fprintf(&sb, "  %-16s %s (since %s)\n", name+":", a.Value, a.Timestamp.Format("2006-01-02"))
		}
	}

	if len(p.Traits) > 0 {
		sb.WriteString("\nTraits:\n")
		for _, t := range p.Traits {
			fmt.Fprintf(&sb, "  [%s] %s (strength %.1f)\n", t.Type, t.Description, t.Strength)
		}
	}

	if len(p.Conflicts) > 0 {
		sb.WriteString("\nConflict history:\n")
		for _, c := range p.Conflicts {
			fmt.Fprintf(&sb, "  %s: %q (%s) -> %q (%s)\n",
				c.Attribute, c.OldValue, c.OldTimestamp.Format("2006-01-02"),
				c.NewValue, c.NewTimestamp.Format("2006-01-02"))
		}
	}

	if len(p.Attributes) == 0 && len(p.Traits) == 0 {
		sb.WriteString("\nNothing learned yet.\n")
	}
	return sb.String()
}

func participantsOf(turns []model.DialogueTurn) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range turns {
		if _, ok := seen[t.Speaker]; ok {
			continue
		}
		seen[t.Speaker] = struct{}{}
		out = append(out, t.Speaker)
	}
	return out
}
