// Package extract turns raw conversation turns into structured memory unit
// drafts: a third-person narrative, atomic facts, and foresight candidates
// with temporal validity hints.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/llm"
	"github.com/evermemo/evermemo/internal/model"
)

// ForesightDraft is a foresight candidate before its validity window has
// been resolved. Duration hints come back from the model as free text.
type ForesightDraft struct {
	Content         string  `json:"content"`
	DurationType    string  `json:"duration_type"` // "fixed", "ongoing", "indefinite"
	DurationDays    float64 `json:"duration_value"`
	StartOffsetDays int     `json:"start_offset_days"`
	ExpiryDate      string  `json:"expiry_date"` // YYYY-MM-DD, or empty
}

// Draft is one extracted memory-unit draft covering a topical segment.
type Draft struct {
	Narrative   string
	AtomicFacts []string
	Foresights  []ForesightDraft
	Tags        []string
	TurnStart   int
	TurnEnd     int
}

// Service produces memory-unit drafts from conversation turns.
type Service interface {
	Extract(ctx context.Context, turns []model.DialogueTurn, now time.Time) ([]Draft, error)
}

// shortConversationTurns is the length at or below which a conversation is
// treated as a single segment without boundary detection.
const shortConversationTurns = 10

// boundaryWindow is the sliding-window size for topic-shift detection.
const boundaryWindow = 5

// LLMExtractor implements Service with a chat model: boundary detection over
// a sliding window, then combined narrative synthesis and structural
// derivation in one call per segment.
type LLMExtractor struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMExtractor creates an extractor backed by the given client.
func NewLLMExtractor(client llm.Client, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{client: client, logger: logger}
}

const extractSystemPrompt = `You are a structured information extractor for a memory system.
Transform raw dialogue into a third-person narrative, then extract atomic facts,
foresights (forward-looking inferences with temporal validity), and topic tags.

ATOMIC FACTS: discrete, independently verifiable statements.
FORESIGHTS: plans, intentions, temporary states, predictions. Always try to
determine temporal bounds from the conversation using the current time as reference.
NARRATIVE: concise third person, all coreferences resolved.`

const boundarySystemPrompt = `You are a semantic boundary detector for conversational AI.
Flag a topic shift only when the conversation moves to a genuinely different subject,
task, or context. Follow-up questions, clarifications, and sub-topics are not shifts.`

type extractResponse struct {
	Narrative   string           `json:"narrative"`
	AtomicFacts []string         `json:"atomic_facts"`
	Foresights  []ForesightDraft `json:"foresights"`
	Tags        []string         `json:"tags"`
}

type boundaryResponse struct {
	IsTopicShift bool    `json:"is_topic_shift"`
	Confidence   float64 `json:"confidence"`
}

// Extract segments the turns, then drafts one unit per segment. Any failure
// aborts the whole extraction; callers must not persist partial results.
func (e *LLMExtractor) Extract(ctx context.Context, turns []model.DialogueTurn, now time.Time) ([]Draft, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	segments := e.segment(ctx, turns)
	drafts := make([]Draft, 0, len(segments))
	for _, seg := range segments {
		d, err := e.draftSegment(ctx, turns[seg[0]:seg[1]+1], now)
		if err != nil {
			return nil, fmt.Errorf("extract segment turns %d-%d: %w", seg[0], seg[1], err)
		}
		d.TurnStart = turns[seg[0]].TurnID
		d.TurnEnd = turns[seg[1]].TurnID
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// segment returns [start,end] index pairs. Short conversations skip the
// model round-trips and become a single segment.
func (e *LLMExtractor) segment(ctx context.Context, turns []model.DialogueTurn) [][2]int {
	if len(turns) <= shortConversationTurns {
		return [][2]int{{0, len(turns) - 1}}
	}

	boundaries := []int{0}
	for i := boundaryWindow; i < len(turns); i++ {
		start := i - boundaryWindow
		if e.isTopicShift(ctx, turns[start:i+1]) {
			boundaries = append(boundaries, i)
		}
	}

	var segments [][2]int
	for i, start := range boundaries {
		end := len(turns) - 1
		if i+1 < len(boundaries) {
			end = boundaries[i+1] - 1
		}
		if start <= end {
			segments = append(segments, [2]int{start, end})
		}
	}
	return segments
}

func (e *LLMExtractor) isTopicShift(ctx context.Context, window []model.DialogueTurn) bool {
	var b strings.Builder
	for i, turn := range window {
		marker := ""
		if i == len(window)-1 {
			marker = " [CURRENT TURN]"
		}
		fmt.Fprintf(&b, "Turn %d%s\n%s: %s\n\n", i+1, marker, turn.Speaker, turn.Content)
	}

	prompt := fmt.Sprintf(`Does the LAST turn represent a significant topic shift from the previous turns?

%s
Respond with JSON: {"is_topic_shift": true/false, "confidence": 0.0-1.0}`, b.String())

	var resp boundaryResponse
	if err := e.client.GenerateJSON(ctx, boundarySystemPrompt, prompt, &resp); err != nil {
		e.logger.Warn("boundary detection failed, assuming no shift", zap.Error(err))
		return false
	}
	return resp.IsTopicShift && resp.Confidence >= 0.7
}

func (e *LLMExtractor) draftSegment(ctx context.Context, turns []model.DialogueTurn, now time.Time) (Draft, error) {
	var dialogue strings.Builder
	for _, turn := range turns {
		ts := ""
		if !turn.Timestamp.IsZero() {
			ts = "[" + turn.Timestamp.Format("2006-01-02 15:04") + "] "
		}
		fmt.Fprintf(&dialogue, "%s%s: %s\n", ts, turn.Speaker, turn.Content)
	}

	prompt := fmt.Sprintf(`Analyze this dialogue segment.

DIALOGUE:
%s
CURRENT TIME: %s

Respond with JSON:
{
  "narrative": "third-person narrative with all references resolved",
  "atomic_facts": ["discrete verifiable statement", ...],
  "foresights": [
    {
      "content": "the plan/intention/temporary state",
      "duration_type": "fixed|ongoing|indefinite",
      "duration_value": days if fixed else 0,
      "start_offset_days": 0,
      "expiry_date": "YYYY-MM-DD if determinable, else \"\""
    }
  ],
  "tags": ["high-level category", ...]
}

Convert relative times ("next week", "for two weeks", "until Friday") to concrete
values using CURRENT TIME as the reference.`, dialogue.String(), now.Format("2006-01-02 15:04"))

	var resp extractResponse
	if err := e.client.GenerateJSON(ctx, extractSystemPrompt, prompt, &resp); err != nil {
		return Draft{}, err
	}
	if strings.TrimSpace(resp.Narrative) == "" {
		return Draft{}, fmt.Errorf("model returned empty narrative")
	}
	return Draft{
		Narrative:   strings.TrimSpace(resp.Narrative),
		AtomicFacts: resp.AtomicFacts,
		Foresights:  resp.Foresights,
		Tags:        resp.Tags,
	}, nil
}
