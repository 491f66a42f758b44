package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/evermemo/evermemo/internal/llm"
)

// Verdict is the sufficiency judge's assessment of retrieved context.
type Verdict struct {
	Sufficient bool   `json:"sufficient"`
	Missing    string `json:"missing"`
}

// Generator is the prompt-driven side of recall: judging whether retrieved
// context can answer the query, reformulating the query when it cannot, and
// composing the final answer.
type Generator interface {
	JudgeSufficiency(ctx context.Context, query, memoryContext string) (Verdict, error)
	Reformulate(ctx context.Context, query, missing string, tried []string) (string, error)
	Answer(ctx context.Context, query, memoryContext string) (string, error)
}

// LLMGenerator implements Generator over a chat-completions client.
type LLMGenerator struct {
	client llm.Client
}

// NewLLMGenerator wraps a client.
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

const judgeSystem = `You judge whether retrieved memory context is sufficient to answer a question.
Sufficient means the context contains the specific information the question asks about,
not merely related material. Respond with JSON:
{"sufficient": true/false, "missing": "what information is absent, if any"}`

const rewriteSystem = `You rewrite memory-retrieval queries that came back with insufficient results.
Produce ONE alternative query targeting the missing information: use different phrasing,
synonyms, or a narrower angle. Never repeat a query that was already tried.
Respond with only the rewritten query text.`

const answerSystem = `You answer questions about a user from their retrieved memory context.
Ground every statement in the context. If the context does not contain the answer, say so plainly.
Pay attention to temporal hints: prefer the most recent information when facts changed over time.`

func (g *LLMGenerator) JudgeSufficiency(ctx context.Context, query, memoryContext string) (Verdict, error) {
	var v Verdict
	prompt := fmt.Sprintf("Question: %s\n\nRetrieved context:\n%s", query, memoryContext)
	if err := g.client.GenerateJSON(ctx, judgeSystem, prompt, &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func (g *LLMGenerator) Reformulate(ctx context.Context, query, missing string, tried []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %s\n", query)
	if missing != "" {
		fmt.Fprintf(&sb, "Missing information: %s\n", missing)
	}
	if len(tried) > 0 {
		sb.WriteString("Already tried:\n")
		for _, q := range tried {
			sb.WriteString("- " + q + "\n")
		}
	}
	out, err := g.client.Generate(ctx, rewriteSystem, sb.String())
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}

func (g *LLMGenerator) Answer(ctx context.Context, query, memoryContext string) (string, error) {
	prompt := fmt.Sprintf("Question: %s\n\nMemory context:\n%s", query, memoryContext)
	return g.client.Generate(ctx, answerSystem, prompt)
}
