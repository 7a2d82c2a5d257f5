package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/model"
)

const (
	documentsTable     = "documents"
	knowledgeThreshold = 0.5
	knowledgeCount     = 10
	knowledgeHeader    = "# Knowledge"
)

const queryRewriteTemplate = `Based on the conversation so far, rewrite the latest message into a short standalone search query capturing what information is needed.

Latest message: %s

Respond with a single JSON block:
` + "```json" + `
{
  "queryString": "<the search query>"
}
` + "```" + `
Your response must contain exactly one JSON block and nothing else.`

// KnowledgeProvider retrieves documents relevant to the received message via
// embedding similarity. It is dynamic: it costs a model call and a search,
// so it only runs when a composition explicitly requests it.
type KnowledgeProvider struct{}

// NewKnowledgeProvider creates the retrieval provider.
func NewKnowledgeProvider() *KnowledgeProvider { return &KnowledgeProvider{} }

func (p *KnowledgeProvider) Name() string { return "KNOWLEDGE" }

func (p *KnowledgeProvider) Description() string {
	return "Documents relevant to the received message"
}

func (p *KnowledgeProvider) Position() int { return core.DefaultPosition }

func (p *KnowledgeProvider) Dynamic() bool { return true }

func (p *KnowledgeProvider) Get(ctx context.Context, actx *core.AgentContext, msg *core.Memory, _ *core.State) (*core.ProviderResult, error) {
	if actx.Store == nil || actx.Model == nil || msg == nil || strings.TrimSpace(msg.Content.Text) == "" {
		return &core.ProviderResult{}, nil
	}

	query := p.rewriteQuery(ctx, actx, msg.Content.Text)

	emb, err := actx.Model.Invoke(ctx, core.ModelEmbedding, core.ModelParams{Prompt: query})
	if err != nil {
		return nil, fmt.Errorf("embed knowledge query: %w", err)
	}

	docs, err := actx.Store.SearchMemoriesByEmbedding(ctx, emb.Vector, core.SearchFilter{
		Table:     documentsTable,
		AgentID:   actx.AgentID,
		Threshold: knowledgeThreshold,
		Count:     knowledgeCount,
	})
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	if len(docs) == 0 {
		return &core.ProviderResult{}, nil
	}

	var b strings.Builder
	b.WriteString(knowledgeHeader)
	for _, d := range docs {
		b.WriteString("\n- ")
		b.WriteString(d.Content.Text)
	}
	text := b.String()

	return &core.ProviderResult{
		Values: map[string]string{"knowledge": text},
		Data:   map[string]any{"knowledge": docs},
		Text:   text,
	}, nil
}

// rewriteQuery asks a small model to turn the message into a standalone
// search query, expecting a JSON object holding queryString. Transport
// failure and unparseable output both fall back to the raw text.
func (p *KnowledgeProvider) rewriteQuery(ctx context.Context, actx *core.AgentContext, text string) string {
	res, err := actx.Model.Invoke(ctx, core.ModelObjectSmall, core.ModelParams{
		Prompt: fmt.Sprintf(queryRewriteTemplate, text),
	})
	if err != nil {
		actx.Log().Debug("query rewrite unavailable, using raw text")
		return text
	}
	obj := res.Object
	if obj == nil {
		if parsed, perr := model.ParseJSONBlock(res.Text); perr == nil {
			obj = parsed
		}
	}
	query := strings.TrimSpace(model.StringField(obj, "queryString"))
	if query == "" {
		actx.Log().Debug("query rewrite output unparseable, using raw text")
		return text
	}
	return query
}
