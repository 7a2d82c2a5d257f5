package action

import (
	"context"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/provider"
)

// KnowledgeAction answers with retrieved documents: it recomposes state with
// the knowledge provider included, then replies grounded on what was found.
type KnowledgeAction struct {
	composer *provider.Composer
	reply    *ReplyAction
}

// NewKnowledgeAction creates the knowledge-grounded reply action.
func NewKnowledgeAction(composer *provider.Composer) *KnowledgeAction {
	return &KnowledgeAction{composer: composer, reply: NewReplyAction(nil)}
}

func (a *KnowledgeAction) Name() string { return "KNOWLEDGE" }

func (a *KnowledgeAction) Similes() []string {
	return []string{"SEARCH_KNOWLEDGE", "QUERY_KNOWLEDGE", "LOOKUP"}
}

func (a *KnowledgeAction) Description() string {
	return "Answer using documents retrieved from the knowledge base"
}

func (a *KnowledgeAction) Validate(ctx context.Context, actx *core.AgentContext, msg *core.Memory) bool {
	return actx.Store != nil && actx.Model != nil
}

func (a *KnowledgeAction) Handle(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State, opts map[string]any, cb core.Callback) error {
	if a.composer != nil {
		composed, err := a.composer.Compose(ctx, actx, msg, []string{"CHARACTER", "KNOWLEDGE", "RECENT_MESSAGES"})
		if err == nil {
			st = composed
		}
	}
	// Force fresh generation grounded on the retrieved documents rather
	// than reusing the decision's draft text.
	grounded := map[string]any{"thought": opts["thought"]}
	return a.reply.Handle(ctx, actx, msg, st, grounded, cb)
}
