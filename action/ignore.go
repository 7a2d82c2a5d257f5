package action

import (
	"context"

	"github.com/agentpipe/agentpipe/core"
)

// IgnoreAction deliberately produces no outbound content. Selecting it lets
// the model bow out of a conversation without the turn counting as a
// failure.
type IgnoreAction struct{}

// NewIgnoreAction creates the ignore action.
func NewIgnoreAction() *IgnoreAction { return &IgnoreAction{} }

func (a *IgnoreAction) Name() string { return "IGNORE" }

func (a *IgnoreAction) Similes() []string {
	return []string{"STOP_TALKING", "STOP_CHATTING", "STOP_CONVERSATION"}
}

func (a *IgnoreAction) Description() string {
	return "Say nothing and let the conversation move on"
}

func (a *IgnoreAction) Validate(ctx context.Context, actx *core.AgentContext, msg *core.Memory) bool {
	return true
}

func (a *IgnoreAction) Handle(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State, opts map[string]any, cb core.Callback) error {
	return nil
}
