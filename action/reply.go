package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/internal/util"
	"github.com/agentpipe/agentpipe/model"
	"github.com/agentpipe/agentpipe/provider"
)

// ReplyAction generates and delivers a conversational reply. When the
// decision already produced reply text it is delivered directly; otherwise
// the action composes a reply-focused state and asks the large model.
type ReplyAction struct {
	composer *provider.Composer
}

// NewReplyAction creates the reply action.
func NewReplyAction(composer *provider.Composer) *ReplyAction {
	return &ReplyAction{composer: composer}
}

func (a *ReplyAction) Name() string { return "REPLY" }

func (a *ReplyAction) Similes() []string {
	return []string{"GREET", "REPLY_TO_MESSAGE", "SEND_REPLY", "RESPOND", "RESPONSE"}
}

func (a *ReplyAction) Description() string {
	return "Reply to the received message with generated text"
}

func (a *ReplyAction) Validate(ctx context.Context, actx *core.AgentContext, msg *core.Memory) bool {
	return true
}

func (a *ReplyAction) Handle(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State, opts map[string]any, cb core.Callback) error {
	if cb == nil {
		return nil
	}

	if text, ok := opts["text"].(string); ok && strings.TrimSpace(text) != "" {
		thought, _ := opts["thought"].(string)
		return cb(ctx, core.Content{
			Text:      text,
			Thought:   thought,
			Actions:   []string{a.Name()},
			InReplyTo: msg.ID,
		})
	}

	text, thought, err := a.generate(ctx, actx, msg, st)
	if err != nil {
		return err
	}
	return cb(ctx, core.Content{
		Text:      text,
		Thought:   thought,
		Actions:   []string{a.Name()},
		InReplyTo: msg.ID,
	})
}

func (a *ReplyAction) generate(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State) (string, string, error) {
	if a.composer != nil {
		requested := append([]string{}, msg.Content.Providers...)
		requested = append(requested, "CHARACTER", "RECENT_MESSAGES")
		composed, err := a.composer.Compose(ctx, actx, msg, requested)
		if err == nil {
			st = composed
		}
	}
	if st == nil {
		st = core.NewState()
	}

	tmpl := defaultReplyTemplate
	if actx.Character != nil {
		if t := actx.Character.Template(TemplateReply); t != "" {
			tmpl = t
		}
	}
	prompt, err := util.RenderTemplate(tmpl, promptValues(actx, st))
	if err != nil {
		return "", "", fmt.Errorf("render reply prompt: %w", err)
	}

	res, err := actx.Model.Invoke(ctx, core.ModelObjectLarge, core.ModelParams{Prompt: prompt})
	if err != nil {
		return "", "", fmt.Errorf("generate reply: %w", err)
	}

	obj := res.Object
	if obj == nil {
		if parsed, perr := model.ParseJSONBlock(res.Text); perr == nil {
			obj = parsed
		}
	}
	if obj == nil {
		// Unstructured output still makes a serviceable reply.
		return strings.TrimSpace(res.Text), "", nil
	}
	return model.StringField(obj, "text"), model.StringField(obj, "thought"), nil
}
