package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpipe/agentpipe/core"
)

const (
	messagesTable        = "messages"
	crossRoomLimit       = 20
	conversationHeader   = "# Conversation Messages"
	postHeader           = "# Posts in Thread"
	receivedHeader       = "# Received Message:"
	interactionsHeaderFn = "# Previous Interactions with %s"
)

// RecentMessagesProvider contributes the room's recent history plus the
// message being responded to. For messages from another participant it also
// surfaces prior interactions with that participant from other shared rooms.
type RecentMessagesProvider struct{}

// NewRecentMessagesProvider creates the conversation-history provider.
func NewRecentMessagesProvider() *RecentMessagesProvider { return &RecentMessagesProvider{} }

func (p *RecentMessagesProvider) Name() string { return "RECENT_MESSAGES" }

func (p *RecentMessagesProvider) Description() string {
	return "Recent conversation history and the received message"
}

func (p *RecentMessagesProvider) Position() int { return core.DefaultPosition }

func (p *RecentMessagesProvider) Dynamic() bool { return false }

func (p *RecentMessagesProvider) Get(ctx context.Context, actx *core.AgentContext, msg *core.Memory, _ *core.State) (*core.ProviderResult, error) {
	if actx.Store == nil || msg == nil {
		return &core.ProviderResult{}, nil
	}

	recent, err := actx.Store.GetMemories(ctx, core.MemoryFilter{
		Table:  messagesTable,
		RoomID: msg.RoomID,
		Count:  actx.Conversation(),
	})
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	names := newNameResolver(actx)
	post := isPostRoom(ctx, actx, msg)

	header := conversationHeader
	if post {
		header = postHeader
	}
	history := formatMessages(ctx, names, chronological(recent))

	var sections []string
	if history != "" {
		sections = append(sections, header+"\n"+history)
	}

	senderName := names.resolve(ctx, msg.EntityID)
	received := fmt.Sprintf("%s\n%s: %s", receivedHeader, senderName, msg.Content.Text)
	sections = append(sections, received)

	if msg.EntityID != actx.AgentID {
		if interactions := p.crossRoomInteractions(ctx, actx, msg, names); interactions != "" {
			sections = append(sections, fmt.Sprintf(interactionsHeaderFn, senderName)+"\n"+interactions)
		}
	}

	text := strings.Join(sections, "\n\n")
	return &core.ProviderResult{
		Values: map[string]string{
			"recentMessages":  history,
			"receivedMessage": received,
			"senderName":      senderName,
		},
		Data: map[string]any{"recentMessages": recent},
		Text: text,
	}, nil
}

// crossRoomInteractions collects messages exchanged with the sender in other
// shared rooms. Failures degrade to no section rather than failing the
// provider.
func (p *RecentMessagesProvider) crossRoomInteractions(ctx context.Context, actx *core.AgentContext, msg *core.Memory, names *nameResolver) string {
	roomIDs, err := actx.Store.GetRoomsForParticipants(ctx, []string{msg.EntityID, actx.AgentID})
	if err != nil {
		actx.Log().Warn("cross-room lookup failed", "error", err)
		return ""
	}
	var others []string
	for _, id := range roomIDs {
		if id != msg.RoomID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return ""
	}
	interactions, err := actx.Store.GetMemoriesByRoomIDs(ctx, messagesTable, others, crossRoomLimit)
	if err != nil {
		actx.Log().Warn("cross-room history failed", "error", err)
		return ""
	}
	return formatMessages(ctx, names, chronological(interactions))
}

// chronological reverses the store's newest-first ordering for prompt
// rendering.
func chronological(mems []*core.Memory) []*core.Memory {
	out := make([]*core.Memory, len(mems))
	for i, m := range mems {
		out[len(mems)-1-i] = m
	}
	return out
}

func formatMessages(ctx context.Context, names *nameResolver, mems []*core.Memory) string {
	var lines []string
	for _, m := range mems {
		if m.Content.Text == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", names.resolve(ctx, m.EntityID), m.Content.Text)
		if len(m.Content.Actions) > 0 {
			line += fmt.Sprintf(" (actions: %s)", strings.Join(m.Content.Actions, ", "))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// nameResolver caches entity display names for one composition.
type nameResolver struct {
	actx  *core.AgentContext
	cache map[string]string
}

func newNameResolver(actx *core.AgentContext) *nameResolver {
	return &nameResolver{actx: actx, cache: make(map[string]string)}
}

func (r *nameResolver) resolve(ctx context.Context, entityID string) string {
	if entityID == r.actx.AgentID {
		return r.actx.AgentName()
	}
	if name, ok := r.cache[entityID]; ok {
		return name
	}
	name := entityID
	if r.actx.Store != nil {
		if e, err := r.actx.Store.GetEntityByID(ctx, entityID); err == nil {
			name = e.DisplayName()
		}
	}
	r.cache[entityID] = name
	return name
}
