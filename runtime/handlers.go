package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/internal/util"
	"github.com/agentpipe/agentpipe/model"
)

const messagesTable = "messages"

// handleMessage drives one response turn: persist the message, gate the
// sender, decide whether and how to respond, execute actions and run
// evaluators. Turns for the same room are serialized; failures after the
// run starts surface as a run-ended error event, never as a handler error.
func (r *Runtime) handleMessage(ctx context.Context, payload any) error {
	mp, ok := payload.(core.MessagePayload)
	if !ok || mp.Message == nil {
		return fmt.Errorf("message payload missing message")
	}
	msg := mp.Message
	actx := r.actx

	// The agent's own outbound messages are stored by the dispatch
	// callback; seeing one here must not trigger a response loop.
	if msg.EntityID == actx.AgentID {
		return nil
	}

	r.rooms.Lock(msg.RoomID)
	defer r.rooms.Unlock(msg.RoomID)

	if err := r.ensureMessageContext(ctx, msg); err != nil {
		return err
	}

	entity, err := actx.Store.GetEntityByID(ctx, msg.EntityID)
	if err != nil {
		return fmt.Errorf("load sender: %w", err)
	}

	// A message from an entity marked inactive means it rejoined.
	if entity.Status() == core.StatusInactive {
		entity.SetStatus(core.StatusActive)
		if err := actx.Store.UpdateEntity(ctx, entity); err != nil {
			r.logger.Warn("failed to reactivate entity", "entity_id", entity.ID, "error", err)
		}
	}

	if err := actx.Store.CreateMemory(ctx, msg, messagesTable); err != nil {
		if core.IsDuplicate(err) {
			r.logger.Debug("duplicate message delivery ignored", "message_id", msg.ID)
			return nil
		}
		return fmt.Errorf("store message: %w", err)
	}

	// Muted senders get their messages recorded but never a response.
	if entity.Status() == core.StatusMuted {
		r.logger.Debug("sender is muted, skipping response", "entity_id", entity.ID)
		return nil
	}

	runID := core.NewID()
	startTime := time.Now().UnixMilli()
	r.emitRun(ctx, core.EventRunStarted, runID, msg, startTime, 0, "", mp.Source)

	endRun := func(status core.RunStatus, errMsg string) {
		r.emitRunStatus(ctx, runID, msg, startTime, status, errMsg, mp.Source)
	}

	// An explicit provider request still needs the character and recent
	// conversation to compose a usable prompt.
	var requested []string
	if len(msg.Content.Providers) > 0 {
		seen := map[string]bool{}
		for _, name := range append(append([]string{}, msg.Content.Providers...), "CHARACTER", "RECENT_MESSAGES") {
			key := strings.ToUpper(strings.TrimSpace(name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			requested = append(requested, name)
		}
	}
	st, err := r.composer.Compose(ctx, actx, msg, requested)
	if err != nil {
		endRun(core.RunStatusError, err.Error())
		return nil
	}

	if r.requiresRespondGate(ctx, msg) {
		respond, err := r.shouldRespond(ctx, msg, st)
		if err != nil {
			endRun(core.RunStatusError, err.Error())
			return nil
		}
		if !respond {
			r.logger.Debug("declining to respond", "room_id", msg.RoomID)
			endRun(core.RunStatusSuccess, "")
			return nil
		}
	}

	dec, err := r.dispatcher.Decide(ctx, actx, msg, st)
	if err != nil {
		endRun(core.RunStatusError, err.Error())
		return nil
	}

	cb := r.recordingCallback(msg, mp.Callback, mp.Source)
	r.dispatcher.Execute(ctx, actx, msg, st, dec, cb)
	r.runEvaluators(ctx, msg, st, mp.Source)

	endRun(core.RunStatusSuccess, "")
	return nil
}

// ensureMessageContext creates the room, sender entity and participant links
// a message implies. Everything is an idempotent upsert.
func (r *Runtime) ensureMessageContext(ctx context.Context, msg *core.Memory) error {
	store := r.actx.Store
	if _, err := store.GetRoom(ctx, msg.RoomID); core.IsNotFound(err) {
		if err := store.CreateRoom(ctx, &core.Room{ID: msg.RoomID, Type: core.ChannelGroup}); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load room: %w", err)
	}

	entity := &core.Entity{ID: msg.EntityID, Names: []string{msg.EntityID}}
	entity.SetStatus(core.StatusActive)
	if err := store.CreateEntity(ctx, entity); err != nil {
		return fmt.Errorf("create sender: %w", err)
	}
	for _, id := range []string{msg.EntityID, r.actx.AgentID} {
		if err := store.AddParticipant(ctx, msg.RoomID, id); err != nil {
			r.logger.Warn("failed to link participant", "room_id", msg.RoomID, "entity_id", id, "error", err)
		}
	}
	return nil
}

// requiresRespondGate reports whether the respond/ignore model gate applies.
// Direct rooms always get a response attempt.
func (r *Runtime) requiresRespondGate(ctx context.Context, msg *core.Memory) bool {
	room, err := r.actx.Store.GetRoom(ctx, msg.RoomID)
	if err != nil {
		return true
	}
	return room.Type != core.ChannelDirect
}

// shouldRespond asks a small model whether to engage. Unparseable output
// fails open: responding to one extra message beats going silent.
func (r *Runtime) shouldRespond(ctx context.Context, msg *core.Memory, st *core.State) (bool, error) {
	tmpl := defaultShouldRespondTemplate
	if r.actx.Character != nil {
		if t := r.actx.Character.Template(TemplateShouldRespond); t != "" {
			tmpl = t
		}
	}
	values := make(map[string]string, len(st.Values)+2)
	for k, v := range st.Values {
		values[k] = v
	}
	values["context"] = st.Text
	values["agentName"] = r.actx.AgentName()

	prompt, err := util.RenderTemplate(tmpl, values)
	if err != nil {
		return false, fmt.Errorf("render respond gate prompt: %w", err)
	}

	res, err := r.actx.Model.Invoke(ctx, core.ModelObjectSmall, core.ModelParams{Prompt: prompt})
	if err != nil {
		return false, fmt.Errorf("respond gate: %w", err)
	}

	obj := res.Object
	if obj == nil {
		if parsed, perr := model.ParseJSONBlock(res.Text); perr == nil {
			obj = parsed
		}
	}
	if obj == nil {
		r.logger.Warn("respond gate output unparseable, responding anyway")
		return true, nil
	}
	verdict := strings.ToUpper(model.StringField(obj, "action"))
	return verdict != "IGNORE" && verdict != "STOP", nil
}

// recordingCallback persists each outbound fragment and emits a
// message-sent event before forwarding to the transport callback.
func (r *Runtime) recordingCallback(msg *core.Memory, next core.Callback, source string) core.Callback {
	return func(ctx context.Context, content core.Content) error {
		out := core.NewMemory(msg.RoomID, r.actx.AgentID, r.actx.AgentID, content)
		if err := r.actx.Store.CreateMemory(ctx, out, messagesTable); err != nil && !core.IsDuplicate(err) {
			r.logger.Warn("failed to store outbound message", "error", err)
		}
		r.bus.Emit(ctx, core.EventMessageSent, core.MessagePayload{
			Agent:   r.actx,
			Message: out,
			Source:  source,
		})
		if next == nil {
			return nil
		}
		return next(ctx, content)
	}
}

func (r *Runtime) runEvaluators(ctx context.Context, msg *core.Memory, st *core.State, source string) {
	for _, ev := range r.evaluators {
		evalID := core.NewID()
		start := time.Now().UnixMilli()
		r.bus.Emit(ctx, core.EventEvaluatorStarted, core.EvaluatorEventPayload{
			Agent:         r.actx,
			EvaluatorID:   evalID,
			EvaluatorName: ev.Name(),
			StartTime:     start,
			Source:        source,
		})
		err := r.runEvaluator(ctx, ev, msg, st)
		if err != nil {
			r.logger.Warn("evaluator failed", "evaluator", ev.Name(), "error", err)
		}
		r.bus.Emit(ctx, core.EventEvaluatorCompleted, core.EvaluatorEventPayload{
			Agent:         r.actx,
			EvaluatorID:   evalID,
			EvaluatorName: ev.Name(),
			StartTime:     start,
			Completed:     err == nil,
			Error:         err,
			Source:        source,
		})
	}
}

func (r *Runtime) runEvaluator(ctx context.Context, ev core.Evaluator, msg *core.Memory, st *core.State) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("evaluator panic: %v", rec)
		}
	}()
	return ev.Evaluate(ctx, r.actx, msg, st)
}

func (r *Runtime) emitRun(ctx context.Context, et core.EventType, runID string, msg *core.Memory, start, end int64, errMsg, source string) {
	status := core.RunStatusSuccess
	if errMsg != "" {
		status = core.RunStatusError
	}
	r.bus.Emit(ctx, et, core.RunPayload{
		Agent:     r.actx,
		RunID:     runID,
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		EntityID:  msg.EntityID,
		StartTime: start,
		EndTime:   end,
		Status:    status,
		Error:     errMsg,
		Source:    source,
	})
}

func (r *Runtime) emitRunStatus(ctx context.Context, runID string, msg *core.Memory, start int64, status core.RunStatus, errMsg, source string) {
	r.bus.Emit(ctx, core.EventRunEnded, core.RunPayload{
		Agent:     r.actx,
		RunID:     runID,
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		EntityID:  msg.EntityID,
		StartTime: start,
		EndTime:   time.Now().UnixMilli(),
		Status:    status,
		Error:     errMsg,
		Source:    source,
	})
}

// handleReaction stores a reaction record. Redelivered reactions arrive with
// the same id; the resulting duplicate insert is expected and swallowed.
func (r *Runtime) handleReaction(ctx context.Context, payload any) error {
	mp, ok := payload.(core.MessagePayload)
	if !ok || mp.Message == nil {
		return fmt.Errorf("reaction payload missing message")
	}
	reaction := mp.Message
	reaction.Content.Reaction = true

	if err := r.actx.Store.CreateMemory(ctx, reaction, messagesTable); err != nil {
		if core.IsDuplicate(err) {
			r.logger.Debug("duplicate reaction ignored", "message_id", reaction.ID)
			return nil
		}
		return fmt.Errorf("store reaction: %w", err)
	}
	return nil
}

// handleEntityJoined establishes the joining entity's connection: world,
// room, entity record, participant link and ACTIVE status. Races with
// concurrent joins surface as constraint errors and are non-fatal.
func (r *Runtime) handleEntityJoined(ctx context.Context, payload any) error {
	ep, ok := payload.(core.EntityPayload)
	if !ok || ep.EntityID == "" {
		return fmt.Errorf("entity payload missing entity id")
	}
	store := r.actx.Store

	if ep.WorldID != "" {
		if err := store.EnsureWorld(ctx, &core.World{ID: ep.WorldID, Source: ep.Source}); err != nil {
			r.logger.Warn("failed to ensure world", "world_id", ep.WorldID, "error", err)
		}
	}
	if ep.RoomID != "" {
		room := &core.Room{ID: ep.RoomID, WorldID: ep.WorldID, Type: core.ChannelGroup, Source: ep.Source}
		if err := store.CreateRoom(ctx, room); err != nil {
			r.logger.Warn("failed to create room", "room_id", ep.RoomID, "error", err)
		}
	}

	name := ep.Name
	if name == "" {
		name = ep.EntityID
	}
	entity := &core.Entity{ID: ep.EntityID, Names: []string{name}, Metadata: ep.Metadata}
	entity.SetStatus(core.StatusActive)
	if err := store.CreateEntity(ctx, entity); err != nil {
		return fmt.Errorf("create entity: %w", err)
	}

	// Rejoining entities come back ACTIVE.
	if existing, err := store.GetEntityByID(ctx, ep.EntityID); err == nil && existing.Status() != core.StatusActive {
		existing.SetStatus(core.StatusActive)
		if err := store.UpdateEntity(ctx, existing); err != nil {
			r.logger.Warn("failed to reactivate entity", "entity_id", ep.EntityID, "error", err)
		}
	}

	if ep.RoomID != "" {
		if err := store.AddParticipant(ctx, ep.RoomID, ep.EntityID); err != nil {
			r.logger.Warn("failed to link participant", "room_id", ep.RoomID, "entity_id", ep.EntityID, "error", err)
		}
	}
	return nil
}

// handleEntityLeft marks the entity INACTIVE, stamping its departure time.
// An unknown entity is logged and otherwise ignored.
func (r *Runtime) handleEntityLeft(ctx context.Context, payload any) error {
	ep, ok := payload.(core.EntityPayload)
	if !ok || ep.EntityID == "" {
		return fmt.Errorf("entity payload missing entity id")
	}

	entity, err := r.actx.Store.GetEntityByID(ctx, ep.EntityID)
	if err != nil {
		if core.IsNotFound(err) {
			r.logger.Debug("unknown entity left", "entity_id", ep.EntityID)
			return nil
		}
		return fmt.Errorf("load entity: %w", err)
	}

	entity.SetStatus(core.StatusInactive)
	if err := r.actx.Store.UpdateEntity(ctx, entity); err != nil {
		return fmt.Errorf("deactivate entity: %w", err)
	}
	return nil
}

// handleWorldJoined seeds the store with the world, its rooms and entities.
func (r *Runtime) handleWorldJoined(ctx context.Context, payload any) error {
	wp, ok := payload.(core.WorldPayload)
	if !ok || wp.World == nil {
		return fmt.Errorf("world payload missing world")
	}
	store := r.actx.Store

	if err := store.EnsureWorld(ctx, wp.World); err != nil {
		return fmt.Errorf("ensure world: %w", err)
	}
	for _, room := range wp.Rooms {
		if room.WorldID == "" {
			room.WorldID = wp.World.ID
		}
		if err := store.CreateRoom(ctx, room); err != nil {
			r.logger.Warn("failed to create room", "room_id", room.ID, "error", err)
		}
	}
	for _, entity := range wp.Entities {
		if err := store.CreateEntity(ctx, entity); err != nil {
			r.logger.Warn("failed to create entity", "entity_id", entity.ID, "error", err)
		}
	}
	return nil
}
