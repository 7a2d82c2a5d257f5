package core

import (
	"context"

	"github.com/google/uuid"
)

// EventType tags a lifecycle or inbound event routed through the bus.
type EventType string

const (
	// EventMessageReceived fires for every inbound text message.
	EventMessageReceived EventType = "MESSAGE_RECEIVED"
	// EventVoiceMessageReceived fires for transcribed voice messages; it
	// follows the same handling path as text messages.
	EventVoiceMessageReceived EventType = "VOICE_MESSAGE_RECEIVED"
	// EventReactionReceived fires when a participant reacts to a message.
	EventReactionReceived EventType = "REACTION_RECEIVED"
	// EventMessageSent fires after the agent emits outbound content.
	EventMessageSent EventType = "MESSAGE_SENT"
	// EventWorldJoined fires when the agent is added to a world.
	EventWorldJoined EventType = "WORLD_JOINED"
	// EventEntityJoined fires when a participant joins a room.
	EventEntityJoined EventType = "ENTITY_JOINED"
	// EventEntityLeft fires when a participant leaves.
	EventEntityLeft EventType = "ENTITY_LEFT"

	// EventRunStarted and EventRunEnded bracket one response turn. RunEnded
	// carries the turn status and is the principal external failure signal.
	EventRunStarted EventType = "RUN_STARTED"
	EventRunEnded   EventType = "RUN_ENDED"

	// EventActionStarted and EventActionCompleted bracket one action handler
	// invocation inside a turn.
	EventActionStarted   EventType = "ACTION_STARTED"
	EventActionCompleted EventType = "ACTION_COMPLETED"

	// EventEvaluatorStarted and EventEvaluatorCompleted bracket one
	// post-dispatch evaluator invocation.
	EventEvaluatorStarted   EventType = "EVALUATOR_STARTED"
	EventEvaluatorCompleted EventType = "EVALUATOR_COMPLETED"
)

// RunStatus is the terminal status of a response turn.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// MessagePayload accompanies message-received, voice-message-received,
// reaction-received and message-sent events.
type MessagePayload struct {
	Agent    *AgentContext
	Message  *Memory
	Callback Callback
	Source   string
}

// EntityPayload accompanies entity-joined and entity-left events.
type EntityPayload struct {
	Agent    *AgentContext
	EntityID string
	WorldID  string
	RoomID   string
	Name     string
	Metadata map[string]any
	Source   string
}

// WorldPayload accompanies world-joined events.
type WorldPayload struct {
	Agent    *AgentContext
	World    *World
	Rooms    []*Room
	Entities []*Entity
	Source   string
}

// RunPayload accompanies run-started and run-ended events.
type RunPayload struct {
	Agent     *AgentContext
	RunID     string
	MessageID string
	RoomID    string
	EntityID  string
	StartTime int64
	EndTime   int64
	Status    RunStatus
	Error     string
	Source    string
}

// ActionEventPayload accompanies action-started and action-completed events.
// Completed is false when the handler returned or panicked with an error.
type ActionEventPayload struct {
	Agent      *AgentContext
	ActionID   string
	ActionName string
	StartTime  int64
	Completed  bool
	Error      error
	Source     string
}

// EvaluatorEventPayload accompanies evaluator lifecycle events.
type EvaluatorEventPayload struct {
	Agent         *AgentContext
	EvaluatorID   string
	EvaluatorName string
	StartTime     int64
	Completed     bool
	Error         error
	Source        string
}

// EmitFunc publishes an event payload to the bus. It is injected into the
// AgentContext so providers and actions can record lifecycle events without
// depending on the bus package.
type EmitFunc func(ctx context.Context, et EventType, payload any)

// NewID returns a fresh UUID string used for memory, run and action
// identifiers.
func NewID() string { return uuid.NewString() }
