package bridge

import (
	"context"
	"time"

	"frontdesk-server/internal/agents"
	"frontdesk-server/internal/clients/openai"
	"frontdesk-server/internal/store"
	"frontdesk-server/internal/voicecall/twilio"

	"github.com/google/uuid"
)

// CallerLeg is the telephony side of the call.
type CallerLeg interface {
	ReadEvent() (twilio.StreamEvent, error)
	WriteMedia(streamSid, payload string) error
	Close() error
}

// RealtimeLeg is the AI side of the call.
type RealtimeLeg interface {
	UpdateSession(cfg openai.SessionConfig) error
	AppendAudio(audio []byte) error
	CreateUserMessage(text string) error
	SubmitToolOutput(callID, output string) error
	CreateResponse() error
	Events() <-chan openai.ServerEvent
	Close() error
}

// RealtimeDialer opens the AI leg once the agent is resolved.
type RealtimeDialer interface {
	Dial(ctx context.Context) (RealtimeLeg, error)
}

// AgentResolver resolves the answering agent for a called number.
type AgentResolver interface {
	ProfileForNumber(ctx context.Context, calledNumber string) (agents.Profile, error)
}

// ToolDispatcher executes a model tool call and returns the JSON payload to
// hand back to the realtime session.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, agentID, conversationID uuid.UUID, name, arguments string) string
}

// ConversationStore defines the database operations required by the Session
type ConversationStore interface {
	CreateConversation(ctx context.Context, params store.CreateConversationParams) (store.Conversation, error)
	CreateMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (store.Message, error)
	CompleteConversation(ctx context.Context, conversationID uuid.UUID, endedAt time.Time) error
}

// EventPublisher announces call lifecycle changes. Implementations must be
// best-effort and non-blocking on failure.
type EventPublisher interface {
	PublishCallStarted(ctx context.Context, conversation store.Conversation)
	PublishCallCompleted(ctx context.Context, conversation store.Conversation, duration time.Duration, turnCount int, reason string)
}
