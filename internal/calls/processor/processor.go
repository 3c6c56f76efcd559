package processor

import (
	"context"
	"errors"
	"fmt"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"time"

	"github.com/google/uuid"
)

// CallStore defines the database operations required by CallsProcessor
type CallStore interface {
	ListRecentConversations(ctx context.Context, limit int) ([]store.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (store.Conversation, error)
	GetAllMessagesByConversationID(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error)
	ListUpcomingAppointmentsByAgentID(ctx context.Context, agentID uuid.UUID, after time.Time, limit int) ([]store.Appointment, error)
}

var ErrCallNotFound = errors.New("call not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type CallsProcessor struct {
	store  CallStore
	logger *observability.Logger
}

func New(store CallStore, logger *observability.Logger) CallsProcessor {
	return CallsProcessor{
		store:  store,
		logger: logger,
	}
}

// CallDetailResponse is a conversation together with its full transcript.
type CallDetailResponse struct {
	Call       store.Conversation `json:"call"`
	Transcript []store.Message    `json:"transcript"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ListRecentCalls returns the most recent calls across all agents, newest first.
func (p *CallsProcessor) ListRecentCalls(ctx context.Context, limit int) ([]store.Conversation, error) {
	limit = clampLimit(limit)

	conversations, err := p.store.ListRecentConversations(ctx, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list recent calls", err)
		return nil, fmt.Errorf("failed to list recent calls: %w", err)
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	return conversations, nil
}

// GetCallWithTranscript returns one call and its transcript turns in order.
func (p *CallsProcessor) GetCallWithTranscript(ctx context.Context, callID uuid.UUID) (CallDetailResponse, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	conversation, err := p.store.GetConversation(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CallDetailResponse{}, ErrCallNotFound
		}
		p.logger.Error(ctx, "failed to get call", err)
		return CallDetailResponse{}, fmt.Errorf("failed to get call: %w", err)
	}

	messages, err := p.store.GetAllMessagesByConversationID(ctx, conversation.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to get call transcript", err)
		return CallDetailResponse{}, fmt.Errorf("failed to get call transcript: %w", err)
	}
	if messages == nil {
		messages = []store.Message{}
	}

	return CallDetailResponse{
		Call:       conversation,
		Transcript: messages,
	}, nil
}

// ListUpcomingAppointments returns an agent's future appointments in start order.
func (p *CallsProcessor) ListUpcomingAppointments(ctx context.Context, agentID uuid.UUID, limit int) ([]store.Appointment, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "agent_id", Value: agentID.String()})
	limit = clampLimit(limit)

	appointments, err := p.store.ListUpcomingAppointmentsByAgentID(ctx, agentID, time.Now().UTC(), limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list upcoming appointments", err)
		return nil, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}
	if appointments == nil {
		appointments = []store.Appointment{}
	}
	return appointments, nil
}
