// Package events publishes call-lifecycle events for downstream consumers.
// Publishing is best effort: failures are logged and never affect the call.
package events

import (
	"context"
	"frontdesk-server/internal/clients/kafka"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"time"

	"github.com/google/uuid"
)

// Publisher handles publishing domain events to Kafka. A nil producer
// disables publishing entirely.
type Publisher struct {
	kafkaProducer *kafka.Producer
	logger        *observability.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(kafkaProducer *kafka.Producer, logger *observability.Logger) *Publisher {
	return &Publisher{
		kafkaProducer: kafkaProducer,
		logger:        logger,
	}
}

// PublishCallStarted publishes a call.started event
func (p *Publisher) PublishCallStarted(ctx context.Context, conversation store.Conversation) {
	if p.kafkaProducer == nil {
		return
	}
	conversationID := conversation.ID.String()
	event := kafka.EventMessage{
		ID:             uuid.New().String(),
		Type:           "call.started",
		AgentID:        conversation.AgentID.String(),
		ConversationID: &conversationID,
		Data: map[string]interface{}{
			"conversation_id": conversationID,
			"agent_id":        conversation.AgentID.String(),
			"call_sid":        conversation.CallSid,
			"caller_number":   conversation.CallerNumber,
			"called_number":   conversation.CalledNumber,
			"started_at":      conversation.StartedAt.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := p.kafkaProducer.PublishEvent(ctx, event); err != nil {
		p.logger.InfoWithError(ctx, "Dropping call.started event", err)
	}
}

// PublishCallCompleted publishes a call.completed event
func (p *Publisher) PublishCallCompleted(ctx context.Context, conversation store.Conversation, duration time.Duration, turnCount int, reason string) {
	if p.kafkaProducer == nil {
		return
	}
	conversationID := conversation.ID.String()
	event := kafka.EventMessage{
		ID:             uuid.New().String(),
		Type:           "call.completed",
		AgentID:        conversation.AgentID.String(),
		ConversationID: &conversationID,
		Data: map[string]interface{}{
			"conversation_id":  conversationID,
			"agent_id":         conversation.AgentID.String(),
			"duration_seconds": int(duration.Seconds()),
			"turn_count":       turnCount,
			"reason":           reason,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := p.kafkaProducer.PublishEvent(ctx, event); err != nil {
		p.logger.InfoWithError(ctx, "Dropping call.completed event", err)
	}
}

// PublishAppointmentBooked publishes an appointment.booked event
func (p *Publisher) PublishAppointmentBooked(ctx context.Context, appointment store.Appointment) {
	if p.kafkaProducer == nil {
		return
	}
	event := kafka.EventMessage{
		ID:      uuid.New().String(),
		Type:    "appointment.booked",
		AgentID: appointment.AgentID.String(),
		Data: map[string]interface{}{
			"appointment_id": appointment.ID.String(),
			"agent_id":       appointment.AgentID.String(),
			"title":          appointment.Title,
			"start_time":     appointment.StartTime.UTC().Format(time.RFC3339),
			"end_time":       appointment.EndTime.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if appointment.ConversationID != nil {
		conversationID := appointment.ConversationID.String()
		event.ConversationID = &conversationID
		event.Data["conversation_id"] = conversationID
	}

	if err := p.kafkaProducer.PublishEvent(ctx, event); err != nil {
		p.logger.InfoWithError(ctx, "Dropping appointment.booked event", err)
	}
}
