package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is the persistent record of one phone call.
type Conversation struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AgentID      uuid.UUID  `db:"agent_id" json:"agent_id"`
	CallSid      string     `db:"call_sid" json:"call_sid"`
	StreamSid    string     `db:"stream_sid" json:"stream_sid"`
	CallerNumber string     `db:"caller_number" json:"caller_number"`
	CalledNumber string     `db:"called_number" json:"called_number"`
	Status       string     `db:"status" json:"status"`
	Title        *string    `db:"title" json:"title,omitempty"`
	Summary      *string    `db:"summary" json:"summary,omitempty"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	EndedAt      *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Message is a single transcript turn within a conversation.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

const MessageRoleUser = "user"
const MessageRoleAssistant = "assistant"

const ConversationStatusInProgress = "in_progress"
const ConversationStatusCompleted = "completed"

// CreateConversationParams represents parameters for opening a call conversation
type CreateConversationParams struct {
	AgentID      uuid.UUID
	CallSid      string
	StreamSid    string
	CallerNumber string
	CalledNumber string
}

const sqlCreateConversation = `
INSERT INTO conversations (agent_id, call_sid, stream_sid, caller_number, called_number, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, agent_id, call_sid, stream_sid, caller_number, called_number, status, title, summary, started_at, ended_at, created_at, updated_at`

// CreateConversation opens the conversation record for a call.
func (s *Store) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	var conversation Conversation
	err := s.db.GetContext(ctx, &conversation, sqlCreateConversation,
		params.AgentID,
		params.CallSid,
		params.StreamSid,
		params.CallerNumber,
		params.CalledNumber,
		ConversationStatusInProgress,
	)
	if err != nil {
		s.logger.Error(ctx, "failed to create conversation", err)
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

const sqlGetConversationByID = `
SELECT id, agent_id, call_sid, stream_sid, caller_number, called_number, status, title, summary, started_at, ended_at, created_at, updated_at
FROM conversations WHERE id = $1`

// GetConversation returns a conversation by its identifier.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	var conversation Conversation
	err := s.db.GetContext(ctx, &conversation, sqlGetConversationByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get conversation by ID", err)
		return Conversation{}, fmt.Errorf("failed to get conversation by ID: %w", err)
	}
	return conversation, nil
}

const sqlListRecentConversations = `
SELECT id, agent_id, call_sid, stream_sid, caller_number, called_number, status, title, summary, started_at, ended_at, created_at, updated_at
FROM conversations
ORDER BY started_at DESC
LIMIT $1`

// ListRecentConversations returns the most recent calls, newest first.
func (s *Store) ListRecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	var conversations []Conversation
	err := s.db.SelectContext(ctx, &conversations, sqlListRecentConversations, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list recent conversations", err)
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	return conversations, nil
}

const sqlGetAllMessagesByConversationID = `
SELECT id, conversation_id, role, content, created_at
FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`

// GetAllMessagesByConversationID returns a conversation's transcript turns in order.
func (s *Store) GetAllMessagesByConversationID(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	var messages []Message
	err := s.db.SelectContext(ctx, &messages, sqlGetAllMessagesByConversationID, conversationID)
	if err != nil {
		s.logger.Error(ctx, "failed to get all messages by conversation ID", err)
		return nil, fmt.Errorf("failed to get all messages by conversation ID: %w", err)
	}
	return messages, nil
}

const sqlCreateMessageForConversationID = `
INSERT INTO messages (conversation_id, role, content)
VALUES ($1, $2, $3)
RETURNING id, conversation_id, role, content, created_at`

// CreateMessage appends a transcript turn to a conversation.
func (s *Store) CreateMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message, sqlCreateMessageForConversationID, conversationID, role, content)
	if err != nil {
		s.logger.Error(ctx, "failed to create message", err)
		return Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	return message, nil
}

const sqlCompleteConversation = `
UPDATE conversations SET status = $1, ended_at = $2, updated_at = NOW() WHERE id = $3`

// CompleteConversation marks a conversation finished with its end timestamp.
func (s *Store) CompleteConversation(ctx context.Context, conversationID uuid.UUID, endedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, sqlCompleteConversation, ConversationStatusCompleted, endedAt, conversationID)
	if err != nil {
		s.logger.Error(ctx, "failed to complete conversation", err)
		return fmt.Errorf("failed to complete conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

const sqlUpdateConversationSummary = `
UPDATE conversations SET title = $1, summary = $2, updated_at = NOW() WHERE id = $3`

// UpdateConversationSummary stores the post-call title and summary.
func (s *Store) UpdateConversationSummary(ctx context.Context, conversationID uuid.UUID, title, summary string) error {
	result, err := s.db.ExecContext(ctx, sqlUpdateConversationSummary, title, summary, conversationID)
	if err != nil {
		s.logger.Error(ctx, "failed to update conversation summary", err)
		return fmt.Errorf("failed to update conversation summary: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
