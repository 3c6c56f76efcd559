package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KnowledgeDocument is reference material folded into an agent's instructions.
type KnowledgeDocument struct {
	ID        uuid.UUID `db:"id" json:"id"`
	AgentID   uuid.UUID `db:"agent_id" json:"agent_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const sqlListKnowledgeDocumentsByAgentID = `
SELECT id, agent_id, title, content, created_at, updated_at
FROM knowledge_documents
WHERE agent_id = $1
ORDER BY created_at ASC`

// ListKnowledgeDocumentsByAgentID returns all knowledge documents for an agent.
func (s *Store) ListKnowledgeDocumentsByAgentID(ctx context.Context, agentID uuid.UUID) ([]KnowledgeDocument, error) {
	var docs []KnowledgeDocument
	err := s.db.SelectContext(ctx, &docs, sqlListKnowledgeDocumentsByAgentID, agentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list knowledge documents by agent ID", err)
		return nil, fmt.Errorf("failed to list knowledge documents by agent ID: %w", err)
	}
	return docs, nil
}
