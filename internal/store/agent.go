package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent is an AI receptionist bound to an inbound phone number.
type Agent struct {
	ID                uuid.UUID `db:"id" json:"id"`
	AgencyName        string    `db:"agency_name" json:"agency_name"`
	PhoneNumber       string    `db:"phone_number" json:"phone_number"`
	SystemPrompt      *string   `db:"system_prompt" json:"system_prompt,omitempty"`
	Voice             *string   `db:"voice" json:"voice,omitempty"`
	Greeting          *string   `db:"greeting" json:"greeting,omitempty"`
	NotificationEmail *string   `db:"notification_email" json:"notification_email,omitempty"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

const sqlGetAgentByPhoneNumber = `
SELECT id, agency_name, phone_number, system_prompt, voice, greeting, notification_email, active, created_at, updated_at
FROM agents
WHERE phone_number = $1 AND active = true`

// GetAgentByPhoneNumber returns the active agent assigned to a called number.
func (s *Store) GetAgentByPhoneNumber(ctx context.Context, phoneNumber string) (Agent, error) {
	var agent Agent
	err := s.db.GetContext(ctx, &agent, sqlGetAgentByPhoneNumber, phoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get agent by phone number", err)
		return Agent{}, fmt.Errorf("failed to get agent by phone number: %w", err)
	}
	return agent, nil
}

const sqlGetAgentByID = `
SELECT id, agency_name, phone_number, system_prompt, voice, greeting, notification_email, active, created_at, updated_at
FROM agents
WHERE id = $1`

// GetAgentByID returns an agent by its identifier.
func (s *Store) GetAgentByID(ctx context.Context, agentID uuid.UUID) (Agent, error) {
	var agent Agent
	err := s.db.GetContext(ctx, &agent, sqlGetAgentByID, agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get agent by ID", err)
		return Agent{}, fmt.Errorf("failed to get agent by ID: %w", err)
	}
	return agent, nil
}
