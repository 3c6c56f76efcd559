package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appointment is a calendar entry owned by an agency.
type Appointment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AgentID        uuid.UUID  `db:"agent_id" json:"agent_id"`
	ConversationID *uuid.UUID `db:"conversation_id" json:"conversation_id,omitempty"`
	Title          string     `db:"title" json:"title"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const AppointmentStatusScheduled = "scheduled"
const AppointmentStatusCancelled = "cancelled"
const AppointmentStatusCompleted = "completed"

// CreateAppointmentParams represents parameters for creating a calendar entry
type CreateAppointmentParams struct {
	AgentID        uuid.UUID
	ConversationID *uuid.UUID
	Title          string
	Notes          *string
	StartTime      time.Time
	EndTime        time.Time
}

const sqlCreateAppointment = `
INSERT INTO appointments (agent_id, conversation_id, title, notes, start_time, end_time, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, agent_id, conversation_id, title, notes, start_time, end_time, status, created_at, updated_at`

// CreateAppointment inserts a new scheduled calendar entry.
func (s *Store) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (Appointment, error) {
	var appointment Appointment
	err := s.db.GetContext(ctx, &appointment, sqlCreateAppointment,
		params.AgentID,
		params.ConversationID,
		params.Title,
		params.Notes,
		params.StartTime,
		params.EndTime,
		AppointmentStatusScheduled,
	)
	if err != nil {
		s.logger.Error(ctx, "failed to create appointment", err)
		return Appointment{}, fmt.Errorf("failed to create appointment: %w", err)
	}
	return appointment, nil
}

const sqlListAppointmentsInRange = `
SELECT id, agent_id, conversation_id, title, notes, start_time, end_time, status, created_at, updated_at
FROM appointments
WHERE agent_id = $1 AND start_time < $3 AND end_time > $2
ORDER BY start_time ASC`

// ListAppointmentsInRange returns an agent's calendar entries overlapping
// [from, to), any status. Cancelled entries are filtered by the caller.
func (s *Store) ListAppointmentsInRange(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	var appointments []Appointment
	err := s.db.SelectContext(ctx, &appointments, sqlListAppointmentsInRange, agentID, from, to)
	if err != nil {
		s.logger.Error(ctx, "failed to list appointments in range", err)
		return nil, fmt.Errorf("failed to list appointments in range: %w", err)
	}
	return appointments, nil
}

const sqlListUpcomingAppointmentsByAgentID = `
SELECT id, agent_id, conversation_id, title, notes, start_time, end_time, status, created_at, updated_at
FROM appointments
WHERE agent_id = $1 AND start_time >= $2 AND status = $3
ORDER BY start_time ASC
LIMIT $4`

// ListUpcomingAppointmentsByAgentID returns an agent's next scheduled appointments.
func (s *Store) ListUpcomingAppointmentsByAgentID(ctx context.Context, agentID uuid.UUID, after time.Time, limit int) ([]Appointment, error) {
	var appointments []Appointment
	err := s.db.SelectContext(ctx, &appointments, sqlListUpcomingAppointmentsByAgentID,
		agentID, after, AppointmentStatusScheduled, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list upcoming appointments", err)
		return nil, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}
	return appointments, nil
}

const sqlGetAppointmentByID = `
SELECT id, agent_id, conversation_id, title, notes, start_time, end_time, status, created_at, updated_at
FROM appointments WHERE id = $1`

// GetAppointmentByID returns an appointment by its identifier.
func (s *Store) GetAppointmentByID(ctx context.Context, id uuid.UUID) (Appointment, error) {
	var appointment Appointment
	err := s.db.GetContext(ctx, &appointment, sqlGetAppointmentByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get appointment by ID", err)
		return Appointment{}, fmt.Errorf("failed to get appointment by ID: %w", err)
	}
	return appointment, nil
}
