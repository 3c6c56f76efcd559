// Package agents resolves which AI receptionist answers a call and assembles
// the session profile handed to the realtime service.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"frontdesk-server/internal/clients/openai"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"

	"github.com/google/uuid"
)

// ErrAgentNotFound means no active agent is bound to the called number. The
// call cannot proceed.
var ErrAgentNotFound = errors.New("no active agent for called number")

const defaultVoice = "alloy"

const languagePreamble = "You are a professional phone receptionist on a live voice call. " +
	"Keep every reply short and natural to say out loud, one or two sentences. " +
	"Speak English unless the caller clearly prefers another language. " +
	"Never mention that you are an AI model or describe your tools."

// Store defines the database operations required by the Configurator
type Store interface {
	GetAgentByPhoneNumber(ctx context.Context, phoneNumber string) (store.Agent, error)
	ListKnowledgeDocumentsByAgentID(ctx context.Context, agentID uuid.UUID) ([]store.KnowledgeDocument, error)
}

// Profile is the read-only per-call snapshot of the answering agent. It is
// resolved once and never mutated afterwards.
type Profile struct {
	AgentID           uuid.UUID
	AgencyName        string
	Voice             string
	Greeting          string
	Instructions      string
	NotificationEmail string
	Tools             []openai.ToolDefinition
}

// Configurator builds Profiles from agent records and their knowledge base.
type Configurator struct {
	store  Store
	logger *observability.Logger
}

func NewConfigurator(store Store, logger *observability.Logger) *Configurator {
	return &Configurator{store: store, logger: logger}
}

// ProfileForNumber resolves the agent answering calledNumber. Returns
// ErrAgentNotFound when the number is unassigned or the agent is inactive.
func (c *Configurator) ProfileForNumber(ctx context.Context, calledNumber string) (Profile, error) {
	agent, err := c.store.GetAgentByPhoneNumber(ctx, calledNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Profile{}, ErrAgentNotFound
		}
		c.logger.Error(ctx, "failed to look up agent for called number", err)
		return Profile{}, fmt.Errorf("failed to look up agent: %w", err)
	}

	documents, err := c.store.ListKnowledgeDocumentsByAgentID(ctx, agent.ID)
	if err != nil {
		// A missing knowledge base degrades answers, it does not block the call.
		c.logger.InfoWithError(ctx, "failed to load knowledge documents, continuing without them", err)
		documents = nil
	}

	profile := Profile{
		AgentID:      agent.ID,
		AgencyName:   agent.AgencyName,
		Voice:        defaultVoice,
		Instructions: buildInstructions(agent, documents),
		Tools:        schedulingTools(),
	}
	if agent.Voice != nil && *agent.Voice != "" {
		profile.Voice = *agent.Voice
	}
	if agent.Greeting != nil {
		profile.Greeting = *agent.Greeting
	}
	if agent.NotificationEmail != nil {
		profile.NotificationEmail = *agent.NotificationEmail
	}
	return profile, nil
}

// buildInstructions concatenates the language preamble, the agent's prompt
// (or a generic fallback), and a knowledge block when documents exist.
func buildInstructions(agent store.Agent, documents []store.KnowledgeDocument) string {
	var b strings.Builder
	b.WriteString(languagePreamble)
	b.WriteString("\n\n")

	if agent.SystemPrompt != nil && strings.TrimSpace(*agent.SystemPrompt) != "" {
		b.WriteString(strings.TrimSpace(*agent.SystemPrompt))
	} else {
		fmt.Fprintf(&b, "You answer the phone for %s. Help callers with their questions and offer to schedule an appointment when it would serve them.", agent.AgencyName)
	}

	if len(documents) > 0 {
		b.WriteString("\n\nUse the following business information when answering:\n")
		for _, document := range documents {
			fmt.Fprintf(&b, "\n## %s\n%s\n", document.Title, strings.TrimSpace(document.Content))
		}
	}

	return b.String()
}

func schedulingTools() []openai.ToolDefinition {
	return []openai.ToolDefinition{
		{
			Type:        "function",
			Name:        "check_availability",
			Description: "Check open appointment slots on a given day. Use this before offering times to the caller.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date": map[string]any{
						"type":        "string",
						"description": "The day to check. Accepts 'today', 'tomorrow', 'next monday', or a date like 2026-06-04.",
					},
					"duration": map[string]any{
						"type":        "number",
						"description": "Appointment length in minutes. Defaults to 30.",
					},
				},
				"required": []string{"date"},
			},
		},
		{
			Type:        "function",
			Name:        "book_appointment",
			Description: "Book an appointment once the caller has confirmed a specific date and time.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dateTime": map[string]any{
						"type":        "string",
						"description": "Start of the appointment, e.g. 2026-06-04T15:00:00.",
					},
					"duration": map[string]any{
						"type":        "number",
						"description": "Appointment length in minutes. Defaults to 30.",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Short label for the appointment, such as the service requested.",
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Caller details worth keeping: name, phone, reason for visit.",
					},
				},
				"required": []string{"dateTime"},
			},
		},
		{
			Type:        "function",
			Name:        "get_next_available_slot",
			Description: "Find the earliest open appointment slot when the caller has no particular day in mind.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"duration": map[string]any{
						"type":        "number",
						"description": "Appointment length in minutes. Defaults to 30.",
					},
					"daysToSearch": map[string]any{
						"type":        "number",
						"description": "How many days ahead to search, at most 30.",
					},
				},
			},
		},
	}
}
