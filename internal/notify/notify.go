// Package notify sends agency-facing email notifications for bookings made
// over the phone. Sending is fire-and-forget: failures are logged and never
// surface to the call.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// AgentStore looks up the agency a booking belongs to.
type AgentStore interface {
	GetAgentByID(ctx context.Context, agentID uuid.UUID) (store.Agent, error)
}

// Mailer delivers rendered notification emails.
type Mailer interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

const bookingTemplate = `
<html>
	<body>
		<h1>New Appointment Booked</h1>
		<p>A caller booked an appointment with {{.AgencyName}} over the phone.</p>
		<p><strong>{{.Title}}</strong></p>
		<p>{{.Date}}, {{.StartTime}} to {{.EndTime}}</p>
		{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}
		<p>This appointment was scheduled by your AI receptionist.</p>
	</body>
</html>
`

type bookingTemplateData struct {
	AgencyName string
	Title      string
	Date       string
	StartTime  string
	EndTime    string
	Notes      string
}

// Service renders and sends booking notifications. A nil mailer disables
// sending entirely.
type Service struct {
	store         AgentStore
	mailer        Mailer
	defaultSender string
	location      *time.Location
	logger        *observability.Logger
}

// New creates a new notification service
func New(agentStore AgentStore, mailer Mailer, defaultSender string, location *time.Location, logger *observability.Logger) *Service {
	return &Service{
		store:         agentStore,
		mailer:        mailer,
		defaultSender: defaultSender,
		location:      location,
		logger:        logger,
	}
}

// SendBookingNotification emails the agency about a new appointment when a
// notification address is configured on the agent.
func (s *Service) SendBookingNotification(ctx context.Context, appointment store.Appointment) {
	if s.mailer == nil {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "appointment_id", Value: appointment.ID.String()},
		observability.Field{Key: "agent_id", Value: appointment.AgentID.String()},
	)

	agent, err := s.store.GetAgentByID(ctx, appointment.AgentID)
	if err != nil {
		s.logger.Error(ctx, "failed to look up agent for booking notification", err)
		return
	}
	if agent.NotificationEmail == nil || *agent.NotificationEmail == "" {
		s.logger.Debug(ctx, "Agent has no notification email, skipping booking notification")
		return
	}

	start := appointment.StartTime.In(s.location)
	end := appointment.EndTime.In(s.location)
	data := bookingTemplateData{
		AgencyName: agent.AgencyName,
		Title:      appointment.Title,
		Date:       start.Format("Monday, January 2, 2006"),
		StartTime:  start.Format("3:04 PM"),
		EndTime:    end.Format("3:04 PM"),
	}
	if appointment.Notes != nil {
		data.Notes = *appointment.Notes
	}

	htmlContent, err := renderBookingEmail(data)
	if err != nil {
		s.logger.Error(ctx, "failed to render booking notification", err)
		return
	}

	subject := fmt.Sprintf("New appointment: %s on %s", appointment.Title, start.Format("January 2"))
	if _, err := s.mailer.SendEmail(ctx, s.defaultSender, *agent.NotificationEmail, subject, htmlContent); err != nil {
		s.logger.Error(ctx, "failed to send booking notification", err)
	}
}

// renderBookingEmail renders the booking template with the provided data
func renderBookingEmail(data bookingTemplateData) (string, error) {
	tmpl, err := template.New("booking").Parse(bookingTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
