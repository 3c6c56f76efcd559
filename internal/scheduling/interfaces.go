package scheduling

import (
	"context"
	"time"

	"frontdesk-server/internal/store"

	"github.com/google/uuid"
)

// CalendarStore defines the database operations required by the Engine
type CalendarStore interface {
	ListAppointmentsInRange(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]store.Appointment, error)
	CreateAppointment(ctx context.Context, params store.CreateAppointmentParams) (store.Appointment, error)
}

// EventPublisher defines the event operations required by the Dispatcher
type EventPublisher interface {
	PublishAppointmentBooked(ctx context.Context, appointment store.Appointment)
}

// BookingNotifier sends the agency a notification after a successful booking
type BookingNotifier interface {
	SendBookingNotification(ctx context.Context, appointment store.Appointment)
}
