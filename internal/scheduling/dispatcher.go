package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"frontdesk-server/internal/observability"

	"github.com/google/uuid"
)

// Tool names advertised to the realtime model.
const (
	ToolCheckAvailability    = "check_availability"
	ToolBookAppointment      = "book_appointment"
	ToolGetNextAvailableSlot = "get_next_available_slot"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Dispatcher executes model tool calls and renders the result as the JSON
// string handed back to the realtime session. It never returns an error:
// failures become error-status payloads the model can relay to the caller.
type Dispatcher struct {
	engine    *Engine
	publisher EventPublisher
	notifier  BookingNotifier
	logger    *observability.Logger
}

func NewDispatcher(engine *Engine, publisher EventPublisher, notifier BookingNotifier, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

type availabilityResult struct {
	Status string `json:"status"`
	Availability
}

type nextSlotResult struct {
	Status string `json:"status"`
	NextSlot
}

type bookingResult struct {
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Message       string `json:"message"`
}

type errorResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, agentID, conversationID uuid.UUID, name, arguments string) string {
	ctx = observability.WithFields(ctx, observability.Field{Key: "tool", Value: name})

	switch name {
	case ToolCheckAvailability:
		return d.checkAvailability(ctx, agentID, arguments)
	case ToolBookAppointment:
		return d.bookAppointment(ctx, agentID, conversationID, arguments)
	case ToolGetNextAvailableSlot:
		return d.nextAvailableSlot(ctx, agentID, arguments)
	default:
		d.logger.Warn(ctx, "model requested unknown tool")
		return errorJSON(fmt.Sprintf("unknown function: %s", name))
	}
}

func (d *Dispatcher) checkAvailability(ctx context.Context, agentID uuid.UUID, arguments string) string {
	var args struct {
		Date     string `json:"date"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		d.logger.InfoWithError(ctx, "could not parse tool arguments", err)
		return errorJSON("could not understand the requested date")
	}

	availability, err := d.engine.CheckAvailability(ctx, agentID, args.Date, args.Duration)
	if err != nil {
		return errorJSON("the calendar is unavailable right now")
	}
	return marshalResult(availabilityResult{Status: statusSuccess, Availability: availability})
}

func (d *Dispatcher) bookAppointment(ctx context.Context, agentID, conversationID uuid.UUID, arguments string) string {
	var args struct {
		DateTime string `json:"dateTime"`
		Duration int    `json:"duration"`
		Title    string `json:"title"`
		Notes    string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		d.logger.InfoWithError(ctx, "could not parse tool arguments", err)
		return errorJSON("could not understand the booking details")
	}

	var conversationRef *uuid.UUID
	if conversationID != uuid.Nil {
		conversationRef = &conversationID
	}

	appointment, err := d.engine.BookAppointment(ctx, agentID, conversationRef, args.DateTime, args.Duration, args.Title, args.Notes)
	if err != nil {
		if errors.Is(err, ErrInvalidDateTime) {
			return errorJSON("could not understand the requested date and time")
		}
		return errorJSON("the booking could not be saved")
	}

	if d.publisher != nil {
		go d.publisher.PublishAppointmentBooked(context.WithoutCancel(ctx), appointment)
	}
	if d.notifier != nil {
		go d.notifier.SendBookingNotification(context.WithoutCancel(ctx), appointment)
	}

	return marshalResult(bookingResult{
		Status:        statusSuccess,
		AppointmentID: appointment.ID.String(),
		StartTime:     appointment.StartTime.Format(time.RFC3339),
		EndTime:       appointment.EndTime.Format(time.RFC3339),
		Message:       fmt.Sprintf("Booked %s for %s.", appointment.Title, appointment.StartTime.Format("Monday, January 2 at 3:04 PM")),
	})
}

func (d *Dispatcher) nextAvailableSlot(ctx context.Context, agentID uuid.UUID, arguments string) string {
	var args struct {
		Duration     int `json:"duration"`
		DaysToSearch int `json:"daysToSearch"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		d.logger.InfoWithError(ctx, "could not parse tool arguments", err)
		return errorJSON("could not understand the request")
	}

	next, err := d.engine.GetNextAvailableSlot(ctx, agentID, args.Duration, args.DaysToSearch)
	if err != nil {
		return errorJSON("the calendar is unavailable right now")
	}
	return marshalResult(nextSlotResult{Status: statusSuccess, NextSlot: next})
}

func marshalResult(result any) string {
	payload, err := json.Marshal(result)
	if err != nil {
		return `{"status":"error","message":"internal error"}`
	}
	return string(payload)
}

func errorJSON(message string) string {
	return marshalResult(errorResult{Status: statusError, Message: message})
}
