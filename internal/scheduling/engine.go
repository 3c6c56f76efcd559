// Package scheduling books appointments against an agency's calendar during
// business hours and answers availability questions on behalf of the voice agent.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"

	"github.com/google/uuid"
)

const (
	businessOpenHour  = 9
	businessCloseHour = 17

	slotInterval       = 30 * time.Minute
	defaultDurationMin = 30

	defaultSearchDays = 14
	maxSearchDays     = 30
	maxAlternatives   = 3
	maxSpokenSlots    = 6
)

var ErrInvalidDateTime = errors.New("invalid appointment date time")

// Slot is a bookable window inside business hours.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability lists the open slots for a single day.
type Availability struct {
	Date    string `json:"date"`
	Slots   []Slot `json:"slots"`
	Message string `json:"message"`
}

// NextSlot is the earliest open slot across the search horizon.
type NextSlot struct {
	Found        bool   `json:"found"`
	Slot         *Slot  `json:"slot,omitempty"`
	Alternatives []Slot `json:"alternatives,omitempty"`
	Message      string `json:"message"`
}

// Engine computes open slots and writes bookings for one business timezone.
type Engine struct {
	store    CalendarStore
	logger   *observability.Logger
	location *time.Location
	now      func() time.Time
}

func NewEngine(store CalendarStore, location *time.Location, logger *observability.Logger) *Engine {
	return &Engine{
		store:    store,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// CheckAvailability resolves a spoken date reference and returns the open
// slots for that day.
func (e *Engine) CheckAvailability(ctx context.Context, agentID uuid.UUID, dateSpec string, durationMinutes int) (Availability, error) {
	duration := normalizeDuration(durationMinutes)
	day := resolveDateSpec(dateSpec, e.now(), e.location)

	slots, err := e.openSlotsForDay(ctx, agentID, day, duration)
	if err != nil {
		return Availability{}, err
	}

	availability := Availability{Date: day.Format("2006-01-02"), Slots: slots}
	if len(slots) == 0 {
		availability.Message = fmt.Sprintf("No availability on %s.", day.Format("Monday, January 2"))
	} else {
		availability.Message = fmt.Sprintf("%d open slots on %s: %s.", len(slots), day.Format("Monday, January 2"), describeSlots(slots))
	}
	return availability, nil
}

// GetNextAvailableSlot scans forward day by day, skipping weekends, and
// returns the earliest open slot plus a few alternatives from the same day.
func (e *Engine) GetNextAvailableSlot(ctx context.Context, agentID uuid.UUID, durationMinutes, daysToSearch int) (NextSlot, error) {
	duration := normalizeDuration(durationMinutes)
	horizon := normalizeHorizon(daysToSearch)
	now := e.now().In(e.location)
	today := midnight(now)

	for offset := 0; offset < horizon; offset++ {
		day := today.AddDate(0, 0, offset)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}

		slots, err := e.openSlotsForDay(ctx, agentID, day, duration)
		if err != nil {
			return NextSlot{}, err
		}
		if offset == 0 {
			slots = filterPastSlots(slots, now)
		}
		if len(slots) == 0 {
			continue
		}

		first := slots[0]
		alternatives := slots[1:]
		if len(alternatives) > maxAlternatives {
			alternatives = alternatives[:maxAlternatives]
		}
		return NextSlot{
			Found:        true,
			Slot:         &first,
			Alternatives: alternatives,
			Message:      fmt.Sprintf("Next opening is %s at %s.", day.Format("Monday, January 2"), first.Start.Format("3:04 PM")),
		}, nil
	}

	return NextSlot{Message: fmt.Sprintf("No openings in the next %d days.", horizon)}, nil
}

// BookAppointment writes the booking as given. Availability is not re-checked
// here, so two concurrent callers can take the same slot.
func (e *Engine) BookAppointment(ctx context.Context, agentID uuid.UUID, conversationID *uuid.UUID, startValue string, durationMinutes int, title, notes string) (store.Appointment, error) {
	start, err := parseStartTime(startValue, e.location)
	if err != nil {
		return store.Appointment{}, err
	}

	duration := normalizeDuration(durationMinutes)
	if title == "" {
		title = "Phone appointment"
	}

	params := store.CreateAppointmentParams{
		AgentID:        agentID,
		ConversationID: conversationID,
		Title:          title,
		StartTime:      start,
		EndTime:        start.Add(duration),
	}
	if notes != "" {
		params.Notes = &notes
	}

	appointment, err := e.store.CreateAppointment(ctx, params)
	if err != nil {
		e.logger.Error(ctx, "failed to create appointment", err)
		return store.Appointment{}, fmt.Errorf("failed to create appointment: %w", err)
	}
	return appointment, nil
}

func (e *Engine) openSlotsForDay(ctx context.Context, agentID uuid.UUID, day time.Time, duration time.Duration) ([]Slot, error) {
	booked, err := e.store.ListAppointmentsInRange(ctx, agentID, day, day.AddDate(0, 0, 1))
	if err != nil {
		e.logger.Error(ctx, "failed to list appointments", err)
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	opensAt := time.Date(day.Year(), day.Month(), day.Day(), businessOpenHour, 0, 0, 0, e.location)
	closesAt := time.Date(day.Year(), day.Month(), day.Day(), businessCloseHour, 0, 0, 0, e.location)

	var slots []Slot
	for start := opensAt; !start.Add(duration).After(closesAt); start = start.Add(slotInterval) {
		end := start.Add(duration)
		if overlapsBooked(start, end, booked) {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots, nil
}

func overlapsBooked(start, end time.Time, booked []store.Appointment) bool {
	for _, appointment := range booked {
		if appointment.Status == store.AppointmentStatusCancelled {
			continue
		}
		if start.Before(appointment.EndTime) && end.After(appointment.StartTime) {
			return true
		}
	}
	return false
}

func filterPastSlots(slots []Slot, now time.Time) []Slot {
	var upcoming []Slot
	for _, slot := range slots {
		if slot.Start.After(now) {
			upcoming = append(upcoming, slot)
		}
	}
	return upcoming
}

func describeSlots(slots []Slot) string {
	spoken := make([]string, 0, maxSpokenSlots+1)
	for i, slot := range slots {
		if i == maxSpokenSlots {
			spoken = append(spoken, "and later")
			break
		}
		spoken = append(spoken, slot.Start.Format("3:04 PM"))
	}
	return strings.Join(spoken, ", ")
}

func normalizeDuration(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = defaultDurationMin
	}
	return time.Duration(minutes) * time.Minute
}

func normalizeHorizon(days int) int {
	if days <= 0 {
		return defaultSearchDays
	}
	if days > maxSearchDays {
		return maxSearchDays
	}
	return days
}
