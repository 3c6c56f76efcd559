package scheduling

import (
	"regexp"
	"strings"
	"time"
)

var nextWeekdayPattern = regexp.MustCompile(`(?i)next\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)

var weekdaysByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// resolveDateSpec turns a caller phrase like "tomorrow" or "next friday" into
// local midnight of the requested day. Unparseable input falls back to today.
func resolveDateSpec(spec string, now time.Time, loc *time.Location) time.Time {
	today := midnight(now.In(loc))
	normalized := strings.ToLower(strings.TrimSpace(spec))

	switch normalized {
	case "", "today":
		return today
	case "tomorrow":
		return today.AddDate(0, 0, 1)
	}

	if match := nextWeekdayPattern.FindStringSubmatch(normalized); match != nil {
		target := weekdaysByName[strings.ToLower(match[1])]
		daysAhead := (int(target) - int(today.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return today.AddDate(0, 0, daysAhead)
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, spec, loc); err == nil {
			return midnight(parsed)
		}
	}
	if parsed, err := time.Parse(time.RFC3339, spec); err == nil {
		return midnight(parsed.In(loc))
	}

	return today
}

// parseStartTime parses an appointment start timestamp in the agency's timezone.
func parseStartTime(value string, loc *time.Location) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.In(loc), nil
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, value, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, ErrInvalidDateTime
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
