package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bookcal/internal/model"
	"bookcal/internal/observe"
	"bookcal/internal/tz"
)

const (
	// Placeholder stands in for resource or user names the backend join
	// did not return.
	Placeholder   = "Unknown"
	DefaultStatus = "confirmed"

	EventRowDropped = "booking.row_dropped"
)

var (
	ErrInvalidTimestamp = errors.New("calendar: invalid timestamp")
	ErrInvertedRange    = errors.New("calendar: booking does not end after it starts")
)

// Layouts carrying a zone designator. Fractional seconds are accepted by
// time.Parse even where the layout omits them.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
}

// Layouts without a designator; values are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a backend timestamp into a UTC instant.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
}

// FromRow builds a Booking from a backend row. Rows whose start or end
// cannot be parsed, or that do not end after they start, are rejected;
// every other missing field degrades to a default.
func FromRow(row model.RawRow, norm *tz.Normalizer) (model.Booking, error) {
	start, err := ParseTimestamp(row.Start)
	if err != nil {
		return model.Booking{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseTimestamp(row.End)
	if err != nil {
		return model.Booking{}, fmt.Errorf("end_time: %w", err)
	}
	if !end.After(start) {
		return model.Booking{}, fmt.Errorf("%w: %s .. %s", ErrInvertedRange, row.Start, row.End)
	}

	var created time.Time
	if t, err := ParseTimestamp(row.CreatedAt); err == nil {
		created = norm.ToLocal(t)
	}

	return model.Booking{
		ID:           strings.TrimSpace(row.ID),
		ResourceID:   strings.TrimSpace(row.ResourceID),
		ResourceName: nameOrPlaceholder(row.ResourceName),
		UserID:       strings.TrimSpace(row.UserID),
		UserName:     nameOrPlaceholder(row.UserName),
		Start:        norm.ToLocal(start),
		End:          norm.ToLocal(end),
		Notes:        row.Notes,
		Status:       fallback(row.Status, DefaultStatus),
		CreatedAt:    created,
	}, nil
}

// FromRows converts rows in order, dropping the ones FromRow rejects.
func FromRows(rows []model.RawRow, norm *tz.Normalizer, obs observe.Observer) []model.Booking {
	obs = observe.OrNop(obs)
	out := make([]model.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := FromRow(row, norm)
		if err != nil {
			obs.Observe(observe.Event{
				Name:     EventRowDropped,
				Severity: observe.SeverityWarn,
				Err:      err,
				Attrs:    []any{"id", row.ID},
			})
			continue
		}
		out = append(out, b)
	}
	return out
}

func nameOrPlaceholder(v *string) string {
	if v == nil {
		return Placeholder
	}
	return fallback(*v, Placeholder)
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}
