package model

import (
	"fmt"
	"time"
)

// RawRow is a booking row as the backend returns it, before timezone
// normalization. Timestamps are kept as text; ResourceName and UserName are
// nil when the relational join produced nothing.
type RawRow struct {
	ID         string
	UserID     string
	ResourceID string

	Start     string
	End       string
	CreatedAt string

	Notes  string
	Status string

	ResourceName *string
	UserName     *string
}

// Booking is a normalized, immutable booking. All instants are expressed in
// the display timezone.
type Booking struct {
	ID string

	ResourceID   string
	ResourceName string

	UserID   string
	UserName string

	// Start is strictly before End.
	Start time.Time
	End   time.Time

	Notes  string
	Status string

	// CreatedAt is the zero time when the backend did not supply it.
	CreatedAt time.Time
}

// Duration is the real elapsed time of the booking.
func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Date is a civil calendar date without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Midnight returns the first instant of the date in loc. Where 00:00 is
// skipped by a clock change, that is the end of the gap (01:00 in
// America/Havana on 2024-03-10), never an instant of the previous day.
func (d Date) Midnight(loc *time.Location) time.Time {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	if !DateOf(t).Before(d) {
		return t
	}
	if _, end := t.ZoneBounds(); !end.IsZero() {
		return end
	}
	return t
}

// AddDays moves the date by n civil days.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DayGeometry places one booking inside one day column. Units are minutes;
// the rendering surface maps one minute to one unit.
type DayGeometry struct {
	TopOffsetMinutes int
	HeightMinutes    int
}

// Placement pairs a booking with its clipped span and geometry for one day.
type Placement struct {
	Booking Booking

	// ClipStart / ClipEnd bound the portion of the booking on this day.
	// ClipEnd is the next local midnight when the booking continues.
	ClipStart time.Time
	ClipEnd   time.Time

	Geometry DayGeometry
}

// CalendarDay is one column of the grid.
type CalendarDay struct {
	Date Date
	// Bookings keeps fetch order (ascending by start).
	Bookings []Placement
}

// Grid is the ready-to-render output for one display period.
type Grid struct {
	Days []CalendarDay
}

// TimeSlot is one hour marker on the day axis.
type TimeSlot struct {
	Hour int
}

func (s TimeSlot) Label() string { return fmt.Sprintf("%02d:00", s.Hour) }

// Top is the marker offset in minutes from midnight.
func (s TimeSlot) Top() int { return s.Hour * 60 }

// HourSlots returns the 24 hour markers of a day column.
func HourSlots() []TimeSlot {
	out := make([]TimeSlot, 24)
	for h := range out {
		out[h] = TimeSlot{Hour: h}
	}
	return out
}
