package calendar

import (
	"time"

	"bookcal/internal/model"
)

// Clip is the part of a booking that falls on one calendar day.
type Clip struct {
	Booking model.Booking
	Start   time.Time
	End     time.Time
}

// BookingsForDay returns every booking visible on day, clipped to it.
//
// A booking is visible when its local start date is on or before day and
// its local end date is on or after day. A booking that began earlier is
// clipped to the first instant of day; one that continues past day is
// clipped to the first instant of the following day. Input order is kept and zero-width clips are
// returned like any other.
func BookingsForDay(all []model.Booking, day model.Date, loc *time.Location) []Clip {
	dayStart := day.Midnight(loc)
	nextStart := day.AddDays(1).Midnight(loc)

	out := make([]Clip, 0)
	for _, b := range all {
		start := b.Start.In(loc)
		end := b.End.In(loc)
		startDate := model.DateOf(start)
		endDate := model.DateOf(end)

		if day.Before(startDate) || day.After(endDate) {
			continue
		}

		clip := Clip{Booking: b, Start: dayStart, End: nextStart}
		if startDate == day {
			clip.Start = start
		}
		if endDate == day {
			clip.End = end
		}
		out = append(out, clip)
	}
	return out
}
