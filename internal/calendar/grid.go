package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"bookcal/internal/model"
)

type Mode int

const (
	Week Mode = iota
	Month
)

func (m Mode) String() string {
	if m == Month {
		return "month"
	}
	return "week"
}

// ParseMode accepts "week" or "month".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "":
		return Week, nil
	case "month":
		return Month, nil
	default:
		return Week, fmt.Errorf("calendar: unknown view mode %q", s)
	}
}

// Period is a run of consecutive calendar days shown together.
type Period struct {
	Mode  Mode
	Start model.Date
	Days  int
}

// WeekStart returns the Monday on or before d, whatever the locale's
// first day of week.
func WeekStart(d model.Date) model.Date {
	diff := (7 + int(d.Weekday()-time.Monday)) % 7
	return d.AddDays(-diff)
}

func MonthStart(d model.Date) model.Date {
	return model.Date{Year: d.Year, Month: d.Month, Day: 1}
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// PeriodFor returns the week or month containing selected.
func PeriodFor(mode Mode, selected model.Date) Period {
	if mode == Month {
		return Period{Mode: Month, Start: MonthStart(selected), Days: DaysInMonth(selected.Year, selected.Month)}
	}
	return Period{Mode: Week, Start: WeekStart(selected), Days: 7}
}

// Last is the final day of the period, inclusive.
func (p Period) Last() model.Date {
	return p.Start.AddDays(p.Days - 1)
}

func (p Period) Contains(d model.Date) bool {
	return !d.Before(p.Start) && !d.After(p.Last())
}

func (p Period) Next() Period {
	if p.Mode == Month {
		return PeriodFor(Month, p.Start.AddDays(p.Days))
	}
	return PeriodFor(Week, p.Start.AddDays(7))
}

func (p Period) Prev() Period {
	if p.Mode == Month {
		return PeriodFor(Month, p.Start.AddDays(-1))
	}
	return PeriodFor(Week, p.Start.AddDays(-7))
}

// UTCRange returns [first local midnight, local midnight after the last
// day) as UTC instants, the window a fetch for this period covers.
func (p Period) UTCRange(loc *time.Location) (time.Time, time.Time) {
	start := p.Start.Midnight(loc)
	end := p.Start.AddDays(p.Days).Midnight(loc)
	return start.UTC(), end.UTC()
}

// Header is the title shown above the grid.
func (p Period) Header() string {
	first := p.Start.Midnight(time.UTC)
	if p.Mode == Month {
		return first.Format("January 2006")
	}
	last := p.Last().Midnight(time.UTC)
	return fmt.Sprintf("Week of %s - %s", first.Format("January 2"), last.Format("January 2, 2006"))
}

// EnumerateDays lists the civil dates of the period in ascending order.
func EnumerateDays(p Period) []model.Date {
	if p.Days <= 0 {
		return nil
	}

	// Noon UTC keeps the daily rule clear of any DST arithmetic.
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: time.Date(p.Start.Year, p.Start.Month, p.Start.Day, 12, 0, 0, 0, time.UTC),
		Count:   p.Days,
	})
	if err != nil {
		out := make([]model.Date, 0, p.Days)
		for i := 0; i < p.Days; i++ {
			out = append(out, p.Start.AddDays(i))
		}
		return out
	}

	occurrences := r.All()
	out := make([]model.Date, 0, len(occurrences))
	for _, t := range occurrences {
		out = append(out, model.DateOf(t))
	}
	return out
}

// BuildGrid resolves and places every booking for each day of the period.
// It is a pure function of its inputs: bookings is not modified and two
// calls with the same arguments return equal grids.
func BuildGrid(p Period, bookings []model.Booking, loc *time.Location) model.Grid {
	dates := EnumerateDays(p)
	days := make([]model.CalendarDay, 0, len(dates))
	for _, date := range dates {
		clips := BookingsForDay(bookings, date, loc)
		placements := make([]model.Placement, 0, len(clips))
		for _, c := range clips {
			placements = append(placements, model.Placement{
				Booking:   c.Booking,
				ClipStart: c.Start,
				ClipEnd:   c.End,
				Geometry:  ComputeGeometry(c.Start, c.End),
			})
		}
		days = append(days, model.CalendarDay{Date: date, Bookings: placements})
	}
	return model.Grid{Days: days}
}
