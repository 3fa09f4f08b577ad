package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"bookcal/internal/calendar"
	"bookcal/internal/model"
)

func TestExport_OneEventPerBooking(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}

	overnight := model.Booking{
		ID:           "a",
		ResourceName: "Confocal Microscope",
		UserName:     "Ada",
		Start:        time.Date(2024, 3, 12, 22, 0, 0, 0, loc),
		End:          time.Date(2024, 3, 13, 2, 0, 0, 0, loc),
		Notes:        "overnight run",
		Status:       "confirmed",
	}
	pending := model.Booking{
		ResourceID:   "r2",
		ResourceName: "Mass Spec",
		UserName:     "Grace",
		Start:        time.Date(2024, 3, 14, 9, 0, 0, 0, loc),
		End:          time.Date(2024, 3, 14, 10, 0, 0, 0, loc),
		Status:       "pending",
	}

	p := calendar.PeriodFor(calendar.Week, model.Date{Year: 2024, Month: time.March, Day: 13})
	grid := calendar.BuildGrid(p, []model.Booking{overnight, pending}, loc)

	bookings := Bookings(grid)
	if len(bookings) != 2 {
		t.Fatalf("bookings = %d, want 2 (overnight split counted once)", len(bookings))
	}

	out := Export(Feed{
		Name:     "Bookings",
		Timezone: "Europe/Stockholm",
		Stamp:    time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC),
	}, bookings)

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v\n%s", err, out)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}

	first := events[0]
	if uid := first.GetProperty(ical.ComponentPropertyUniqueId); uid == nil || uid.Value != "a@bookcal" {
		t.Fatalf("uid = %+v", uid)
	}
	if dt := first.GetProperty(ical.ComponentPropertyDtStart); dt == nil || dt.Value != "20240312T210000Z" {
		t.Fatalf("dtstart = %+v", dt)
	}
	if dt := first.GetProperty(ical.ComponentPropertyDtEnd); dt == nil || dt.Value != "20240313T010000Z" {
		t.Fatalf("dtend = %+v", dt)
	}
	if s := first.GetProperty(ical.ComponentPropertySummary); s == nil || s.Value != "Confocal Microscope: Ada" {
		t.Fatalf("summary = %+v", s)
	}

	second := events[1]
	if st := second.GetProperty(ical.ComponentPropertyStatus); st == nil || st.Value != string(ical.ObjectStatusTentative) {
		t.Fatalf("status = %+v", st)
	}
	uid := second.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || !strings.HasSuffix(uid.Value, "@bookcal") || uid.Value == "@bookcal" {
		t.Fatalf("synthetic uid = %+v", uid)
	}
	if again := eventUID(pending); again != uid.Value {
		t.Fatalf("synthetic uid not stable: %q vs %q", again, uid.Value)
	}
}

func TestExport_EmptyPeriod(t *testing.T) {
	t.Parallel()

	out := Export(Feed{Stamp: time.Unix(0, 0)}, nil)
	if !strings.Contains(out, "BEGIN:VCALENDAR") || strings.Contains(out, "BEGIN:VEVENT") {
		t.Fatalf("unexpected export:\n%s", out)
	}
}
