package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"bookcal/internal/model"
)

const productID = "-//bookcal//instrument bookings//EN"

// uidSpace namespaces the synthetic UIDs given to bookings without an id.
var uidSpace = uuid.MustParse("6f1c1f0e-3b4a-4d0e-9a55-1f0d1c6b8e21")

// Feed describes the calendar being exported.
type Feed struct {
	Name     string
	Timezone string
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Bookings returns each booking shown in grid once, in order of first
// appearance. A booking split across several days is one event.
func Bookings(grid model.Grid) []model.Booking {
	seen := make(map[string]bool)
	var out []model.Booking
	for _, day := range grid.Days {
		for _, p := range day.Bookings {
			key := eventUID(p.Booking)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p.Booking)
		}
	}
	return out
}

// Export renders bookings as an iCalendar document. Times are written in
// UTC so consumers do not need the display zone's VTIMEZONE.
func Export(feed Feed, bookings []model.Booking) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if feed.Name != "" {
		cal.SetName(feed.Name)
		cal.SetXWRCalName(feed.Name)
	}
	if feed.Timezone != "" {
		cal.SetXWRTimezone(feed.Timezone)
	}

	stamp := feed.Stamp.UTC()
	for _, b := range bookings {
		ev := cal.AddEvent(eventUID(b))
		ev.SetDtStampTime(stamp)
		if !b.CreatedAt.IsZero() {
			ev.SetCreatedTime(b.CreatedAt.UTC())
		}
		ev.SetStartAt(b.Start.UTC())
		ev.SetEndAt(b.End.UTC())
		ev.SetSummary(fmt.Sprintf("%s: %s", b.ResourceName, b.UserName))
		ev.SetLocation(b.ResourceName)
		if notes := strings.TrimSpace(b.Notes); notes != "" {
			ev.SetDescription(notes)
		}
		ev.SetStatus(objectStatus(b.Status))
	}

	return cal.Serialize()
}

func eventUID(b model.Booking) string {
	if b.ID != "" {
		return b.ID + "@bookcal"
	}
	key := fmt.Sprintf("%s|%s|%s|%s", b.ResourceID, b.UserID, b.Start.UTC().Format(time.RFC3339), b.End.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uidSpace, []byte(key)).String() + "@bookcal"
}

func objectStatus(status string) ical.ObjectStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "rejected":
		return ical.ObjectStatusCancelled
	case "pending", "tentative", "requested":
		return ical.ObjectStatusTentative
	default:
		return ical.ObjectStatusConfirmed
	}
}
