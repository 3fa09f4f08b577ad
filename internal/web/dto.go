package web

import (
	"time"

	"bookcal/internal/calendar"
	"bookcal/internal/session"
)

// gridResponse is the JSON shape of /api/grid and the navigation
// endpoints. Offsets and heights are in layout units.
type gridResponse struct {
	Mode          string     `json:"mode"`
	Header        string     `json:"header"`
	Selected      string     `json:"selected"`
	PeriodStart   string     `json:"period_start"`
	PeriodEnd     string     `json:"period_end"`
	Timezone      string     `json:"timezone"`
	TimezoneLabel string     `json:"timezone_label"`
	Degraded      bool       `json:"timezone_degraded"`
	Generation    uint64     `json:"generation"`
	LoadedAt      *time.Time `json:"loaded_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	DayUnits      int        `json:"day_units"`
	Slots         []slotDTO  `json:"slots"`
	Days          []dayDTO   `json:"days"`
}

type slotDTO struct {
	Label string `json:"label"`
	Top   int    `json:"top"`
}

type dayDTO struct {
	Date     string         `json:"date"`
	Weekday  string         `json:"weekday"`
	Bookings []placementDTO `json:"bookings"`
}

type placementDTO struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Resource   string    `json:"resource"`
	UserID     string    `json:"user_id"`
	User       string    `json:"user"`
	Notes      string    `json:"notes,omitempty"`
	Status     string    `json:"status"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ClipStart  time.Time `json:"clip_start"`
	ClipEnd    time.Time `json:"clip_end"`
	Top        int       `json:"top"`
	Height     int       `json:"height"`
}

func newGridResponse(snap session.Snapshot) gridResponse {
	resp := gridResponse{
		Mode:          snap.Period.Mode.String(),
		Header:        snap.Header,
		Selected:      snap.Selected.String(),
		PeriodStart:   snap.Period.Start.String(),
		PeriodEnd:     snap.Period.Last().String(),
		Timezone:      snap.Timezone,
		TimezoneLabel: snap.TimezoneLabel,
		Degraded:      snap.Degraded,
		Generation:    snap.Generation,
		LastError:     snap.LastError,
		DayUnits:      calendar.DayUnits,
		Slots:         make([]slotDTO, 0, len(snap.Slots)),
		Days:          make([]dayDTO, 0, len(snap.Grid.Days)),
	}
	if !snap.LoadedAt.IsZero() {
		t := snap.LoadedAt
		resp.LoadedAt = &t
	}

	for _, slot := range snap.Slots {
		resp.Slots = append(resp.Slots, slotDTO{Label: slot.Label(), Top: calendar.Units(slot.Top())})
	}

	for _, day := range snap.Grid.Days {
		d := dayDTO{
			Date:     day.Date.String(),
			Weekday:  day.Date.Weekday().String(),
			Bookings: make([]placementDTO, 0, len(day.Bookings)),
		}
		for _, p := range day.Bookings {
			b := p.Booking
			d.Bookings = append(d.Bookings, placementDTO{
				ID:         b.ID,
				ResourceID: b.ResourceID,
				Resource:   b.ResourceName,
				UserID:     b.UserID,
				User:       b.UserName,
				Notes:      b.Notes,
				Status:     b.Status,
				Start:      b.Start,
				End:        b.End,
				ClipStart:  p.ClipStart,
				ClipEnd:    p.ClipEnd,
				Top:        calendar.Units(p.Geometry.TopOffsetMinutes),
				Height:     calendar.Units(p.Geometry.HeightMinutes),
			})
		}
		resp.Days = append(resp.Days, d)
	}
	return resp
}
