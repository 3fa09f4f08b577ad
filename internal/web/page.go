package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"bookcal/internal/calendar"
	appLog "bookcal/internal/log"
	"bookcal/internal/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var calendarPage = template.Must(template.ParseFS(templateFS, "templates/calendar.html.tmpl"))

type pageView struct {
	Header        string
	Mode          string
	Generation    uint64
	TimezoneLabel string
	Degraded      bool
	LastError     string
	DayUnits      int
	Slots         []slotDTO
	Days          []pageDay
}

type pageDay struct {
	Date     string
	Weekday  string
	Label    string
	Bookings []pageBooking
}

type pageBooking struct {
	ID       string
	Resource string
	User     string
	Status   string
	Time     string
	Top      int
	Height   int
}

func newPageView(snap session.Snapshot) pageView {
	grid := newGridResponse(snap)
	view := pageView{
		Header:        snap.Header,
		Mode:          grid.Mode,
		Generation:    snap.Generation,
		TimezoneLabel: snap.TimezoneLabel,
		Degraded:      snap.Degraded,
		LastError:     snap.LastError,
		DayUnits:      calendar.DayUnits,
		Slots:         grid.Slots,
		Days:          make([]pageDay, 0, len(snap.Grid.Days)),
	}

	for _, day := range snap.Grid.Days {
		pd := pageDay{
			Date:    day.Date.String(),
			Weekday: day.Date.Weekday().String()[:3],
			Label:   day.Date.Midnight(time.UTC).Format("Jan 2"),
		}
		for _, p := range day.Bookings {
			b := p.Booking
			pd.Bookings = append(pd.Bookings, pageBooking{
				ID:       b.ID,
				Resource: b.ResourceName,
				User:     b.UserName,
				Status:   strings.ToLower(b.Status),
				// Times are the booking's own start and end, not the clip.
				Time:   b.Start.Format("15:04") + "-" + b.End.Format("15:04"),
				Top:    calendar.Units(p.Geometry.TopOffsetMinutes),
				Height: calendar.Units(p.Geometry.HeightMinutes),
			})
		}
		view.Days = append(view.Days, pd)
	}
	return view
}

// handleCalendarPage renders the current snapshot as a static HTML grid.
// The root element carries data-ready="true" for headless capture.
func (s *Server) handleCalendarPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := calendarPage.Execute(&buf, newPageView(s.cal.Snapshot())); err != nil {
		appLog.Error("calendar page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
