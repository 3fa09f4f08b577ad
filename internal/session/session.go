package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookcal/internal/calendar"
	"bookcal/internal/model"
	"bookcal/internal/observe"
	"bookcal/internal/tz"
)

const (
	EventReloadApplied = "reload.applied"
	EventReloadStale   = "reload.stale"
	EventReloadFailed  = "reload.failed"
)

// ErrStale is returned by Reload when a newer reload or a navigation
// superseded the request while it was in flight. The result was dropped.
var ErrStale = errors.New("session: reload superseded")

// Fetcher loads raw booking rows overlapping [start, end).
type Fetcher interface {
	FetchBookings(ctx context.Context, start, end time.Time) ([]model.RawRow, error)
}

// Snapshot is an immutable view of the displayed period. Callers may hold
// on to it; the session never mutates a snapshot after publishing it.
type Snapshot struct {
	Selected   model.Date
	Period     calendar.Period
	Header     string
	Grid       model.Grid
	Slots      []model.TimeSlot
	Generation uint64

	// LoadedAt is when bookings were last applied from the backend. Zero
	// until the first successful reload.
	LoadedAt time.Time

	// Timezone is the zone name in use; TimezoneLabel adds the current
	// abbreviation for display.
	Timezone      string
	TimezoneLabel string
	Degraded      bool

	// LastError is the most recent fetch failure since the last
	// successful reload, or empty.
	LastError string
}

// Options tweaks a Session. Zero values pick the defaults.
type Options struct {
	Mode     calendar.Mode
	Observer observe.Observer
	Now      func() time.Time
}

// Session holds the navigation state and the current grid for one
// calendar view.
type Session struct {
	fetcher Fetcher
	norm    *tz.Normalizer
	obs     observe.Observer
	now     func() time.Time

	mu         sync.Mutex
	selected   model.Date
	period     calendar.Period
	bookings   []model.Booking
	generation uint64
	loadedAt   time.Time
	lastErr    string
	snapshot   Snapshot
}

// New returns a session showing the period that contains today in the
// display zone. Nothing is fetched until Reload is called.
func New(fetcher Fetcher, norm *tz.Normalizer, opts Options) *Session {
	s := &Session{
		fetcher: fetcher,
		norm:    norm,
		obs:     observe.OrNop(opts.Observer),
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.selected = s.today()
	s.period = calendar.PeriodFor(opts.Mode, s.selected)
	s.snapshot = s.buildLocked()
	return s
}

// Snapshot returns the most recently published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Next moves to the following week or month.
func (s *Session) Next() Snapshot {
	return s.navigate(func() {
		s.period = s.period.Next()
		s.selected = s.period.Start
	})
}

// Prev moves to the preceding week or month.
func (s *Session) Prev() Snapshot {
	return s.navigate(func() {
		s.period = s.period.Prev()
		s.selected = s.period.Start
	})
}

// Today jumps back to the period containing the current date.
func (s *Session) Today() Snapshot {
	return s.navigate(func() {
		s.selected = s.today()
		s.period = calendar.PeriodFor(s.period.Mode, s.selected)
	})
}

// ToggleMode switches between week and month around the selected date.
func (s *Session) ToggleMode() Snapshot {
	return s.navigate(func() {
		mode := calendar.Month
		if s.period.Mode == calendar.Month {
			mode = calendar.Week
		}
		s.period = calendar.PeriodFor(mode, s.selected)
	})
}

// SetMode shows the week or month around the selected date.
func (s *Session) SetMode(mode calendar.Mode) Snapshot {
	return s.navigate(func() {
		s.period = calendar.PeriodFor(mode, s.selected)
	})
}

// SetDate selects d and shows the period containing it.
func (s *Session) SetDate(d model.Date) Snapshot {
	return s.navigate(func() {
		s.selected = d
		s.period = calendar.PeriodFor(s.period.Mode, d)
	})
}

// navigate applies a state change, rebuilds the grid from the bookings
// already in memory and invalidates any reload still in flight. The
// caller is expected to follow up with Reload.
func (s *Session) navigate(change func()) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	change()
	s.generation++
	s.snapshot = s.buildLocked()
	return s.snapshot
}

// Reload fetches bookings for the displayed period and publishes a new
// snapshot. Only the most recent request may publish: if another Reload
// or a navigation happens while this one waits on the backend, its result
// is discarded and ErrStale is returned. On a fetch failure the previous
// snapshot stays in place and is returned together with the error.
func (s *Session) Reload(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	s.generation++
	token := s.generation
	period := s.period
	s.mu.Unlock()

	reloadID := uuid.NewString()
	start, end := period.UTCRange(s.norm.Location())
	rows, err := s.fetcher.FetchBookings(ctx, start, end)

	var bookings []model.Booking
	if err == nil {
		bookings = calendar.FromRows(rows, s.norm, s.obs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.generation {
		s.obs.Observe(observe.Event{
			Name:     EventReloadStale,
			Severity: observe.SeverityDebug,
			Attrs:    []any{"reload_id", reloadID, "token", token, "latest", s.generation},
		})
		return s.snapshot, ErrStale
	}

	if err != nil {
		s.lastErr = err.Error()
		s.snapshot.LastError = s.lastErr
		s.obs.Observe(observe.Event{
			Name:     EventReloadFailed,
			Severity: observe.SeverityError,
			Err:      err,
			Attrs:    []any{"reload_id", reloadID, "period_start", period.Start.String(), "mode", period.Mode.String()},
		})
		return s.snapshot, err
	}

	s.bookings = bookings
	s.loadedAt = s.now()
	s.lastErr = ""
	s.snapshot = s.buildLocked()
	s.obs.Observe(observe.Event{
		Name:     EventReloadApplied,
		Severity: observe.SeverityInfo,
		Attrs: []any{
			"reload_id", reloadID,
			"period_start", period.Start.String(),
			"mode", period.Mode.String(),
			"rows", len(rows),
			"bookings", len(bookings),
		},
	})
	return s.snapshot, nil
}

func (s *Session) buildLocked() Snapshot {
	loc := s.norm.Location()
	return Snapshot{
		Selected:      s.selected,
		Period:        s.period,
		Header:        s.period.Header(),
		Grid:          calendar.BuildGrid(s.period, s.bookings, loc),
		Slots:         model.HourSlots(),
		Generation:    s.generation,
		LoadedAt:      s.loadedAt,
		Timezone:      s.norm.Name(),
		TimezoneLabel: s.norm.Label(s.now()),
		Degraded:      s.norm.Degraded(),
		LastError:     s.lastErr,
	}
}

func (s *Session) today() model.Date {
	return model.DateOf(s.norm.ToLocal(s.now()))
}
