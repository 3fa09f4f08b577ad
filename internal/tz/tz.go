// Package tz converts between UTC instants and the civil display timezone.
package tz

import (
	"errors"
	"strings"
	"time"
	_ "time/tzdata" // zone data must resolve without a system database

	"bookcal/internal/observe"
)

const (
	DefaultZone  = "Europe/Stockholm"
	DefaultAlias = "CET"

	// IdentityName labels the last-resort mode where inputs are taken to be
	// in the display zone already.
	IdentityName = "identity"

	EventDegraded = "tz.degraded"
)

// Resolution classifies a civil wall-clock time against the zone's
// transition schedule.
type Resolution int

const (
	Unique Resolution = iota
	// Ambiguous wall times occur twice (fall-back overlap).
	Ambiguous
	// Gap wall times never occur (spring-forward).
	Gap
)

func (r Resolution) String() string {
	switch r {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

type Normalizer struct {
	loc       *time.Location
	name      string
	requested string
	degraded  bool
}

// New resolves name, then alias, then falls back to identity conversion.
// Any fallback marks the normalizer degraded and is reported to obs; New
// itself never fails.
func New(name, alias string, obs observe.Observer) *Normalizer {
	obs = observe.OrNop(obs)

	loc, err := load(name)
	if err == nil {
		return &Normalizer{loc: loc, name: name, requested: name}
	}

	if strings.TrimSpace(alias) != "" {
		aliasLoc, aliasErr := load(alias)
		if aliasErr == nil {
			obs.Observe(observe.Event{
				Name:     EventDegraded,
				Severity: observe.SeverityWarn,
				Err:      err,
				Attrs:    []any{"requested", name, "resolved", alias},
			})
			return &Normalizer{loc: aliasLoc, name: alias, requested: name, degraded: true}
		}
		err = errors.Join(err, aliasErr)
	}

	obs.Observe(observe.Event{
		Name:     EventDegraded,
		Severity: observe.SeverityError,
		Err:      err,
		Attrs:    []any{"requested", name, "resolved", IdentityName},
	})
	return &Normalizer{loc: time.UTC, name: IdentityName, requested: name, degraded: true}
}

// Fixed wraps an already resolved location.
func Fixed(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, name: loc.String(), requested: loc.String()}
}

func load(name string) (*time.Location, error) {
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is a
	// display zone anyone asked for.
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "Local" {
		return nil, errors.New("tz: no timezone name given")
	}
	return time.LoadLocation(trimmed)
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Name is the zone actually in use: the requested name, the alias, or
// IdentityName.
func (n *Normalizer) Name() string { return n.name }

func (n *Normalizer) Requested() string { return n.requested }

func (n *Normalizer) Degraded() bool { return n.degraded }

// ToLocal expresses utc in the display zone. The offset follows from the
// instant itself, so wall-clock ambiguity never arises in this direction.
func (n *Normalizer) ToLocal(utc time.Time) time.Time {
	return utc.In(n.loc)
}

// ToUTC reads the wall-clock fields of wall as civil time in the display
// zone, ignoring wall's own location. Ambiguous times resolve to standard
// time; times inside a gap move forward to the end of the gap.
func (n *Normalizer) ToUTC(wall time.Time) time.Time {
	t, _ := n.resolve(wall)
	return t.UTC()
}

// Classify reports whether wall occurs once, twice or never in the display zone.
func (n *Normalizer) Classify(wall time.Time) Resolution {
	_, r := n.resolve(wall)
	return r
}

// Abbreviation returns the zone abbreviation in effect at the instant, e.g.
// CET or CEST.
func (n *Normalizer) Abbreviation(at time.Time) string {
	abbr, _ := at.In(n.loc).Zone()
	return abbr
}

// Label renders "Europe/Stockholm (CEST)" style display names.
func (n *Normalizer) Label(at time.Time) string {
	return n.name + " (" + n.Abbreviation(at) + ")"
}

func (n *Normalizer) resolve(wall time.Time) (time.Time, Resolution) {
	naive := asUTCWall(wall)

	var valid []time.Time
	var candidates []time.Time
	for _, off := range n.nearbyOffsets(naive) {
		u := naive.Add(-time.Duration(off) * time.Second)
		candidates = append(candidates, u)
		if sameWall(u.In(n.loc), naive) {
			valid = append(valid, u)
		}
	}

	switch len(valid) {
	case 1:
		return valid[0].In(n.loc), Unique
	case 0:
		return n.gapEnd(candidates), Gap
	default:
		for _, v := range valid {
			if !v.In(n.loc).IsDST() {
				return v.In(n.loc), Ambiguous
			}
		}
		return valid[0].In(n.loc), Ambiguous
	}
}

// nearbyOffsets collects the distinct UTC offsets in effect within a day of
// the naive instant. Any transition that can affect the wall time lies in
// that window.
func (n *Normalizer) nearbyOffsets(naive time.Time) []int {
	out := make([]int, 0, 3)
	for _, probe := range []time.Time{naive.Add(-24 * time.Hour), naive, naive.Add(24 * time.Hour)} {
		_, off := probe.In(n.loc).Zone()
		seen := false
		for _, o := range out {
			if o == off {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, off)
		}
	}
	return out
}

// gapEnd returns the transition instant that opened the gap: the start of
// the zone period containing the latest candidate.
func (n *Normalizer) gapEnd(candidates []time.Time) time.Time {
	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.After(latest) {
			latest = c
		}
	}
	start, _ := latest.In(n.loc).ZoneBounds()
	if start.IsZero() {
		return latest.In(n.loc)
	}
	return start.In(n.loc)
}

func asUTCWall(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

func sameWall(a, b time.Time) bool {
	ay, amo, ad := a.Date()
	by, bmo, bd := b.Date()
	ah, ami, as := a.Clock()
	bh, bmi, bs := b.Clock()
	return ay == by && amo == bmo && ad == bd &&
		ah == bh && ami == bmi && as == bs &&
		a.Nanosecond() == b.Nanosecond()
}
