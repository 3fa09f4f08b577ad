package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bookcal/internal/config"
	"bookcal/internal/metrics"
	"bookcal/internal/model"
	"bookcal/internal/session"
	"bookcal/internal/tz"
)

type fakeFetcher struct {
	mu   sync.Mutex
	rows []model.RawRow
	err  error
}

func (f *fakeFetcher) FetchBookings(context.Context, time.Time, time.Time) ([]model.RawRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) (*httptest.Server, *fakeFetcher) {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	f := &fakeFetcher{rows: []model.RawRow{{
		ID:    "a",
		Start: "2024-03-13T08:00:00Z",
		End:   "2024-03-13T09:30:00Z",
		Notes: "alignment",
	}}}
	now := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	sess := session.New(f, tz.Fixed(loc), session.Options{Now: func() time.Time { return now }})
	if _, err := sess.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.BasicAuth = auth
	srv := NewServer(cfg, sess, Options{Metrics: metrics.New()})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, f
}

func doRequest(t *testing.T, method, url string, setAuth bool) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if setAuth {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func decodeGrid(t *testing.T, body []byte) gridResponse {
	t.Helper()
	var g gridResponse
	if err := json.Unmarshal(body, &g); err != nil {
		t.Fatalf("decode grid: %v\n%s", err, body)
	}
	return g
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", false)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}
}

func TestGrid_ReturnsPlacedBookings(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/grid", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	g := decodeGrid(t, body)

	if g.Mode != "week" || g.PeriodStart != "2024-03-11" || g.PeriodEnd != "2024-03-17" {
		t.Fatalf("period = %s %s..%s", g.Mode, g.PeriodStart, g.PeriodEnd)
	}
	if g.Header != "Week of March 11 - March 17, 2024" {
		t.Fatalf("header = %q", g.Header)
	}
	if g.DayUnits != 1440 || len(g.Slots) != 24 || g.Slots[13].Top != 780 {
		t.Fatalf("axis = %d units, %d slots", g.DayUnits, len(g.Slots))
	}
	if len(g.Days) != 7 {
		t.Fatalf("days = %d", len(g.Days))
	}
	wed := g.Days[2]
	if wed.Weekday != "Wednesday" || len(wed.Bookings) != 1 {
		t.Fatalf("wednesday = %+v", wed)
	}
	b := wed.Bookings[0]
	if b.Top != 540 || b.Height != 90 {
		t.Fatalf("placement top=%d height=%d", b.Top, b.Height)
	}
	if b.Resource != "Unknown" || b.Status != "confirmed" {
		t.Fatalf("defaults = %+v", b)
	}
	if g.LoadedAt == nil {
		t.Fatal("loaded_at missing after reload")
	}
}

func TestNavigate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action    string
		query     string
		wantStart string
		wantMode  string
		wantCode  int
	}{
		{action: "next", wantStart: "2024-03-18", wantMode: "week", wantCode: http.StatusOK},
		{action: "toggle", wantStart: "2024-03-01", wantMode: "month", wantCode: http.StatusOK},
		{action: "date", query: "?date=2024-12-25", wantStart: "2024-12-23", wantMode: "week", wantCode: http.StatusOK},
		{action: "month", wantStart: "2024-03-01", wantMode: "month", wantCode: http.StatusOK},
		{action: "date", query: "?date=christmas", wantCode: http.StatusBadRequest},
		{action: "sideways", wantCode: http.StatusNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.action+tc.query, func(t *testing.T) {
			t.Parallel()
			ts, _ := newTestServer(t, nil)
			resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/navigate/"+tc.action+tc.query, false)
			if resp.StatusCode != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tc.wantCode, body)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			g := decodeGrid(t, body)
			if g.PeriodStart != tc.wantStart || g.Mode != tc.wantMode {
				t.Fatalf("period = %s %s", g.Mode, g.PeriodStart)
			}
		})
	}
}

func TestNavigate_RejectsGet(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/navigate/next", false)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReload_FailureKeepsGridAndReportsError(t *testing.T) {
	t.Parallel()

	ts, f := newTestServer(t, nil)
	f.fail(errors.New("backend down"))

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/reload", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	g := decodeGrid(t, body)
	if g.LastError != "backend down" {
		t.Fatalf("last_error = %q", g.LastError)
	}
	if len(g.Days[2].Bookings) != 1 {
		t.Fatal("previous grid not retained")
	}
}

func TestCalendarPage(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/calendar", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`data-ready="true"`,
		`height: 1440px`,
		`data-date="2024-03-13"`,
		`top: 540px; height: 90px`,
		`09:00-10:30`,
		`Europe/Stockholm (CET)`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestCalendarICS(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/calendar.ics", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Contains(body, []byte("UID:a@bookcal")) || !bytes.Contains(body, []byte("DTSTART:20240313T080000Z")) {
		t.Fatalf("ics body:\n%s", body)
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &config.BasicAuthConfig{Username: "admin", Password: "secret"})

	tests := []struct {
		path     string
		auth     bool
		wantCode int
	}{
		{path: "/health", wantCode: http.StatusOK},
		{path: "/metrics", wantCode: http.StatusOK},
		{path: "/api/grid", wantCode: http.StatusUnauthorized},
		{path: "/calendar", wantCode: http.StatusUnauthorized},
		{path: "/api/grid", auth: true, wantCode: http.StatusOK},
	}
	for _, tc := range tests {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+tc.path, tc.auth)
		if resp.StatusCode != tc.wantCode {
			t.Errorf("%s auth=%v: status = %d, want %d", tc.path, tc.auth, resp.StatusCode, tc.wantCode)
		}
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)
	doRequest(t, http.MethodGet, ts.URL+"/api/grid", false)

	_, body := doRequest(t, http.MethodGet, ts.URL+"/metrics", false)
	if !bytes.Contains(body, []byte(`bookcal_http_requests_total{route="/api/grid",status="200"} 1`)) {
		t.Fatalf("metrics body:\n%s", body)
	}
}
