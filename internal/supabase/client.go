package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookcal/internal/config"
	"bookcal/internal/model"
	"bookcal/internal/observe"
)

const (
	bookingsPath   = "/rest/v1/bookings"
	bookingsSelect = "id,user_id,product_id,start_time,end_time,notes,status,created_at," +
		"products(name),profiles(full_name,email)"

	// PostgREST accepts RFC 3339 with millisecond precision in filters.
	filterLayout = "2006-01-02T15:04:05.000Z"

	maxBodyBytes = 8 << 20

	EventFetch = "backend.fetch"
)

// ErrStatus wraps non-2xx responses.
var ErrStatus = errors.New("supabase: unexpected status")

// Client queries booking rows over the PostgREST interface of a hosted
// Postgres project. It is constructed explicitly and passed to whoever
// needs it.
type Client struct {
	baseURL     string
	anonKey     string
	accessToken string
	http        *http.Client
	obs         observe.Observer
}

// NewClient builds a Client from backend config. A nil httpClient gets a
// default client with the configured timeout.
func NewClient(cfg config.BackendConfig, httpClient *http.Client, obs observe.Observer) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		anonKey:     cfg.AnonKey,
		accessToken: cfg.AccessToken,
		http:        httpClient,
		obs:         observe.OrNop(obs),
	}
}

// FetchBookings returns the rows of every booking overlapping
// [rangeStart, rangeEnd), ordered by start time ascending. Week and month
// loads both go through here with different ranges.
func (c *Client) FetchBookings(ctx context.Context, rangeStart, rangeEnd time.Time) ([]model.RawRow, error) {
	if !rangeEnd.After(rangeStart) {
		return nil, fmt.Errorf("supabase: empty range %s .. %s", rangeStart, rangeEnd)
	}

	reqURL, err := c.bookingsURL(rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", "bookcal")
	req.Header.Set("X-Request-Id", requestID)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	// Row-level security sees the signed-in user when a token is present;
	// otherwise the anon key doubles as bearer, as the hosted API expects.
	bearer := c.accessToken
	if bearer == "" {
		bearer = c.anonKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.report(requestID, rangeStart, rangeEnd, started, 0, 0, err)
		return nil, fmt.Errorf("supabase: request %s: %w", redactURL(c.baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.report(requestID, rangeStart, rangeEnd, started, resp.StatusCode, 0, err)
		return nil, fmt.Errorf("supabase: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s", ErrStatus, resp.Status)
		c.report(requestID, rangeStart, rangeEnd, started, resp.StatusCode, 0, err)
		return nil, err
	}

	rows, err := DecodeRows(body)
	if err != nil {
		c.report(requestID, rangeStart, rangeEnd, started, resp.StatusCode, 0, err)
		return nil, err
	}

	c.report(requestID, rangeStart, rangeEnd, started, resp.StatusCode, len(rows), nil)
	return rows, nil
}

func (c *Client) bookingsURL(rangeStart, rangeEnd time.Time) (string, error) {
	base, err := url.Parse(c.baseURL + bookingsPath)
	if err != nil {
		return "", fmt.Errorf("supabase: bad base url: %w", err)
	}
	q := url.Values{}
	q.Set("select", bookingsSelect)
	// Overlap, not start-in-range: a booking that began before the period
	// but runs into it must still be drawn.
	q.Set("start_time", "lt."+rangeEnd.UTC().Format(filterLayout))
	q.Set("end_time", "gt."+rangeStart.UTC().Format(filterLayout))
	q.Set("order", "start_time.asc")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (c *Client) report(requestID string, rangeStart, rangeEnd, started time.Time, status, rows int, err error) {
	sev := observe.SeverityDebug
	if err != nil {
		sev = observe.SeverityError
	}
	c.obs.Observe(observe.Event{
		Name:     EventFetch,
		Severity: sev,
		Err:      err,
		Attrs: []any{
			"request_id", requestID,
			"backend", redactURL(c.baseURL),
			"range_start", rangeStart.UTC(),
			"range_end", rangeEnd.UTC(),
			"status", status,
			"rows", rows,
			"elapsed", time.Since(started),
		},
	})
}

// redactURL keeps only scheme and host of a URL for logging.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "backend://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host
}
