package capture

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestOptionsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "missing_url", opts: Options{OutputPath: "x.png"}, wantErr: "URL is required"},
		{name: "missing_output", opts: Options{URL: "http://127.0.0.1/calendar"}, wantErr: "OutputPath is required"},
		{name: "defaults", opts: Options{URL: "http://127.0.0.1/calendar", OutputPath: "x.png"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opts := tc.opts
			err := opts.normalize()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("normalize() = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize() = %v", err)
			}
			if opts.Width != DefaultWidth || opts.Height != DefaultHeight || opts.Timeout != DefaultTimeoutSec*time.Second {
				t.Fatalf("defaults not applied: %+v", opts)
			}
		})
	}
}

func TestAuthHeader(t *testing.T) {
	t.Parallel()

	if h := (Options{Username: "admin"}).authHeader(); h != nil {
		t.Fatalf("partial credentials should send nothing, got %v", h)
	}
	h := Options{Username: "admin", Password: "secret"}.authHeader()
	if got := h["Authorization"]; got != "Basic YWRtaW46c2VjcmV0" {
		t.Fatalf("Authorization = %v", got)
	}
}

func TestCalendarPNG_RejectsBadOptionsBeforeLaunch(t *testing.T) {
	t.Parallel()

	if err := CalendarPNG(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}
