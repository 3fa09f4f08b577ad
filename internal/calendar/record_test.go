package calendar

import (
	"errors"
	"testing"
	"time"

	"bookcal/internal/model"
	"bookcal/internal/observe"
	"bookcal/internal/tz"
)

func strPtr(s string) *string { return &s }

func stockholmNormalizer(t *testing.T) *tz.Normalizer {
	t.Helper()
	n := tz.New(tz.DefaultZone, tz.DefaultAlias, nil)
	if n.Degraded() {
		t.Fatalf("Europe/Stockholm did not resolve")
	}
	return n
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "rfc3339_z", in: "2024-03-10T21:00:00Z", want: want},
		{name: "rfc3339_offset", in: "2024-03-10T22:00:00+01:00", want: want},
		{name: "postgrest_fraction", in: "2024-03-10T21:00:00.000000+00:00", want: want},
		{name: "postgres_text", in: "2024-03-10 21:00:00+00", want: want},
		{name: "short_offset", in: "2024-03-10T21:00:00+00", want: want},
		{name: "no_designator_is_utc", in: "2024-03-10T21:00:00", want: want},
		{name: "no_designator_space", in: "2024-03-10 21:00:00.5", want: want.Add(500 * time.Millisecond)},
		{name: "surrounding_space", in: "  2024-03-10T21:00:00Z ", want: want},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimestamp(tc.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tc.in, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("expected UTC result, got %v", got.Location())
			}
		})
	}

	for _, bad := range []string{"", "   ", "yesterday", "2024-13-45T00:00:00Z"} {
		if _, err := ParseTimestamp(bad); !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("ParseTimestamp(%q) err = %v, want ErrInvalidTimestamp", bad, err)
		}
	}
}

func TestFromRow_NormalizesToDisplayZone(t *testing.T) {
	t.Parallel()
	norm := stockholmNormalizer(t)

	row := model.RawRow{
		ID:           "b-1",
		UserID:       "u-1",
		ResourceID:   "p-1",
		Start:        "2024-07-01T08:00:00+00:00",
		End:          "2024-07-01T10:30:00+00:00",
		CreatedAt:    "2024-06-20T12:00:00",
		Notes:        "  bring own strings ",
		ResourceName: strPtr("Cello #2"),
		UserName:     strPtr("Ada Lovelace"),
	}

	b, err := FromRow(row, norm)
	if err != nil {
		t.Fatalf("FromRow error: %v", err)
	}
	if got := b.Start.Format("2006-01-02 15:04 MST"); got != "2024-07-01 10:00 CEST" {
		t.Fatalf("start = %s", got)
	}
	if got := b.End.Format("15:04"); got != "12:30" {
		t.Fatalf("end = %s", got)
	}
	if got := b.CreatedAt.Format("15:04"); got != "14:00" {
		t.Fatalf("created_at without designator should be read as UTC, got %s", got)
	}
	if b.Notes != row.Notes {
		t.Fatalf("notes must pass through verbatim, got %q", b.Notes)
	}
	if b.ResourceName != "Cello #2" || b.UserName != "Ada Lovelace" {
		t.Fatalf("names = %q / %q", b.ResourceName, b.UserName)
	}
	if b.Status != DefaultStatus {
		t.Fatalf("status = %q, want default %q", b.Status, DefaultStatus)
	}
	if b.Duration() != 150*time.Minute {
		t.Fatalf("duration = %v", b.Duration())
	}
}

func TestFromRow_DefaultsMissingFields(t *testing.T) {
	t.Parallel()
	norm := stockholmNormalizer(t)

	b, err := FromRow(model.RawRow{
		ID:       "b-2",
		Start:    "2024-01-01T10:00:00Z",
		End:      "2024-01-01T11:00:00Z",
		UserName: strPtr("   "),
	}, norm)
	if err != nil {
		t.Fatalf("FromRow error: %v", err)
	}
	if b.ResourceName != Placeholder {
		t.Fatalf("missing resource join should use placeholder, got %q", b.ResourceName)
	}
	if b.UserName != Placeholder {
		t.Fatalf("blank user name should use placeholder, got %q", b.UserName)
	}
	if !b.CreatedAt.IsZero() {
		t.Fatalf("missing created_at should be the zero sentinel, got %v", b.CreatedAt)
	}
}

func TestFromRow_RejectsBadSpans(t *testing.T) {
	t.Parallel()
	norm := stockholmNormalizer(t)

	tests := []struct {
		name string
		row  model.RawRow
		want error
	}{
		{name: "missing_start", row: model.RawRow{End: "2024-01-01T11:00:00Z"}, want: ErrInvalidTimestamp},
		{name: "garbage_end", row: model.RawRow{Start: "2024-01-01T10:00:00Z", End: "soon"}, want: ErrInvalidTimestamp},
		{name: "inverted", row: model.RawRow{Start: "2024-01-01T11:00:00Z", End: "2024-01-01T10:00:00Z"}, want: ErrInvertedRange},
		{name: "empty_span", row: model.RawRow{Start: "2024-01-01T11:00:00Z", End: "2024-01-01T11:00:00Z"}, want: ErrInvertedRange},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := FromRow(tc.row, norm); !errors.Is(err, tc.want) {
				t.Fatalf("FromRow err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFromRows_DropsInvalidAndKeepsOrder(t *testing.T) {
	t.Parallel()
	norm := stockholmNormalizer(t)
	rec := &observe.Recorder{}

	rows := []model.RawRow{
		{ID: "a", Start: "2024-01-01T08:00:00Z", End: "2024-01-01T09:00:00Z"},
		{ID: "broken", Start: "not a time", End: "2024-01-01T09:00:00Z"},
		{ID: "b", Start: "2024-01-01T09:00:00Z", End: "2024-01-01T10:00:00Z"},
	}

	got := FromRows(rows, norm, rec)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("FromRows = %+v", got)
	}
	events := rec.Events()
	if len(events) != 1 || events[0].Name != EventRowDropped {
		t.Fatalf("expected one dropped-row event, got %+v", events)
	}
	if id, _ := events[0].Attr("id"); id != "broken" {
		t.Fatalf("dropped-row event id = %v", id)
	}
}
