package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bookcal/internal/model"
)

// wireRow mirrors one element of the PostgREST response. Embedded
// relations arrive as an object or as a one-element array depending on how
// the foreign key is declared, so they stay raw until inspected.
type wireRow struct {
	ID        json.RawMessage `json:"id"`
	UserID    json.RawMessage `json:"user_id"`
	ProductID json.RawMessage `json:"product_id"`
	StartTime *string         `json:"start_time"`
	EndTime   *string         `json:"end_time"`
	Notes     *string         `json:"notes"`
	Status    *string         `json:"status"`
	CreatedAt *string         `json:"created_at"`
	Products  json.RawMessage `json:"products"`
	Profiles  json.RawMessage `json:"profiles"`
}

type productJoin struct {
	Name *string `json:"name"`
}

type profileJoin struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

// DecodeRows parses a PostgREST JSON array into raw rows. Individual
// fields that are missing or oddly typed become empty values; only a body
// that is not a JSON array is an error.
func DecodeRows(body []byte) ([]model.RawRow, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var wire []wireRow
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("supabase: decode rows: %w", err)
	}

	rows := make([]model.RawRow, 0, len(wire))
	for _, w := range wire {
		rows = append(rows, model.RawRow{
			ID:           canonicalID(w.ID),
			UserID:       canonicalID(w.UserID),
			ResourceID:   canonicalID(w.ProductID),
			Start:        deref(w.StartTime),
			End:          deref(w.EndTime),
			CreatedAt:    deref(w.CreatedAt),
			Notes:        deref(w.Notes),
			Status:       deref(w.Status),
			ResourceName: productName(w.Products),
			UserName:     profileName(w.Profiles),
		})
	}
	return rows, nil
}

// canonicalID renders an id field as text. UUIDs are normalized to their
// canonical lowercase form; anything else is passed through.
func canonicalID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	if id, err := uuid.Parse(s); err == nil {
		return id.String()
	}
	return s
}

func productName(raw json.RawMessage) *string {
	var p productJoin
	if !decodeJoin(raw, &p) {
		return nil
	}
	return nonEmpty(p.Name)
}

// profileName prefers the full name and falls back to the email address.
func profileName(raw json.RawMessage) *string {
	var p profileJoin
	if !decodeJoin(raw, &p) {
		return nil
	}
	if name := nonEmpty(p.FullName); name != nil {
		return name
	}
	return nonEmpty(p.Email)
}

func decodeJoin(raw json.RawMessage, dst any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return false
		}
		raw = items[0]
	}
	return json.Unmarshal(raw, dst) == nil
}

func nonEmpty(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
