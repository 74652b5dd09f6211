package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// timeLayouts are the formats parseTime tries in order. The store writes
// trailing-Z ISO-8601 (see formatTime); the backend's
// "YYYY-MM-DD HH:MM:SS.mmm+00" form is also accepted on read.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000-07",
	"2006-01-02T15:04:05.000Z",
}

// formatTime writes UTC with a fixed nine-digit fraction, so the stored
// text sorts and compares in time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, lastErr)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinSets(sets []string) string {
	return strings.Join(sets, ", ")
}
