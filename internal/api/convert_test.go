package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-10-15 09:30:00", time.Date(2026, 10, 15, 9, 30, 0, 0, manila)},
		{"2026-10-15T09:30:00", time.Date(2026, 10, 15, 9, 30, 0, 0, manila)},
		{"2026-10-15T01:30:00Z", time.Date(2026, 10, 15, 1, 30, 0, 0, time.UTC)},
		{"2026-10-15", time.Date(2026, 10, 15, 0, 0, 0, 0, manila)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseTimestamp(tt.input, manila)
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLooseString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"A-1"`, "A-1"},
		{`17`, "17"},
		{`false`, ""},
		{`null`, ""},
		{``, ""},
		{`{"x":1}`, ""},
	}

	for _, tt := range tests {
		if got := looseString(json.RawMessage(tt.input)); got != tt.want {
			t.Errorf("looseString(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIDJSON(t *testing.T) {
	if got := string(idJSON("42")); got != "42" {
		t.Errorf("idJSON(42) = %s, want 42", got)
	}
	if got := string(idJSON("abc")); got != `"abc"` {
		t.Errorf("idJSON(abc) = %s, want \"abc\"", got)
	}
}
