package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{"string", `"kds-1"`, "kds-1", false},
		{"integer", `42`, "42", false},
		{"null", `null`, "", false},
		{"object", `{"a":1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ID
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDomainState(t *testing.T) {
	tests := map[string]DomainState{
		"draft":       StateDraft,
		"paid":        StateActive,
		"invoiced":    StateActive,
		"done":        StateDone,
		"cancel":      StateCancelled,
		" Cancelled ": StateCancelled,
		"":            StateActive,
	}

	for in, want := range tests {
		if got := ParseDomainState(in); got != want {
			t.Errorf("ParseDomainState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOrderRecord_Closed(t *testing.T) {
	tests := []struct {
		name  string
		order OrderRecord
		want  bool
	}{
		{"active", OrderRecord{State: StateActive}, false},
		{"draft", OrderRecord{State: StateDraft}, false},
		{"done", OrderRecord{State: StateDone}, true},
		{"cancelled state", OrderRecord{State: StateCancelled}, true},
		{"cancelled flag", OrderRecord{State: StateActive, Cancelled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.Closed(); got != tt.want {
				t.Errorf("Closed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderRecord_EqualAndClone(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	a := OrderRecord{
		ID:          "1",
		OrderID:     "100",
		Stage:       "new",
		State:       StateActive,
		OrderedAt:   at,
		LastMutated: at,
		Items:       []LineItem{{LineID: 1, Name: "Burger", Quantity: 2}},
	}

	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone should equal original")
	}

	b.Items[0].Quantity = 3
	if a.Items[0].Quantity != 2 {
		t.Error("clone shares items with original")
	}
	if a.Equal(b) {
		t.Error("records with different items should not be equal")
	}

	c := a.Clone()
	c.OrderedAt = at.In(time.FixedZone("X", 3600))
	if !a.Equal(c) {
		t.Error("same instant in another zone should be equal")
	}
}

func TestNewStageSet(t *testing.T) {
	tests := []struct {
		name    string
		defs    []StageDef
		wantErr error
	}{
		{
			name:    "empty",
			defs:    nil,
			wantErr: ErrNoStages,
		},
		{
			name:    "duplicate key",
			defs:    []StageDef{{Name: "New"}, {Key: "new"}},
			wantErr: ErrDuplicateStage,
		},
		{
			name:    "empty key",
			defs:    []StageDef{{Name: "  "}},
			wantErr: ErrEmptyStageKey,
		},
		{
			name: "two terminal stages",
			defs: []StageDef{
				{Name: "Ready", IsTerminal: true},
				{Name: "Served", IsTerminal: true},
			},
			wantErr: ErrMultipleTerminal,
		},
		{
			name: "two cancellation stages",
			defs: []StageDef{
				{Name: "Cancelled", IsCancellation: true},
				{Name: "Voided", IsCancellation: true},
			},
			wantErr: ErrMultipleCancelStage,
		},
		{
			name: "valid",
			defs: []StageDef{
				{Name: "New"},
				{Name: "Preparing"},
				{Name: "Ready", IsTerminal: true},
				{Name: "Cancelled", IsCancellation: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStageSet(tt.defs)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("NewStageSet() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewStageSet() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStageSet_Lookups(t *testing.T) {
	set, err := NewStageSet([]StageDef{
		{Name: "New", HoldingTime: 5 * time.Minute},
		{Name: "Ready", IsTerminal: true},
		{Name: "Cancelled", IsCancellation: true},
	})
	if err != nil {
		t.Fatalf("NewStageSet failed: %v", err)
	}

	if got := set.Keys(); len(got) != 3 || got[0] != "new" || got[1] != "ready" || got[2] != "cancelled" {
		t.Errorf("Keys() = %v, want [new ready cancelled]", got)
	}
	if !set.Has("READY") {
		t.Error("Has should be case-insensitive")
	}
	if set.Has("preparing") {
		t.Error("Has(preparing) = true, want false")
	}
	if def, ok := set.Get("new"); !ok || def.HoldingTime != 5*time.Minute {
		t.Errorf("Get(new) = %+v, %v", def, ok)
	}
	if key, ok := set.Terminal(); !ok || key != "ready" {
		t.Errorf("Terminal() = %q, %v, want ready", key, ok)
	}
	if key, ok := set.Cancellation(); !ok || key != "cancelled" {
		t.Errorf("Cancellation() = %q, %v, want cancelled", key, ok)
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
}
