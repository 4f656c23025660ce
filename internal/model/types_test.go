package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"valid RFC3339", "2024-01-01T00:00:00Z", 1704067200000000},
		{"with offset", "2024-01-01T02:00:00+02:00", 1704067200000000},
		{"empty", "", 0},
		{"garbage", "not-a-timestamp", 0},
		{"unix seconds rejected", "1704067200", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseEventTime(tt.input); got != tt.want {
				t.Errorf("ParseEventTime(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSignalJSONRoundTrip(t *testing.T) {
	id := uuid.New()
	s := Signal{
		ID:          id,
		Symbol:      "AAPL",
		Direction:   "long",
		EntryPrice:  182.50,
		Target:      195.00,
		StopLoss:    176.25,
		Confidence:  0.82,
		Status:      "active",
		GeneratedTS: 1705321845000000,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Signal
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != id {
		t.Errorf("ID = %v, want %v", got.ID, id)
	}
	if got.Direction != "long" {
		t.Errorf("Direction = %q, want %q", got.Direction, "long")
	}
	if got.Target != 195.00 {
		t.Errorf("Target = %v, want %v", got.Target, 195.00)
	}
}

func TestSignalEventZeroValues(t *testing.T) {
	// signals_cleared events carry no subject signal.
	ev := SignalEvent{
		EventType: EventSignalsCleared,
		EventTS:   1705321845000000,
	}

	if ev.SignalID != uuid.Nil {
		t.Errorf("SignalID = %v, want uuid.Nil", ev.SignalID)
	}
	if ev.Price != 0 {
		t.Errorf("Price = %v, want 0", ev.Price)
	}
}
