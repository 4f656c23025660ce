package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/osalah/signalfeed/internal/api"
	"github.com/osalah/signalfeed/internal/model"
	"github.com/osalah/signalfeed/internal/realtime"
)

func TestRegimePollFuncCarriesBackendTimestamp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market-regime/summary-realtime" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"regime": "bull",
				"confidence": 0.82,
				"volatility_level": "low",
				"trend_strength": 0.65,
				"timestamp": "2024-01-15T12:00:00Z"
			}
		}`))
	}))
	defer server.Close()

	poll := regimePollFunc(api.NewClient(server.URL, ""))

	msg, err := poll(context.Background())
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if msg.Type != realtime.TagRegimeUpdate {
		t.Errorf("Type = %q, want %q", msg.Type, realtime.TagRegimeUpdate)
	}
	if msg.Timestamp == "" {
		t.Fatal("Timestamp is empty; backend timestamp was dropped")
	}

	want := model.ParseEventTime("2024-01-15T12:00:00Z")
	if got := model.ParseEventTime(msg.Timestamp); got != want {
		t.Errorf("ParseEventTime(Timestamp) = %d, want %d", got, want)
	}

	// The frame decodes the way the live-channel subscriber decodes it.
	var frame regimeFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Data.Regime != "bull" {
		t.Errorf("Regime = %q, want bull", frame.Data.Regime)
	}
	if frame.Data.Confidence != 0.82 {
		t.Errorf("Confidence = %f, want 0.82", frame.Data.Confidence)
	}
}
