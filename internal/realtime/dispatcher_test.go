package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDispatchToMultipleSubscribers(t *testing.T) {
	d := NewDispatcher(nil)

	var first, second []Message
	d.Subscribe(TagRegimeUpdate, func(m Message) { first = append(first, m) })
	d.Subscribe(TagRegimeUpdate, func(m Message) { second = append(second, m) })

	frame := []byte(`{"type":"regime_update","timestamp":"2024-01-01T00:00:00Z","payload":{"regime":"bull","confidence":0.8}}`)
	msg, ok := d.Decode(frame, time.Now())
	if !ok {
		t.Fatal("Decode failed for valid frame")
	}
	d.Dispatch(msg)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("subscriber calls = %d, %d; want 1, 1", len(first), len(second))
	}
	if first[0].Type != TagRegimeUpdate {
		t.Errorf("Type = %q, want %q", first[0].Type, TagRegimeUpdate)
	}
	if first[0].Timestamp != "2024-01-01T00:00:00Z" {
		t.Errorf("Timestamp = %q, want %q", first[0].Timestamp, "2024-01-01T00:00:00Z")
	}

	// Both subscribers receive the identical decoded message.
	if string(first[0].Data) != string(second[0].Data) {
		t.Error("subscribers received different payloads")
	}

	var decoded struct {
		Payload struct {
			Regime     string  `json:"regime"`
			Confidence float64 `json:"confidence"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(first[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.Payload.Regime != "bull" || decoded.Payload.Confidence != 0.8 {
		t.Errorf("payload = %+v, want regime=bull confidence=0.8", decoded.Payload)
	}
}

func TestDispatchRoutesByTag(t *testing.T) {
	d := NewDispatcher(nil)

	var regime, signals int
	d.Subscribe(TagRegimeUpdate, func(Message) { regime++ })
	d.Subscribe(TagSignalGenerated, func(Message) { signals++ })

	d.Dispatch(Message{Type: TagSignalGenerated})
	d.Dispatch(Message{Type: TagSignalGenerated})
	d.Dispatch(Message{Type: TagRegimeUpdate})

	if regime != 1 {
		t.Errorf("regime calls = %d, want 1", regime)
	}
	if signals != 2 {
		t.Errorf("signal calls = %d, want 2", signals)
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	d := NewDispatcher(nil)

	var afterPanic, otherTag int
	d.Subscribe(TagRegimeUpdate, func(Message) { panic("subscriber bug") })
	d.Subscribe(TagRegimeUpdate, func(Message) { afterPanic++ })
	d.Subscribe(TagTargetHit, func(Message) { otherTag++ })

	// The panicking subscriber must not block the same message...
	d.Dispatch(Message{Type: TagRegimeUpdate})
	if afterPanic != 1 {
		t.Errorf("afterPanic = %d, want 1", afterPanic)
	}

	// ...nor future messages on any tag.
	d.Dispatch(Message{Type: TagRegimeUpdate})
	d.Dispatch(Message{Type: TagTargetHit})
	if afterPanic != 2 {
		t.Errorf("afterPanic = %d, want 2", afterPanic)
	}
	if otherTag != 1 {
		t.Errorf("otherTag = %d, want 1", otherTag)
	}

	if _, _, _, panics := d.Stats(); panics != 2 {
		t.Errorf("panics = %d, want 2", panics)
	}
}

func TestUnsubscribeRemovesExactlyOne(t *testing.T) {
	d := NewDispatcher(nil)

	var first, second int
	unsub := d.Subscribe(TagRegimeUpdate, func(Message) { first++ })
	d.Subscribe(TagRegimeUpdate, func(Message) { second++ })

	d.Dispatch(Message{Type: TagRegimeUpdate})
	unsub()
	d.Dispatch(Message{Type: TagRegimeUpdate})

	if first != 1 {
		t.Errorf("first = %d, want 1", first)
	}
	if second != 2 {
		t.Errorf("second = %d, want 2", second)
	}

	// Unsubscribing twice is harmless.
	unsub()
	d.Dispatch(Message{Type: TagRegimeUpdate})
	if second != 3 {
		t.Errorf("second = %d, want 3", second)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	d := NewDispatcher(nil)

	var calls int
	d.Subscribe(TagRegimeUpdate, func(Message) { calls++ })

	if _, ok := d.Decode([]byte(`"not json"`), time.Now()); ok {
		t.Error("Decode accepted a frame with no type tag")
	}
	if _, ok := d.Decode([]byte(`{{{`), time.Now()); ok {
		t.Error("Decode accepted invalid JSON")
	}

	if _, dropped, _, _ := d.Stats(); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}

	// The dispatcher still works after malformed input.
	msg, ok := d.Decode([]byte(`{"type":"regime_update"}`), time.Now())
	if !ok {
		t.Fatal("Decode failed after malformed frames")
	}
	d.Dispatch(msg)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUnknownTagDropped(t *testing.T) {
	d := NewDispatcher(nil)

	d.Dispatch(Message{Type: "mystery_event"})

	if _, _, unknown, _ := d.Stats(); unknown != 1 {
		t.Errorf("unknown = %d, want 1", unknown)
	}
}

func TestSubscribeToUnlistedTag(t *testing.T) {
	d := NewDispatcher(nil)

	// Legal: the callback fires if and when that tag ever appears.
	var calls int
	d.Subscribe("experimental_update", func(Message) { calls++ })

	d.Dispatch(Message{Type: "experimental_update"})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	d := NewDispatcher(nil)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Subscribe(TagIntradayUpdate, func(Message) { order = append(order, i) })
	}

	d.Dispatch(Message{Type: TagIntradayUpdate})

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending registration order", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("len(order) = %d, want 5", len(order))
	}
}
