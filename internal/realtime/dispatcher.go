package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osalah/signalfeed/internal/metrics"
)

// Dispatcher decodes inbound frames and routes them to subscribers by tag.
//
// Subscribers for a tag are invoked synchronously, in registration order, on
// the goroutine that delivered the frame. A panicking subscriber never
// prevents the remaining subscribers for that message, or future messages,
// from running.
type Dispatcher struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]*subscription

	dispatched    atomic.Int64
	droppedFrames atomic.Int64
	unknownTags   atomic.Int64
	handlerPanics atomic.Int64
}

type subscription struct {
	tag string
	fn  Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[string][]*subscription),
	}
}

// Subscribe registers a callback for a tag and returns a function that
// removes exactly that registration. Subscribing to a tag the backend never
// sends is legal; the callback is simply never invoked.
func (d *Dispatcher) Subscribe(tag string, fn Handler) func() {
	sub := &subscription{tag: tag, fn: fn}

	d.mu.Lock()
	d.subs[tag] = append(d.subs[tag], sub)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(sub) })
	}
}

func (d *Dispatcher) unsubscribe(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[sub.tag]
	for i, s := range list {
		if s == sub {
			d.subs[sub.tag] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.subs[sub.tag]) == 0 {
		delete(d.subs, sub.tag)
	}
}

// Decode parses a raw frame into a Message. Malformed frames are logged and
// dropped; decoding never fails the caller. Returns false when the frame was
// discarded.
func (d *Dispatcher) Decode(data []byte, receivedAt time.Time) (Message, bool) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		d.droppedFrames.Add(1)
		metrics.DroppedFrames.Inc()
		d.logger.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		return Message{}, false
	}

	return Message{
		Type:       env.Type,
		Timestamp:  env.Timestamp,
		Data:       json.RawMessage(data),
		ReceivedAt: receivedAt,
	}, true
}

// Dispatch routes an already-decoded message to its subscribers. A message
// whose tag is neither known nor subscribed is logged and dropped.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	list := d.subs[msg.Type]
	// Snapshot so callbacks can subscribe/unsubscribe without deadlock.
	handlers := make([]*subscription, len(list))
	copy(handlers, list)
	d.mu.Unlock()

	if len(handlers) == 0 {
		if _, known := knownTags[msg.Type]; !known {
			d.unknownTags.Add(1)
			d.logger.Debug("skipping unknown message tag", "type", msg.Type)
			return
		}
	}

	d.dispatched.Add(1)
	metrics.MessagesDispatched.WithLabelValues(msg.Type).Inc()

	for _, sub := range handlers {
		d.invoke(sub, msg)
	}
}

// invoke runs one callback, converting a panic into a logged error.
func (d *Dispatcher) invoke(sub *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.handlerPanics.Add(1)
			d.logger.Error("subscriber panicked",
				"tag", sub.tag,
				"panic", r,
			)
		}
	}()
	sub.fn(msg)
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() (dispatched, dropped, unknown, panics int64) {
	return d.dispatched.Load(), d.droppedFrames.Load(), d.unknownTags.Load(), d.handlerPanics.Load()
}
