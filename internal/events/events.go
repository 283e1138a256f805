// Package events is the closed set of outbound messages the sync engine
// produces, and the bus that delivers them to sinks.
package events

import (
	"log/slog"
	"sync"
	"time"

	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/normalize"
)

// Kind identifies an event type.
type Kind string

const (
	KindNormalizedState Kind = "normalized_state"
	KindRawPair         Kind = "raw_pair"
	KindWarning         Kind = "warning"
	KindDebugTrace      Kind = "debug_trace"
)

// Event is implemented by the four message types below and nothing else.
type Event interface {
	Kind() Kind
	Device() string
	event()
}

// NormalizedStateUpdated is emitted when a device's state changed, and again
// after a command's optimistic update.
type NormalizedStateUpdated struct {
	DeviceID string          `json:"device_id"`
	State    normalize.State `json:"state"`
	Time     time.Time       `json:"time"`
}

// RawPairUpdated carries the raw info/state pair, emitted every cycle.
type RawPairUpdated struct {
	DeviceID string         `json:"device_id"`
	Info     map[string]any `json:"info"`
	State    melcloud.Block `json:"state"`
	Time     time.Time      `json:"time"`
}

// Warning reports a failure the engine recovered from.
type Warning struct {
	DeviceID string    `json:"device_id,omitempty"`
	Message  string    `json:"message"`
	Err      error     `json:"-"`
	Time     time.Time `json:"time"`
}

// DebugTrace is a low-volume diagnostic message.
type DebugTrace struct {
	DeviceID  string    `json:"device_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

func (NormalizedStateUpdated) Kind() Kind { return KindNormalizedState }
func (RawPairUpdated) Kind() Kind         { return KindRawPair }
func (Warning) Kind() Kind                { return KindWarning }
func (DebugTrace) Kind() Kind             { return KindDebugTrace }

func (e NormalizedStateUpdated) Device() string { return e.DeviceID }
func (e RawPairUpdated) Device() string         { return e.DeviceID }
func (e Warning) Device() string                { return e.DeviceID }
func (e DebugTrace) Device() string             { return e.DeviceID }

func (NormalizedStateUpdated) event() {}
func (RawPairUpdated) event()         {}
func (Warning) event()                {}
func (DebugTrace) event()             {}

// Error returns the warning's error text, or its message.
func (w Warning) Error() string {
	if w.Err != nil {
		return w.Message + ": " + w.Err.Error()
	}
	return w.Message
}

// Envelope is the wire form used by the websocket and message-bus sinks.
type Envelope struct {
	Type Kind  `json:"type"`
	Data Event `json:"data"`
}

// Wrap builds the envelope for e.
func Wrap(e Event) Envelope { return Envelope{Type: e.Kind(), Data: e} }

// Handler is a callback for events.
type Handler func(Event)

// Bus fans events out to registered handlers.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[Kind]map[uint64]Handler
	allHandlers map[uint64]Handler
	nextID      uint64
	logger      *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers:    make(map[Kind]map[uint64]Handler),
		allHandlers: make(map[uint64]Handler),
		logger:      logger,
	}
}

// On registers a handler for one kind. Returns an unsubscribe function.
func (b *Bus) On(kind Kind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.handlers[kind][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[kind], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (b *Bus) OnAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allHandlers, id)
	}
}

// OnState registers a typed NormalizedStateUpdated handler.
func (b *Bus) OnState(fn func(NormalizedStateUpdated)) func() {
	return b.On(KindNormalizedState, func(e Event) { fn(e.(NormalizedStateUpdated)) })
}

// OnRawPair registers a typed RawPairUpdated handler.
func (b *Bus) OnRawPair(fn func(RawPairUpdated)) func() {
	return b.On(KindRawPair, func(e Event) { fn(e.(RawPairUpdated)) })
}

// OnWarning registers a typed Warning handler.
func (b *Bus) OnWarning(fn func(Warning)) func() {
	return b.On(KindWarning, func(e Event) { fn(e.(Warning)) })
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (b *Bus) Emit(e Event) {
	kind := e.Kind()
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[kind])+len(b.allHandlers))
	for _, h := range b.handlers[kind] {
		handlers = append(handlers, h)
	}
	for _, h := range b.allHandlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panic", "type", kind, "panic", r)
				}
			}()
			h(e)
		}()
	}
}
