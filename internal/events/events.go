package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// Event types published inside the process.
const (
	ScheduleReplaced   = "schedule.replaced"
	BookingCreated     = "booking.created"
	ReminderDispatched = "reminder.dispatched"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.Type, e.ID, err)
	}
	return nil
}

// SchedulePayload accompanies ScheduleReplaced.
type SchedulePayload struct {
	BusinessID string `json:"business_id"`
	NonStop    bool   `json:"operates_non_stop"`
	Blocks     int    `json:"blocks"`
}

// BookingPayload accompanies BookingCreated.
type BookingPayload struct {
	BookingID  string    `json:"booking_id"`
	FriendlyID string    `json:"friendly_id"`
	BusinessID string    `json:"business_id"`
	Status     string    `json:"status"`
	Start      time.Time `json:"start"`
}

// ReminderPayload accompanies ReminderDispatched.
type ReminderPayload struct {
	RunID       string `json:"run_id"`
	BookingID   string `json:"booking_id"`
	BusinessID  string `json:"business_id"`
	LeadMinutes int    `json:"lead_minutes"`
	Channel     string `json:"channel"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Every handler runs even if
// an earlier one fails; the failures are joined.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return b.Publish(Event{Type: eventType, Payload: data})
}
