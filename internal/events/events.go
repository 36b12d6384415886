// Package events is an in-process pub/sub bus for booking lifecycle events.
package events

import (
	"sync"
	"time"

	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

type Type string

const (
	BookingCreated  Type = "booking.created"
	BookingUpdated  Type = "booking.updated"
	BookingDeleted  Type = "booking.deleted"
	BookingApproved Type = "booking.approved"
	BookingRejected Type = "booking.rejected"
)

// Event describes a booking change after it has been committed.
type Event struct {
	Type      Type            `json:"type"`
	BookingID string          `json:"bookingId"`
	ActorID   string          `json:"actorId"`
	Booking   *models.Booking `json:"booking,omitempty"`
	From      models.Status   `json:"from,omitempty"`
	To        models.Status   `json:"to,omitempty"`
	At        time.Time       `json:"at"`
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus dispatches events to subscribers.
type Bus struct {
	subscribers map[Type][]Handler
	all         []Handler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type][]Handler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and their errors are logged, never returned: the change is already committed.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).
				Str("type", string(event.Type)).
				Str("booking_id", event.BookingID).
				Msg("event handler failed")
		}
	}
}
