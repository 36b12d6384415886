package events

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus(t *testing.T) {
	bus := NewBus(zerolog.New(io.Discard))

	var approved, all []Event
	bus.Subscribe(BookingApproved, func(e Event) error {
		approved = append(approved, e)
		return nil
	})
	bus.Subscribe(BookingApproved, func(e Event) error {
		return errors.New("broken subscriber")
	})
	bus.SubscribeAll(func(e Event) error {
		all = append(all, e)
		return nil
	})

	bus.Publish(Event{Type: BookingCreated, BookingID: "b1"})
	bus.Publish(Event{Type: BookingApproved, BookingID: "b1", From: "pending", To: "approved"})

	assert.Len(t, approved, 1)
	assert.Len(t, all, 2)
	assert.Equal(t, "b1", approved[0].BookingID)
	assert.False(t, approved[0].At.IsZero())
}

func TestBus_NilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Type: BookingDeleted}) })
}
