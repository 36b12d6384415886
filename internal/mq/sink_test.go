package mq

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"auditorium/internal/events"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	return m.Called(ctx, key, v).Error(0)
}

func TestSink(t *testing.T) {
	logger := zerolog.New(io.Discard)
	pub := new(mockPublisher)
	bus := events.NewBus(logger)
	sink := NewSink(pub, logger)
	sink.Attach(bus)
	sink.Start()

	pub.On("PublishJSON", mock.Anything, "booking.approved", mock.MatchedBy(func(e events.Event) bool {
		return e.BookingID == "b1"
	})).Return(nil).Once()
	pub.On("PublishJSON", mock.Anything, "booking.deleted", mock.Anything).Return(errors.New("channel closed")).Once()

	bus.Publish(events.Event{Type: events.BookingApproved, BookingID: "b1"})
	bus.Publish(events.Event{Type: events.BookingDeleted, BookingID: "b2"})
	sink.Stop()

	pub.AssertExpectations(t)
}

func TestSink_SlowBrokerDoesNotBlockPublish(t *testing.T) {
	logger := zerolog.New(io.Discard)
	release := make(chan struct{})
	pub := new(mockPublisher)
	pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})

	bus := events.NewBus(logger)
	sink := newSink(pub, 2, logger)
	sink.Attach(bus)
	sink.Start()

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(events.Event{Type: events.BookingCreated, BookingID: "b"})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("bus.Publish blocked on the broker")
	}

	close(release)
	sink.Stop()
	calls := len(pub.Calls)
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 3)
}

func TestSink_HandleReturnsPublishError(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	err := NewSink(pub, zerolog.New(io.Discard)).Handle(events.Event{Type: events.BookingCreated})
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}
