package mq

import (
	"context"
	"sync"
	"time"

	"auditorium/internal/events"

	"github.com/rs/zerolog"
)

const defaultQueueSize = 256

// JSONPublisher is satisfied by *Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Sink republishes every bus event using its type as the routing key.
// Events are queued and published from a background goroutine, so a slow
// broker never holds up the request that produced the event.
type Sink struct {
	pub     JSONPublisher
	timeout time.Duration
	queue   chan events.Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
}

func NewSink(pub JSONPublisher, logger zerolog.Logger) *Sink {
	return newSink(pub, defaultQueueSize, logger)
}

func newSink(pub JSONPublisher, size int, logger zerolog.Logger) *Sink {
	return &Sink{
		pub:     pub,
		timeout: 5 * time.Second,
		queue:   make(chan events.Event, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "mq").Logger(),
	}
}

// Attach subscribes the sink to all events on the bus.
func (s *Sink) Attach(bus *events.Bus) {
	bus.SubscribeAll(s.enqueue)
}

// Start launches the publishing goroutine.
func (s *Sink) Start() {
	go s.run()
}

// Stop publishes whatever is still queued and waits for the goroutine to exit.
func (s *Sink) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sink) enqueue(e events.Event) error {
	select {
	case s.queue <- e:
	default:
		s.logger.Warn().Str("type", string(e.Type)).Str("booking_id", e.BookingID).Msg("event queue full, dropping event")
	}
	return nil
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case e := <-s.queue:
			s.publish(e)
		case <-s.stop:
			for {
				select {
				case e := <-s.queue:
					s.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) publish(e events.Event) {
	if err := s.Handle(e); err != nil {
		s.logger.Error().Err(err).Str("type", string(e.Type)).Str("booking_id", e.BookingID).Msg("publish event")
	}
}

// Handle publishes a single event synchronously.
func (s *Sink) Handle(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.pub.PublishJSON(ctx, string(e.Type), e); err != nil {
		return err
	}
	s.logger.Debug().Str("type", string(e.Type)).Str("booking_id", e.BookingID).Msg("event published")
	return nil
}
