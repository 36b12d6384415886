package audit

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service exports the database to a sink on a fixed interval.
type Service struct {
	exporter *Exporter
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(exporter *Exporter, sink Sink, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Service{
		exporter: exporter,
		sink:     sink,
		interval: interval,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the export scheduler. Calling it twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Dur("interval", s.interval).Msg("audit export started")
}

// Stop waits for an in-flight export to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("audit export stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := s.ExportNow(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled export failed")
			}
			cancel()
		}
	}
}

// ExportNow renders the workbook and stores it in the sink.
func (s *Service) ExportNow(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := s.exporter.Export(ctx, &buf); err != nil {
		return "", err
	}

	name := Filename(s.now())
	size := buf.Len()
	location, err := s.sink.Put(ctx, name, &buf)
	if err != nil {
		return "", err
	}

	s.logger.Info().Str("location", location).Int("bytes", size).Msg("export stored")
	return location, nil
}
