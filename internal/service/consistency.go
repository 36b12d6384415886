package service

import (
	"context"
	"time"

	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

// ConsistencyChecker periodically verifies that no two approved bookings overlap.
type ConsistencyChecker struct {
	svc      *BookingService
	interval time.Duration
	logger   zerolog.Logger
}

func NewConsistencyChecker(svc *BookingService, interval time.Duration, logger zerolog.Logger) *ConsistencyChecker {
	return &ConsistencyChecker{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "consistency").Logger(),
	}
}

// Start runs checks until ctx is cancelled.
func (c *ConsistencyChecker) Start(ctx context.Context) {
	if c.interval <= 0 {
		c.logger.Info().Msg("consistency checker disabled")
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("consistency checker started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("consistency checker stopped")
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				c.logger.Error().Err(err).Msg("consistency check failed")
			}
		}
	}
}

// RunOnce performs a single check and logs every violating pair.
func (c *ConsistencyChecker) RunOnce(ctx context.Context) ([]models.OverlapPair, error) {
	pairs, err := c.svc.Conflicts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		c.logger.Error().
			Str("first", p.First).
			Str("second", p.Second).
			Msg("approved bookings overlap")
	}
	if len(pairs) == 0 {
		c.logger.Debug().Msg("no overlapping approved bookings")
	}
	return pairs, nil
}
