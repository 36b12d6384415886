// Package cache adds a Redis read-through layer in front of a booking store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"auditorium/internal/models"
	"auditorium/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix     = "auditorium:"
	generationKey = keyPrefix + "gen"
)

// Store caches GetBooking and ListBookings results. Every write bumps a shared
// generation counter so entries cached before the write are never read again.
// Redis failures are logged and the call falls through to the wrapped store.
type Store struct {
	service.BookingStore

	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func New(next service.BookingStore, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		BookingStore: next,
		redis:        client,
		ttl:          ttl,
		logger:       logger.With().Str("component", "cache").Logger(),
	}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *Store) generation(ctx context.Context) (string, bool) {
	gen, err := s.redis.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("read cache generation")
		return "", false
	}
	return gen, true
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.redis.Incr(ctx, generationKey).Err(); err != nil {
		s.logger.Error().Err(err).Msg("bump cache generation")
	}
}

func (s *Store) readCache(ctx context.Context, key string, out any) bool {
	val, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		return false
	}
	return true
}

func (s *Store) writeCache(ctx context.Context, key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func bookingKey(gen, id string) string {
	return keyPrefix + gen + ":booking:" + id
}

func listKey(gen string, q models.ListQuery) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshal list query: %w", err)
	}
	sum := sha256.Sum256(raw)
	return keyPrefix + gen + ":list:" + hex.EncodeToString(sum[:12]), nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	gen, ok := s.generation(ctx)
	if !ok {
		return s.BookingStore.GetBooking(ctx, id)
	}

	key := bookingKey(gen, id)
	var cached models.Booking
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	b, err := s.BookingStore.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, b)
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, q models.ListQuery) (*models.Page, error) {
	gen, ok := s.generation(ctx)
	if !ok {
		return s.BookingStore.ListBookings(ctx, q)
	}

	q.Normalize()
	key, err := listKey(gen, q)
	if err != nil {
		return s.BookingStore.ListBookings(ctx, q)
	}
	var cached models.Page
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	page, err := s.BookingStore.ListBookings(ctx, q)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, page)
	return page, nil
}

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	if err := s.BookingStore.CreateBooking(ctx, b); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Store) UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error) {
	b, err := s.BookingStore.UpdateBooking(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return b, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	if err := s.BookingStore.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Store) SetBookingStatus(ctx context.Context, id string, change models.StatusChange) (*models.Booking, error) {
	b, err := s.BookingStore.SetBookingStatus(ctx, id, change)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return b, nil
}

// Generation returns the current invalidation counter.
func (s *Store) Generation(ctx context.Context) (int64, error) {
	gen, err := s.redis.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(gen, 10, 64)
}
