package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"
	"auditorium/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	service.BookingStore

	bookings map[string]*models.Booking
	gets     int
	lists    int
}

func (c *countingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	c.gets++
	b, ok := c.bookings[id]
	if !ok {
		return nil, domain.BookingNotFound(id)
	}
	cp := *b
	return &cp, nil
}

func (c *countingStore) ListBookings(ctx context.Context, q models.ListQuery) (*models.Page, error) {
	c.lists++
	items := make([]models.Booking, 0, len(c.bookings))
	for _, b := range c.bookings {
		items = append(items, *b)
	}
	return models.NewPage(q, items, len(items)), nil
}

func (c *countingStore) SetBookingStatus(ctx context.Context, id string, change models.StatusChange) (*models.Booking, error) {
	b := c.bookings[id]
	b.Status = change.To
	cp := *b
	return &cp, nil
}

func newTestCache(t *testing.T) (*Store, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := &countingStore{bookings: map[string]*models.Booking{
		"b1": {
			ID:        "b1",
			OwnerID:   "u1",
			Title:     "Lecture",
			StartTime: time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2030, 1, 1, 11, 0, 0, 0, time.UTC),
			Status:    models.StatusPending,
		},
	}}
	return New(backend, client, time.Minute, zerolog.New(io.Discard)), backend, mr
}

func TestStore_GetBookingReadThrough(t *testing.T) {
	s, backend, _ := newTestCache(t)
	ctx := context.Background()

	first, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	second, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, first.Title, second.Title)
	assert.True(t, first.StartTime.Equal(second.StartTime))

	_, err = s.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_WriteInvalidates(t *testing.T) {
	s, backend, _ := newTestCache(t)
	ctx := context.Background()

	_, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)

	_, err = s.SetBookingStatus(ctx, "b1", models.StatusChange{To: models.StatusApproved})
	require.NoError(t, err)

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, 2, backend.gets)
}

func TestStore_ListBookings(t *testing.T) {
	s, backend, _ := newTestCache(t)
	ctx := context.Background()

	q := models.ListQuery{Limit: 10}
	page, err := s.ListBookings(ctx, q)
	require.NoError(t, err)
	_, err = s.ListBookings(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.lists)
	assert.Equal(t, 1, page.Total)

	_, err = s.ListBookings(ctx, models.ListQuery{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.lists)
}

func TestStore_RedisDownFallsThrough(t *testing.T) {
	s, backend, mr := newTestCache(t)
	ctx := context.Background()

	mr.Close()

	b, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Lecture", b.Title)
	_, err = s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.gets)
	assert.Error(t, s.Ping(ctx))
}
