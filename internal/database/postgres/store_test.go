package postgres

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set AUDITORIUM_TEST_POSTGRES_DSN to run these against a disposable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AUDITORIUM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUDITORIUM_TEST_POSTGRES_DSN not set")
	}
	logger := zerolog.New(io.Discard)
	s, err := Open(dsn, &logger)
	require.NoError(t, err)
	require.NoError(t, s.db.Exec("TRUNCATE booking_events, bookings, users").Error)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func slot(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func create(t *testing.T, s *Store, start, end time.Time) *models.Booking {
	t.Helper()
	b := &models.Booking{
		OwnerID:     "7b1f0a52-5d2b-4a3e-9f59-1f0c8e0b2a11",
		Title:       "Seminar",
		Description: "Postgres store test",
		StartTime:   start,
		EndTime:     end,
	}
	require.NoError(t, s.CreateBooking(context.Background(), b))
	return b
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	approve := models.StatusChange{To: models.StatusApproved, ActorID: "admin"}

	x := create(t, s, slot(10, 0), slot(11, 0))
	y := create(t, s, slot(10, 30), slot(11, 30))
	z := create(t, s, slot(11, 0), slot(12, 0))

	_, err := s.SetBookingStatus(ctx, x.ID, approve)
	require.NoError(t, err)
	_, err = s.SetBookingStatus(ctx, x.ID, approve)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = s.SetBookingStatus(ctx, y.ID, approve)
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = s.SetBookingStatus(ctx, z.ID, approve)
	require.NoError(t, err)

	history, err := s.BookingHistory(ctx, x.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	cond, err := models.NewCondition(models.FieldStatus, models.OpEq, "approved")
	require.NoError(t, err)
	page, err := s.ListBookings(ctx, models.ListQuery{Conditions: []models.Condition{cond}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	require.NoError(t, s.DeleteBooking(ctx, y.ID))
	_, err = s.GetBooking(ctx, y.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetBooking(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ConcurrentApprovals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		start := slot(10, i*5)
		ids = append(ids, create(t, s, start, start.Add(time.Hour)).ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.SetBookingStatus(ctx, id, models.StatusChange{To: models.StatusApproved, ActorID: "admin"})
			if err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, approved)
	pairs, err := s.ApprovedOverlaps(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestStore_MoveAndApproveSameBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		b := create(t, s, slot(8, 0), slot(9, 0))
		_, err := s.SetBookingStatus(ctx, b.ID, models.StatusChange{To: models.StatusApproved, ActorID: "admin"})
		require.NoError(t, err)
		_, err = s.SetBookingStatus(ctx, b.ID, models.StatusChange{To: models.StatusRejected, ActorID: "admin"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var moveErr, approveErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			end := slot(9, 30)
			_, moveErr = s.UpdateBooking(ctx, b.ID, models.BookingPatch{EndTime: &end})
		}()
		go func() {
			defer wg.Done()
			_, approveErr = s.SetBookingStatus(ctx, b.ID, models.StatusChange{To: models.StatusApproved, ActorID: "admin"})
		}()
		wg.Wait()

		assert.NoError(t, moveErr)
		assert.NoError(t, approveErr)
		require.NoError(t, s.DeleteBooking(ctx, b.ID))
	}
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Name: "Ann", Email: "Ann@Example.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Name: "B", Email: "ann@example.com", PasswordHash: "h"}), domain.ErrValidation)

	got, err := s.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}
