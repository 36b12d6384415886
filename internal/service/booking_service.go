// Package service implements the booking lifecycle: who may create, edit,
// delete, approve and reject bookings, and under which conditions.
package service

import (
	"context"
	"time"

	"auditorium/internal/access"
	"auditorium/internal/domain"
	"auditorium/internal/events"
	"auditorium/internal/metrics"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BookingStore is the persistence contract the lifecycle relies on.
// SetBookingStatus must be atomic with its overlap condition.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, q models.ListQuery) (*models.Page, error)
	UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	FindOverlapping(ctx context.Context, iv models.Interval, statuses []models.Status, excludeID string) ([]models.Booking, error)
	SetBookingStatus(ctx context.Context, id string, change models.StatusChange) (*models.Booking, error)
	BookingHistory(ctx context.Context, id string) ([]models.StatusEvent, error)
	ApprovedOverlaps(ctx context.Context) ([]models.OverlapPair, error)
}

// CreateInput is what a user submits to request the auditorium.
type CreateInput struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

type BookingService struct {
	store  BookingStore
	policy *access.Policy
	bus    *events.Bus
	tracer trace.Tracer
	logger zerolog.Logger
	now    func() time.Time
}

func NewBookingService(store BookingStore, policy *access.Policy, bus *events.Bus, logger zerolog.Logger) *BookingService {
	return &BookingService{
		store:  store,
		policy: policy,
		bus:    bus,
		tracer: otel.Tracer("auditorium/service"),
		logger: logger.With().Str("component", "booking_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookingService) span(ctx context.Context, name string, actor models.Actor, bookingID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("booking.id", bookingID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create stores a new pending booking. Overlaps are allowed at this stage.
func (s *BookingService) Create(ctx context.Context, actor models.Actor, in CreateInput) (b *models.Booking, err error) {
	ctx, span := s.span(ctx, "booking.create", actor, "")
	defer func() { endSpan(span, err) }()

	if err := s.policy.RequireAuthenticated(actor, "create"); err != nil {
		return nil, err
	}

	b = &models.Booking{
		OwnerID:     actor.ID,
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Status:      models.StatusPending,
	}
	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("owner_id", b.OwnerID).
		Time("start", b.StartTime).
		Time("end", b.EndTime).
		Msg("booking created")
	s.bus.Publish(events.Event{Type: events.BookingCreated, BookingID: b.ID, ActorID: actor.ID, Booking: b, To: b.Status})
	return b, nil
}

// Get returns a single booking.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// List returns a page of bookings matching the query.
func (s *BookingService) List(ctx context.Context, q models.ListQuery) (*models.Page, error) {
	ctx, span := s.tracer.Start(ctx, "booking.list")
	defer span.End()
	return s.store.ListBookings(ctx, q)
}

// Edit changes the title, description or time bounds of a booking.
// Owners may edit only pending bookings; admins may edit any booking.
func (s *BookingService) Edit(ctx context.Context, actor models.Actor, id string, patch models.BookingPatch) (b *models.Booking, err error) {
	ctx, span := s.span(ctx, "booking.edit", actor, id)
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanModify(actor, current, "update"); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		patch.RequireStatus = models.StatusPending
		if err := patch.CheckStatus(current); err != nil {
			return nil, err
		}
	}

	b, err = s.store.UpdateBooking(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingUpdated()
	s.logger.Info().Str("booking_id", id).Str("actor_id", actor.ID).Msg("booking updated")
	s.bus.Publish(events.Event{Type: events.BookingUpdated, BookingID: id, ActorID: actor.ID, Booking: b})
	return b, nil
}

// Delete removes a booking regardless of its status.
func (s *BookingService) Delete(ctx context.Context, actor models.Actor, id string) (err error) {
	ctx, span := s.span(ctx, "booking.delete", actor, id)
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CanModify(actor, current, "delete"); err != nil {
		return err
	}
	if err := s.store.DeleteBooking(ctx, id); err != nil {
		return err
	}

	metrics.IncBookingDeleted()
	s.logger.Info().Str("booking_id", id).Str("actor_id", actor.ID).Str("status", string(current.Status)).Msg("booking deleted")
	s.bus.Publish(events.Event{Type: events.BookingDeleted, BookingID: id, ActorID: actor.ID, Booking: current, From: current.Status})
	return nil
}

// Approve marks a booking approved if no other approved booking overlaps it.
func (s *BookingService) Approve(ctx context.Context, actor models.Actor, id string) (b *models.Booking, err error) {
	ctx, span := s.span(ctx, "booking.approve", actor, id)
	defer func() {
		metrics.IncAdminDecision("approve", decisionResult(err))
		endSpan(span, err)
	}()

	if err := s.policy.CanDecide(actor, id, "approve"); err != nil {
		return nil, err
	}

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusApproved {
		return nil, domain.InvalidState("This booking is already approved")
	}

	clashes, err := s.store.FindOverlapping(ctx, current.Interval(), []models.Status{models.StatusApproved}, id)
	if err != nil {
		return nil, err
	}
	if len(clashes) > 0 {
		s.logger.Info().
			Str("booking_id", id).
			Str("conflicts_with", clashes[0].ID).
			Msg("approval refused: slot taken")
		return nil, domain.Conflict("This time slot is already booked by another approved event")
	}

	// The store re-checks overlap in the same write, so a concurrent approval
	// that slipped in after FindOverlapping still yields Conflict here.
	b, err = s.store.SetBookingStatus(ctx, id, models.StatusChange{To: models.StatusApproved, ActorID: actor.ID, At: s.now()})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", id).Str("admin_id", actor.ID).Str("from", string(current.Status)).Msg("booking approved")
	s.bus.Publish(events.Event{Type: events.BookingApproved, BookingID: id, ActorID: actor.ID, Booking: b, From: current.Status, To: b.Status})
	return b, nil
}

// Reject marks a booking rejected. No overlap check applies.
func (s *BookingService) Reject(ctx context.Context, actor models.Actor, id string) (b *models.Booking, err error) {
	ctx, span := s.span(ctx, "booking.reject", actor, id)
	defer func() {
		metrics.IncAdminDecision("reject", decisionResult(err))
		endSpan(span, err)
	}()

	if err := s.policy.CanDecide(actor, id, "reject"); err != nil {
		return nil, err
	}

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusRejected {
		return nil, domain.InvalidState("This booking is already rejected")
	}

	b, err = s.store.SetBookingStatus(ctx, id, models.StatusChange{To: models.StatusRejected, ActorID: actor.ID, At: s.now()})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", id).Str("admin_id", actor.ID).Str("from", string(current.Status)).Msg("booking rejected")
	s.bus.Publish(events.Event{Type: events.BookingRejected, BookingID: id, ActorID: actor.ID, Booking: b, From: current.Status, To: b.Status})
	return b, nil
}

// History returns the status transitions of a booking to its owner or an admin.
func (s *BookingService) History(ctx context.Context, actor models.Actor, id string) ([]models.StatusEvent, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(actor, current); err != nil {
		return nil, err
	}
	return s.store.BookingHistory(ctx, id)
}

// Conflicts lists every pair of approved bookings that overlap. The result is
// empty unless the store was modified outside this service.
func (s *BookingService) Conflicts(ctx context.Context) ([]models.OverlapPair, error) {
	ctx, span := s.tracer.Start(ctx, "booking.conflicts")
	defer span.End()

	pairs, err := s.store.ApprovedOverlaps(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SetApprovedConflicts(len(pairs))
	return pairs, nil
}

func decisionResult(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
