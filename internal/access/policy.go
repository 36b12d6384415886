// Package access decides which actor may perform which booking operation.
package access

import (
	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

// Policy implements ownership and role checks.
type Policy struct {
	logger zerolog.Logger
}

// NewPolicy creates a new access policy.
func NewPolicy(logger zerolog.Logger) *Policy {
	return &Policy{
		logger: logger.With().Str("component", "access").Logger(),
	}
}

func (p *Policy) deny(actor models.Actor, action, bookingID, reason string) error {
	p.logger.Warn().
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Str("action", action).
		Str("booking_id", bookingID).
		Msg("access denied")
	return domain.Authorization("%s", reason)
}

// RequireAuthenticated fails unless the actor carries an identity.
func (p *Policy) RequireAuthenticated(actor models.Actor, action string) error {
	if !actor.Authenticated() {
		return p.deny(actor, action, "", "Not authorized to access this route")
	}
	return nil
}

// CanModify allows the owner or an admin to edit or delete a booking.
func (p *Policy) CanModify(actor models.Actor, b *models.Booking, action string) error {
	if err := p.RequireAuthenticated(actor, action); err != nil {
		return err
	}
	if actor.IsAdmin() || b.IsOwnedBy(actor.ID) {
		return nil
	}
	return p.deny(actor, action, b.ID, "Not authorized to "+action+" this booking")
}

// CanDecide allows only admins to approve or reject.
func (p *Policy) CanDecide(actor models.Actor, bookingID, action string) error {
	if actor.Authenticated() && actor.IsAdmin() {
		return nil
	}
	return p.deny(actor, action, bookingID, "User role "+roleName(actor)+" is not authorized to "+action+" bookings")
}

// CanView allows the owner or an admin to read a booking's history.
func (p *Policy) CanView(actor models.Actor, b *models.Booking) error {
	return p.CanModify(actor, b, "view")
}

func roleName(actor models.Actor) string {
	if actor.Role == "" {
		return "anonymous"
	}
	return string(actor.Role)
}
