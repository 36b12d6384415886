package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"auditorium/internal/domain"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether the two ranges intersect. Touching endpoints do not.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Booking is a request to reserve the auditorium for a time window.
type Booking struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Owner is filled in by read endpoints; it is not stored with the booking.
	Owner *UserSummary `json:"user,omitempty"`
}

// Interval returns the booking's time range.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// OverlapsWith checks whether two bookings occupy intersecting time ranges.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Interval().Overlaps(other.Interval())
}

// IsOwnedBy reports whether userID created the booking.
func (b *Booking) IsOwnedBy(userID string) bool {
	return userID != "" && b.OwnerID == userID
}

// Normalize trims the title and converts times to UTC.
func (b *Booking) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
}

// Validate checks the field rules every stored booking must satisfy.
func (b *Booking) Validate() error {
	if b.OwnerID == "" {
		return domain.Validation("Booking owner is required")
	}
	if err := ValidateTitle(b.Title); err != nil {
		return err
	}
	if err := ValidateDescription(b.Description); err != nil {
		return err
	}
	if b.StartTime.IsZero() {
		return domain.Validation("Please select a start time")
	}
	if b.EndTime.IsZero() {
		return domain.Validation("Please select an end time")
	}
	if !b.Interval().Valid() {
		return domain.Validation("End time must be after start time")
	}
	return nil
}

func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Validation("Please add a title for your event")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return domain.Validation("Title cannot be more than %d characters", MaxTitleLength)
	}
	return nil
}

func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return domain.Validation("Please add a description")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return domain.Validation("Description cannot be more than %d characters", MaxDescriptionLength)
	}
	return nil
}

// BookingPatch holds the editable fields of a booking; nil means unchanged.
type BookingPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`

	// RequireStatus, when set, makes the store refuse the patch unless the
	// booking is still in that status at write time.
	RequireStatus Status `json:"-"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BookingPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.StartTime == nil && p.EndTime == nil
}

// CheckStatus enforces RequireStatus against the stored booking.
func (p BookingPatch) CheckStatus(b *Booking) error {
	if p.RequireStatus != "" && b.Status != p.RequireStatus {
		return domain.InvalidState("Cannot modify a booking that is already %s", b.Status)
	}
	return nil
}

// MovesTime reports whether the patch carries new time bounds at all.
func (p BookingPatch) MovesTime() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// ChangesInterval reports whether the patch moves the booking in time.
func (p BookingPatch) ChangesInterval(b *Booking) bool {
	if p.StartTime != nil && !p.StartTime.Equal(b.StartTime) {
		return true
	}
	return p.EndTime != nil && !p.EndTime.Equal(b.EndTime)
}

// Apply merges the patch into b and validates the result.
// Status, owner, id and creation time are never touched.
func (p BookingPatch) Apply(b *Booking) error {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.StartTime != nil {
		b.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		b.EndTime = *p.EndTime
	}
	b.Normalize()
	return b.Validate()
}

// StatusChange is a requested status transition.
type StatusChange struct {
	To      Status
	ActorID string
	At      time.Time
}

// StatusEvent records a single status transition of a booking.
type StatusEvent struct {
	ID        int64     `json:"id"`
	BookingID string    `json:"bookingId"`
	From      Status    `json:"from,omitempty"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actorId"`
	At        time.Time `json:"at"`
}

// OverlapPair names two approved bookings whose ranges intersect.
type OverlapPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
}
