package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		kind   Kind
	}{
		{"validation", Validation("End time must be after start time"), ErrValidation, KindValidation},
		{"not found", BookingNotFound("abc"), ErrNotFound, KindNotFound},
		{"authorization", Authorization("Not authorized"), ErrAuthorization, KindAuthorization},
		{"invalid state", InvalidState("This booking is already approved"), ErrInvalidState, KindInvalidState},
		{"conflict", Conflict("overlap"), ErrConflict, KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
			assert.Equal(t, tt.kind, KindOf(tt.err))

			wrapped := fmt.Errorf("approve: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.target)
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestErrorKinds_DoNotCrossMatch(t *testing.T) {
	err := Conflict("overlap")
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestBookingNotFound_Message(t *testing.T) {
	assert.Equal(t, "Booking not found with id of 42", BookingNotFound("42").Error())
}
