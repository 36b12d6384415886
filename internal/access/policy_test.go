package access

import (
	"io"
	"testing"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	p := NewPolicy(zerolog.New(io.Discard))
	booking := &models.Booking{ID: "b1", OwnerID: "owner"}

	owner := models.Actor{ID: "owner", Role: models.RoleUser}
	stranger := models.Actor{ID: "other", Role: models.RoleUser}
	admin := models.Actor{ID: "root", Role: models.RoleAdmin}

	t.Run("modify", func(t *testing.T) {
		assert.NoError(t, p.CanModify(owner, booking, "update"))
		assert.NoError(t, p.CanModify(admin, booking, "update"))

		err := p.CanModify(stranger, booking, "update")
		assert.ErrorIs(t, err, domain.ErrAuthorization)
		assert.Equal(t, "Not authorized to update this booking", err.Error())

		assert.ErrorIs(t, p.CanModify(models.Anonymous, booking, "delete"), domain.ErrAuthorization)
	})

	t.Run("anonymous never owns", func(t *testing.T) {
		orphan := &models.Booking{ID: "b2"}
		assert.ErrorIs(t, p.CanModify(models.Actor{}, orphan, "delete"), domain.ErrAuthorization)
	})

	t.Run("decide", func(t *testing.T) {
		assert.NoError(t, p.CanDecide(admin, "b1", "approve"))

		err := p.CanDecide(owner, "b1", "approve")
		assert.ErrorIs(t, err, domain.ErrAuthorization)
		assert.Equal(t, "User role user is not authorized to approve bookings", err.Error())

		assert.ErrorIs(t, p.CanDecide(models.Actor{Role: models.RoleAdmin}, "b1", "reject"), domain.ErrAuthorization)
	})

	t.Run("view", func(t *testing.T) {
		assert.NoError(t, p.CanView(owner, booking))
		assert.ErrorIs(t, p.CanView(stranger, booking), domain.ErrAuthorization)
	})
}
