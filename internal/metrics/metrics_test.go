package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(bookingCreated)
	IncBookingCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingCreated))

	IncAdminDecision("approve", "conflict")
	assert.Equal(t, 1.0, testutil.ToFloat64(adminDecision.WithLabelValues("approve", "conflict")))

	SetApprovedConflicts(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(approvedConflicts))

	ObserveHTTP("GET", "/api/bookings", 200, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/bookings", "200")))
}
