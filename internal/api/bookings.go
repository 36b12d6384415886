package api

import (
	"bytes"
	"net/http"
	"slices"
	"time"

	"auditorium/internal/audit"
	"auditorium/internal/domain"
	"auditorium/internal/models"
	"auditorium/internal/service"

	"github.com/gin-gonic/gin"
)

type createBookingRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
}

func (r createBookingRequest) input() service.CreateInput {
	in := service.CreateInput{Title: r.Title, Description: r.Description}
	if r.StartTime != nil {
		in.StartTime = *r.StartTime
	}
	if r.EndTime != nil {
		in.EndTime = *r.EndTime
	}
	return in
}

type listResponse struct {
	Success    bool              `json:"success"`
	Count      int               `json:"count"`
	Total      int               `json:"total"`
	Pagination models.Pagination `json:"pagination"`
	Data       any               `json:"data"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// GET /api/bookings
func (s *Server) handleListBookings(c *gin.Context) {
	q, err := models.ParseListQuery(c.Request.URL.Query())
	if err != nil {
		s.writeError(c, err)
		return
	}

	page, err := s.bookings.List(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}

	items := make([]*models.Booking, len(page.Items))
	for i := range page.Items {
		items[i] = &page.Items[i]
	}
	if needsOwner(page.Fields) {
		if err := s.auth.AttachOwners(c.Request.Context(), items...); err != nil {
			s.writeError(c, err)
			return
		}
	}

	var data any = page.Items
	if len(page.Fields) > 0 {
		projected := make([]map[string]any, len(page.Items))
		for i := range page.Items {
			projected[i] = page.Items[i].Project(page.Fields)
		}
		data = projected
	}

	c.JSON(http.StatusOK, listResponse{
		Success:    true,
		Count:      len(page.Items),
		Total:      page.Total,
		Pagination: page.Pagination,
		Data:       data,
	})
}

// GET /api/bookings/:id
func (s *Server) handleGetBooking(c *gin.Context) {
	b, err := s.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.auth.AttachOwners(c.Request.Context(), b); err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// needsOwner reports whether a projection keeps the owner reference.
func needsOwner(fields []models.Field) bool {
	return len(fields) == 0 || slices.Contains(fields, models.FieldOwnerID)
}

// POST /api/bookings
func (s *Server) handleCreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.Validation("Invalid request body: %v", err))
		return
	}

	b, err := s.bookings.Create(c.Request.Context(), actorFrom(c), req.input())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// PUT /api/bookings/:id
func (s *Server) handleUpdateBooking(c *gin.Context) {
	var patch models.BookingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, domain.Validation("Invalid request body: %v", err))
		return
	}

	b, err := s.bookings.Edit(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// DELETE /api/bookings/:id
func (s *Server) handleDeleteBooking(c *gin.Context) {
	if err := s.bookings.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

// PUT /api/bookings/:id/approve
func (s *Server) handleApproveBooking(c *gin.Context) {
	b, err := s.bookings.Approve(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// PUT /api/bookings/:id/reject
func (s *Server) handleRejectBooking(c *gin.Context) {
	b, err := s.bookings.Reject(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// GET /api/bookings/:id/history
func (s *Server) handleBookingHistory(c *gin.Context) {
	history, err := s.bookings.History(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if history == nil {
		history = []models.StatusEvent{}
	}
	ok(c, http.StatusOK, history)
}

// GET /api/admin/conflicts
func (s *Server) handleConflicts(c *gin.Context) {
	pairs, err := s.bookings.Conflicts(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if pairs == nil {
		pairs = []models.OverlapPair{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(pairs), "data": pairs})
}

// GET /api/admin/export
func (s *Server) handleExport(c *gin.Context) {
	if s.exporter == nil {
		abortWith(c, http.StatusNotFound, string(domain.KindNotFound), "Export is not enabled")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(c.Request.Context(), &buf); err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+audit.Filename(time.Now())+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
