package api

import (
	"net/http"

	"auditorium/internal/auth"
	"auditorium/internal/domain"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/register
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.Validation("Please provide a name, a valid email and a password"))
		return
	}

	u, token, err := s.auth.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "token": token, "data": u})
}

// POST /api/auth/login
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.Validation("Please provide an email and password"))
		return
	}

	u, token, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "data": u})
}

// GET /api/auth/me
func (s *Server) handleMe(c *gin.Context) {
	u, err := s.auth.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
