// Package auth registers accounts, verifies passwords and issues access tokens.
package auth

import (
	"context"
	"errors"
	"strings"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the email or password does not match.
var ErrInvalidCredentials = errors.New("Invalid credentials")

const minPasswordLength = 6

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service handles registration and login.
type Service struct {
	users       UserStore
	tokens      *TokenManager
	adminEmails map[string]bool
	cost        int
	logger      zerolog.Logger
}

// NewService creates an auth service. The first registered account and any
// account whose email is in adminEmails get the admin role.
func NewService(users UserStore, tokens *TokenManager, adminEmails []string, logger zerolog.Logger) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		adminEmails: admins,
		cost:        bcrypt.DefaultCost,
		logger:      logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates an account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return nil, "", domain.Validation("Please add a name")
	}
	if in.Email == "" {
		return nil, "", domain.Validation("Please add an email")
	}
	if len(in.Password) < minPasswordLength {
		return nil, "", domain.Validation("Password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, "", err
	}

	role := models.RoleUser
	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, "", err
	}
	if count == 0 || s.adminEmails[in.Email] {
		role = models.RoleAdmin
	}

	u := &models.User{Name: in.Name, Email: in.Email, PasswordHash: string(hash), Role: role}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return u, token, nil
}

// Login verifies credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, "", domain.Validation("Please provide an email and password")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Str("user_id", u.ID).Msg("password mismatch")
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Me returns the account behind an actor.
func (s *Service) Me(ctx context.Context, actor models.Actor) (*models.User, error) {
	if !actor.Authenticated() {
		return nil, domain.Authorization("Not authorized to access this route")
	}
	return s.users.GetUserByID(ctx, actor.ID)
}

// Tokens exposes the token manager for transport middleware.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// AttachOwners fills in the owner summary of each booking with one lookup.
// Bookings whose owner no longer exists are left without one.
func (s *Service) AttachOwners(ctx context.Context, bookings ...*models.Booking) error {
	seen := make(map[string]bool, len(bookings))
	var ids []string
	for _, b := range bookings {
		if b.OwnerID != "" && !seen[b.OwnerID] {
			seen[b.OwnerID] = true
			ids = append(ids, b.OwnerID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	owners := make(map[string]*models.UserSummary, len(users))
	for i := range users {
		owners[users[i].ID] = users[i].Summary()
	}
	for _, b := range bookings {
		b.Owner = owners[b.OwnerID]
	}
	return nil
}
