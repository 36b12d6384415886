package auth

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return domain.Validation("User already exists with email %s", u.Email)
		}
	}
	u.ID = "id-" + u.Email
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, domain.NotFound("User not found with email %s", email)
}

func (m *memUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domain.NotFound("User not found with id of %s", id)
}

func (m *memUsers) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) CountUsers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func newTestService(admins ...string) *Service {
	tokens := NewTokenManager("test-secret-0123456789", time.Hour, "auditorium")
	svc := NewService(newMemUsers(), tokens, admins, zerolog.New(io.Discard))
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService("boss@example.com")
	ctx := context.Background()

	first, token, err := svc.Register(ctx, RegisterInput{Name: "First", Email: "first@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role, "first account bootstraps as admin")
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "secret1", first.PasswordHash)

	second, _, err := svc.Register(ctx, RegisterInput{Name: "Second", Email: "Second@Example.com", Password: "secret2"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, second.Role)
	assert.Equal(t, "second@example.com", second.Email)

	boss, _, err := svc.Register(ctx, RegisterInput{Name: "Boss", Email: "boss@example.com", Password: "secret3"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, boss.Role)

	_, _, err = svc.Register(ctx, RegisterInput{Name: "Dup", Email: "second@example.com", Password: "secret4"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	u, token, err := svc.Login(ctx, "second@example.com", "secret2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, u.ID)

	actor, err := svc.Tokens().Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: second.ID, Role: models.RoleUser}, actor)

	_, _, err = svc.Login(ctx, "second@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ghost@example.com", "secret2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	me, err := svc.Me(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "Second", me.Name)
	_, err = svc.Me(ctx, models.Anonymous)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
}

func TestAttachOwners(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	ann, _, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	first := &models.Booking{ID: "b1", OwnerID: ann.ID}
	second := &models.Booking{ID: "b2", OwnerID: ann.ID}
	orphan := &models.Booking{ID: "b3", OwnerID: "gone"}
	require.NoError(t, svc.AttachOwners(ctx, first, second, orphan))

	want := &models.UserSummary{ID: ann.ID, Name: "Ann", Email: "ann@example.com"}
	assert.Equal(t, want, first.Owner)
	assert.Equal(t, want, second.Owner)
	assert.Nil(t, orphan.Owner)
	assert.NoError(t, svc.AttachOwners(ctx))
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inputs := []RegisterInput{
		{Name: "", Email: "a@example.com", Password: "secret1"},
		{Name: "A", Email: " ", Password: "secret1"},
		{Name: "A", Email: "a@example.com", Password: "123"},
	}
	for _, in := range inputs {
		_, _, err := svc.Register(ctx, in)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("test-secret-0123456789", time.Hour, "auditorium")
	u := &models.User{ID: "u1", Email: "a@example.com", Role: models.RoleAdmin}

	token, err := m.Issue(u)
	require.NoError(t, err)

	actor, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "u1", Role: models.RoleAdmin}, actor)

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		_, err := m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("another-secret-0123456", time.Hour, "auditorium")
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Role:             "admin",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "auditorium"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Parse(none)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role downgrades to user", func(t *testing.T) {
		tok, err := m.Issue(&models.User{ID: "u2", Role: "superuser"})
		require.NoError(t, err)
		actor, err := m.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, actor.Role)
	})
}
