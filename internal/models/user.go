package models

import "time"

// Role is an actor's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Anonymous is the actor for unauthenticated requests.
var Anonymous = Actor{}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) Authenticated() bool {
	return a.ID != ""
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserSummary is the public part of an account shown next to its bookings.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Actor returns the identity used for authorization decisions.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
