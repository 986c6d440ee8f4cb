package models

import (
	"strings"
	"time"
)

// Role determines which screens an account may reach.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

// ParseRole returns the role named by s. Only "user" and "owner" are valid.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleOwner:
		return RoleOwner, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the per-account record; ID equals the owning account ID.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Session struct {
	ID        string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session is unrevoked and unexpired at now.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
