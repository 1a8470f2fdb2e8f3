package domain

import (
	"crypto/subtle"
	"slices"
	"time"
)

// Role names assignable to a user. A persisted user always carries at least
// RoleUser.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents a registered account.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	PasswordHash  string    `json:"-"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	GoogleID      string    `json:"google_id,omitempty"`
	FacebookID    string    `json:"facebook_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// At most one outstanding credential per recovery channel; issuing a new
	// one overwrites the old.
	ResetToken *RecoveryCredential `json:"-"`
	OTP        *RecoveryCredential `json:"-"`
}

// RecoveryCredential is a single-use secret bounded by a validity window.
// Both fields are always set together; a consumed credential is removed from
// the user entirely rather than blanked.
type RecoveryCredential struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the credential's window has closed. The boundary is
// strict: a credential expiring exactly at now is still valid.
func (c *RecoveryCredential) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// Matches compares the supplied secret against the stored value in constant
// time.
func (c *RecoveryCredential) Matches(value string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(value)) == 1
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// SessionUser is the identity payload returned with a freshly minted session
// token. It mirrors the login response regardless of how the session was
// established (password or social).
type SessionUser struct {
	Token    string   `json:"token"`
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}
