// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects the session token issued on signup/login.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Profile holds the descriptive fields of an admin.
type Profile struct {
	FirstName   string
	LastName    string
	PhoneNumber string
}

// Admin is an administrator account. Secrets are stored only as one-way hashes.
type Admin struct {
	ID                   uuid.UUID // PK
	Email                string    // unique, stored lower-cased
	PasswordHash         string    // empty means a password reset is required
	VerificationCodeHash string    // hash of the currently active reset code
	Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	PhoneNumber *string
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && u.PhoneNumber == nil
}

// EncryptedSession is the cached, encrypted copy of an issued session token.
// Both fields are hex-encoded.
type EncryptedSession struct {
	IV            string `json:"iv"`
	EncryptedData string `json:"encryptedData"`
}
