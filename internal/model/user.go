// Package model defines the data structures used throughout the application.
package model

import (
	"fmt"
	"time"

	"github.com/sakif/entity-auth/internal/entity"
)

var _ entity.Record = (*User)(nil)

// Column names shared by the sqlite store and the auth capabilities.
const (
	ColID                 = "id"
	ColName               = "name"
	ColEmail              = "email"
	ColPassword           = "password"
	ColResetPasswordToken = "reset_password_token"
	ColResetPasswordExp   = "reset_password_exp"
)

// User represents a registered account that signs in with email + password.
//
// WHY Password IS TAGGED json:"-"?
// The column holds a bcrypt hash once the record has been saved, but before
// that it briefly holds the plaintext. Neither should ever leave the server,
// so the field is excluded from every JSON response. The same goes for the
// reset token: it is delivered out of band, never echoed back.
//
// WHY ResetPasswordExp IS A STRING?
// It is stored exactly as written, an ISO-8601 UTC timestamp with millisecond
// precision ("2024-03-01T13:30:45.123Z"). Empty means no reset is pending.
type User struct {
	ID                 string    `json:"id"        db:"id"`
	Name               string    `json:"name"      db:"name"`
	Email              string    `json:"email"     db:"email"`
	Password           string    `json:"-"         db:"password"`
	ResetPasswordToken string    `json:"-"         db:"reset_password_token"`
	ResetPasswordExp   string    `json:"-"         db:"reset_password_exp"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// Field implements entity.Record.
func (u *User) Field(name string) string {
	switch name {
	case ColID:
		return u.ID
	case ColName:
		return u.Name
	case ColEmail:
		return u.Email
	case ColPassword:
		return u.Password
	case ColResetPasswordToken:
		return u.ResetPasswordToken
	case ColResetPasswordExp:
		return u.ResetPasswordExp
	}
	return ""
}

// SetField implements entity.Record. Timestamps are owned by the store and
// cannot be set by name.
func (u *User) SetField(name, value string) error {
	switch name {
	case ColID:
		u.ID = value
	case ColName:
		u.Name = value
	case ColEmail:
		u.Email = value
	case ColPassword:
		u.Password = value
	case ColResetPasswordToken:
		u.ResetPasswordToken = value
	case ColResetPasswordExp:
		u.ResetPasswordExp = value
	default:
		return fmt.Errorf("model: user has no writable column %q", name)
	}
	return nil
}

// Writable reports whether name is a column SetField accepts.
func Writable(name string) bool {
	switch name {
	case ColID, ColName, ColEmail, ColPassword, ColResetPasswordToken, ColResetPasswordExp:
		return true
	}
	return false
}
