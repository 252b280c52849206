// ABOUTME: Request payloads for account flows with client-side validation
// ABOUTME: Validation mirrors what the API rejects so obvious mistakes never leave the client

package account

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks both fields are present and the email is well formed.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

// Registration is the sign-up payload. Username is optional.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Username, validation.Length(0, 80)),
		validation.Field(&r.Password, validation.Required),
	)
}

// PasswordChange is the change-password payload.
type PasswordChange struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (p PasswordChange) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required),
	)
}

func validateEmail(email string) error {
	return validation.Validate(email, validation.Required, is.Email)
}
