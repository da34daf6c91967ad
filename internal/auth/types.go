package auth

import "time"

// Role classifies an account's privilege level.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Provider identifies where an account's credentials live.
type Provider string

const (
	ProviderSystem Provider = "system"
	ProviderGoogle Provider = "google"
)

// User represents an account. PasswordHash is empty for federated
// (non-system) accounts; ChangeCredentialsAt is bumped whenever the
// password or any other security-sensitive credential changes.
type User struct {
	ID                  string
	Email               string
	UserName            string
	PasswordHash        string
	Provider            Provider
	Role                Role
	ConfirmedAt         *time.Time
	ChangeCredentialsAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Confirmed reports whether the account finished email confirmation.
func (u *User) Confirmed() bool {
	return u.ConfirmedAt != nil && !u.ConfirmedAt.IsZero()
}

// RevokedToken invalidates one jti before its natural expiry. ExpiresAt is
// the refresh-token horizon of the pair, after which the record is safe to
// garbage-collect: expired tokens fail signature/expiry checks anyway.
type RevokedToken struct {
	ID        string
	JTI       string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OTP is a short-lived, bcrypt-hashed numeric code sent by email.
type OTP struct {
	ID        string
	UserID    string
	CodeHash  string
	Purpose   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OTPPurposeConfirmEmail marks codes minted for account confirmation.
const OTPPurposeConfirmEmail = "confirm_email"

// CredentialPair is the outcome of a login or refresh: an access and a
// refresh token sharing a single jti so the pair revokes in one call.
type CredentialPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Credentials is the identity an authenticated request carries downstream.
type Credentials struct {
	User   *User
	Claims Claims
}
