package auth

import (
	"context"
	"time"
)

// UserStore is the credential store the token core consumes.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ConfirmEmail(ctx context.Context, userID string, at time.Time) error
	// UpdatePassword stores the new hash and refreshes the
	// change-credentials timestamp in the same statement.
	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error
}

// RevocationStore persists revoked token identifiers.
type RevocationStore interface {
	// Revoke inserts the record; revoking the same jti twice is a no-op.
	Revoke(ctx context.Context, tok RevokedToken) error
	// IsRevoked performs a point lookup on the jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// DeleteExpired prunes records whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Recent lists the newest revocations for the admin surface.
	Recent(ctx context.Context, limit int) ([]RevokedToken, error)
}

// OTPStore persists email confirmation codes.
type OTPStore interface {
	Create(ctx context.Context, otp *OTP) error
	FindPending(ctx context.Context, userID, purpose string, now time.Time) (*OTP, error)
	Delete(ctx context.Context, id string) error
}

// Store aggregates the persistence surfaces of the auth subsystem.
type Store interface {
	Users() UserStore
	Revocations() RevocationStore
	OTPs() OTPStore
}
