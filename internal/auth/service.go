package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tijara.org/internal/ids"
)

const otpTTL = 2 * time.Minute

// Notifier delivers credential-workflow email asynchronously. Implemented
// by internal/notify; calls must not block on delivery.
type Notifier interface {
	ConfirmEmailCode(email, code string)
	PasswordChanged(email string)
}

type nopNotifier struct{}

func (nopNotifier) ConfirmEmailCode(string, string) {}
func (nopNotifier) PasswordChanged(string)          {}

// Service composes the credential store, the signature resolver and the
// token issuer/verifier into the login, refresh, logout and request
// authentication operations.
type Service struct {
	store    Store
	tokens   *TokenService
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNotifier wires the asynchronous email notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		store:    store,
		tokens:   tokens,
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the issuer/verifier for callers that only verify.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Signup registers a system-provider account and queues a confirmation
// email carrying a short-lived OTP.
func (s *Service) Signup(ctx context.Context, email, userName, password string) error {
	email = normalizeEmail(email)
	userName = strings.TrimSpace(userName)
	if email == "" || userName == "" || password == "" {
		return fmt.Errorf("%w: email, username and password are required", ErrInvalidInput)
	}
	if existing, err := s.store.Users().FindByEmail(ctx, email); err == nil && existing != nil {
		return ErrAlreadyExists
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		UserName:     userName,
		PasswordHash: hash,
		Provider:     ProviderSystem,
		Role:         RoleUser,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return err
	}
	return s.issueConfirmOTP(ctx, user)
}

func (s *Service) issueConfirmOTP(ctx context.Context, user *User) error {
	code, err := GenerateOTPCode()
	if err != nil {
		return err
	}
	codeHash, err := HashPassword(code)
	if err != nil {
		return err
	}
	otp := &OTP{
		ID:        ids.New(),
		UserID:    user.ID,
		CodeHash:  codeHash,
		Purpose:   OTPPurposeConfirmEmail,
		ExpiresAt: s.now().UTC().Add(otpTTL),
	}
	if err := s.store.OTPs().Create(ctx, otp); err != nil {
		return err
	}
	s.notifier.ConfirmEmailCode(user.Email, code)
	return nil
}

// ConfirmEmail matches a pending OTP and marks the account confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.Confirmed() {
		return ErrAlreadyExists
	}
	otp, err := s.store.OTPs().FindPending(ctx, user.ID, OTPPurposeConfirmEmail, s.now().UTC())
	if err != nil {
		return err
	}
	if VerifyPassword(otp.CodeHash, code) != nil {
		return ErrUnauthorized
	}
	if err := s.store.Users().ConfirmEmail(ctx, user.ID, s.now().UTC()); err != nil {
		return err
	}
	return s.store.OTPs().Delete(ctx, otp.ID)
}

// ResendConfirmEmail issues a fresh confirmation OTP for an account that
// has not finished confirmation, replacing any code still pending. Without
// it an account whose code expired would be stuck: unconfirmed, yet unable
// to sign up again.
func (s *Service) ResendConfirmEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Confirmed() {
		return ErrAlreadyExists
	}
	otp, err := s.store.OTPs().FindPending(ctx, user.ID, OTPPurposeConfirmEmail, s.now().UTC())
	switch {
	case err == nil:
		if err := s.store.OTPs().Delete(ctx, otp.ID); err != nil {
			return err
		}
	case errors.Is(err, ErrNotFound):
	default:
		return err
	}
	return s.issueConfirmOTP(ctx, user)
}

// Login validates credentials and issues a tier-appropriate token pair.
// Every failure collapses to ErrUnauthorized so the response leaks nothing.
func (s *Service) Login(ctx context.Context, email, password string) (CredentialPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return CredentialPair{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CredentialPair{}, ErrUnauthorized
		}
		return CredentialPair{}, err
	}
	if user.Provider != ProviderSystem || !user.Confirmed() {
		return CredentialPair{}, ErrUnauthorized
	}
	if VerifyPassword(user.PasswordHash, password) != nil {
		return CredentialPair{}, ErrUnauthorized
	}
	pair, _, err := s.tokens.IssuePair(user.ID, TierForRole(user.Role))
	return pair, err
}

// Authenticate runs the request gate: header parsing, scheme-to-tier
// mapping, signature/expiry verification, revocation lookup, subject
// lookup and the credential-freshness check. Revocation is checked for
// both kinds to keep the security model uniform.
func (s *Service) Authenticate(ctx context.Context, authorization string, kind Kind) (Credentials, error) {
	scheme, token, err := splitAuthorization(authorization)
	if err != nil {
		return Credentials{}, err
	}
	tier, err := TierForScheme(scheme)
	if err != nil {
		return Credentials{}, err
	}
	claims, err := s.tokens.Verify(token, tier, kind)
	if err != nil {
		return Credentials{}, err
	}
	if claims.TokenID != "" {
		revoked, err := s.store.Revocations().IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return Credentials{}, err
		}
		if revoked {
			return Credentials{}, ErrTokenRevoked
		}
	}
	user, err := s.store.Users().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credentials{}, ErrSubjectNotFound
		}
		return Credentials{}, err
	}
	if user.ChangeCredentialsAt != nil && user.ChangeCredentialsAt.After(claims.IssuedAt) {
		return Credentials{}, ErrStaleCredentials
	}
	return Credentials{User: user, Claims: claims}, nil
}

// Refresh authenticates a refresh token, revokes the presented pair and
// issues a fresh one (rotation).
func (s *Service) Refresh(ctx context.Context, authorization string) (CredentialPair, error) {
	creds, err := s.Authenticate(ctx, authorization, KindRefresh)
	if err != nil {
		return CredentialPair{}, err
	}
	if err := s.revokeClaims(ctx, creds.Claims); err != nil {
		return CredentialPair{}, err
	}
	pair, _, err := s.tokens.IssuePair(creds.User.ID, TierForRole(creds.User.Role))
	return pair, err
}

// Logout revokes the authenticated pair's jti. Idempotent: revoking an
// already-revoked jti has no additional effect.
func (s *Service) Logout(ctx context.Context, creds Credentials) error {
	return s.revokeClaims(ctx, creds.Claims)
}

func (s *Service) revokeClaims(ctx context.Context, claims Claims) error {
	if claims.TokenID == "" {
		return ErrMalformedToken
	}
	// Keep the record until the refresh half of the pair would have
	// expired on its own.
	return s.store.Revocations().Revoke(ctx, RevokedToken{
		ID:        ids.New(),
		JTI:       claims.TokenID,
		UserID:    claims.Subject,
		ExpiresAt: claims.IssuedAt.Add(s.tokens.secrets.RefreshTTL),
	})
}

// ChangePassword verifies the old password, stores the new hash and bumps
// the change-credentials timestamp, which instantly invalidates every
// previously issued token without enumerating them.
func (s *Service) ChangePassword(ctx context.Context, creds Credentials, oldPassword, newPassword string) error {
	if creds.User == nil {
		return ErrUnauthorized
	}
	if VerifyPassword(creds.User.PasswordHash, oldPassword) != nil {
		return ErrUnauthorized
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, creds.User.ID, hash, s.now().UTC()); err != nil {
		return err
	}
	s.notifier.PasswordChanged(creds.User.Email)
	return nil
}

// RecentRevocations lists the newest revoked-token records.
func (s *Service) RecentRevocations(ctx context.Context, limit int) ([]RevokedToken, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.Revocations().Recent(ctx, limit)
}

// PruneExpired removes revocation records past their horizon.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.store.Revocations().DeleteExpired(ctx, s.now().UTC())
}

func splitAuthorization(header string) (scheme, token string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", ErrMissingAuthorization
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMissingAuthorization
	}
	return parts[0], parts[1], nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
