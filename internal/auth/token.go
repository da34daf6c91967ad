package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "tijara"

// Kind distinguishes the two halves of a credential pair.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims are the verified fields extracted from a token.
type Claims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService signs and verifies bearer tokens with tier-scoped HS256
// secrets.
type TokenService struct {
	secrets Secrets
	now     func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithClock overrides the time source (useful for expiry tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs the issuer/verifier. Secrets must already be
// validated; construction fails fast on incomplete material.
func NewTokenService(secrets Secrets, opts ...TokenOption) (*TokenService, error) {
	if err := secrets.validate(); err != nil {
		return nil, err
	}
	s := &TokenService{secrets: secrets, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token of the given kind for the subject. The jti is
// supplied by the caller so both tokens of a login can share one; the
// service never generates it itself.
func (s *TokenService) Issue(subject string, tier Tier, kind Kind, jti string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	if strings.TrimSpace(jti) == "" {
		return "", time.Time{}, errors.New("auth: jti is required")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.secrets.ttlFor(kind))
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secrets.secretFor(tier, kind))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssuePair mints an access and a refresh token sharing one fresh jti.
func (s *TokenService) IssuePair(subject string, tier Tier) (CredentialPair, Claims, error) {
	jti := uuid.NewString()
	access, accessExp, err := s.Issue(subject, tier, KindAccess, jti)
	if err != nil {
		return CredentialPair{}, Claims{}, err
	}
	refresh, refreshExp, err := s.Issue(subject, tier, KindRefresh, jti)
	if err != nil {
		return CredentialPair{}, Claims{}, err
	}
	pair := CredentialPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	return pair, Claims{Subject: subject, TokenID: jti, ExpiresAt: accessExp}, nil
}

// Verify validates signature, expiry and structural claims against the
// tier+kind secret. The tier comes from the explicit scheme marker, never
// from the token itself.
func (s *TokenService) Verify(token string, tier Tier, kind Kind) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return s.secrets.secretFor(tier, kind), nil
		},
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return Claims{}, ErrMalformedToken
	}
	out := Claims{
		Subject:  claims.Subject,
		TokenID:  claims.ID,
		IssuedAt: claims.IssuedAt.Time,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
