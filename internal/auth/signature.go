package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Tier selects which secret pair signs and verifies a token. Elevated
// accounts are signed with distinct secrets so a compromised standard
// secret cannot forge elevated tokens.
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// Authorization scheme literals. The scheme carried alongside the token is
// the explicit tier marker: verification never guesses the tier.
const (
	SchemeStandard = "Bearer"
	SchemeElevated = "System"
)

// TierForRole maps a privilege role to its signature tier. Pure; any
// administrative role is elevated, everything else is standard.
func TierForRole(role Role) Tier {
	switch role {
	case RoleAdmin, RoleSuperAdmin:
		return TierElevated
	default:
		return TierStandard
	}
}

// TierForScheme maps an Authorization scheme to its tier.
func TierForScheme(scheme string) (Tier, error) {
	switch scheme {
	case SchemeStandard:
		return TierStandard, nil
	case SchemeElevated:
		return TierElevated, nil
	default:
		return "", ErrInvalidToken
	}
}

// Scheme returns the Authorization scheme clients present for this tier.
func (t Tier) Scheme() string {
	if t == TierElevated {
		return SchemeElevated
	}
	return SchemeStandard
}

// SecretPair holds the HMAC material for one tier.
type SecretPair struct {
	Access  []byte
	Refresh []byte
}

// Secrets is the full signing configuration: one secret pair per tier plus
// token lifetimes. Loaded once at process start; a missing secret is a
// fatal startup condition, never a per-request failure.
type Secrets struct {
	Standard   SecretPair
	Elevated   SecretPair
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
)

// Environment variables consumed by SecretsFromEnv.
const (
	envStandardAccess  = "TIJARA_ACCESS_USER_TOKEN_SECRET"
	envStandardRefresh = "TIJARA_REFRESH_USER_TOKEN_SECRET"
	envElevatedAccess  = "TIJARA_ACCESS_SYSTEM_TOKEN_SECRET"
	envElevatedRefresh = "TIJARA_REFRESH_SYSTEM_TOKEN_SECRET"
	envAccessTTL       = "TIJARA_ACCESS_TTL"
	envRefreshTTL      = "TIJARA_REFRESH_TTL"
)

// SecretsFromEnv reads the four signing secrets and the token lifetimes
// from the environment. All four secrets are required.
func SecretsFromEnv() (Secrets, error) {
	s := Secrets{
		AccessTTL:  defaultAccessTTL,
		RefreshTTL: defaultRefreshTTL,
	}
	for _, entry := range []struct {
		env  string
		dest *[]byte
	}{
		{envStandardAccess, &s.Standard.Access},
		{envStandardRefresh, &s.Standard.Refresh},
		{envElevatedAccess, &s.Elevated.Access},
		{envElevatedRefresh, &s.Elevated.Refresh},
	} {
		raw := strings.TrimSpace(os.Getenv(entry.env))
		if raw == "" {
			return Secrets{}, fmt.Errorf("auth: %s is not set", entry.env)
		}
		*entry.dest = []byte(raw)
	}
	if raw := strings.TrimSpace(os.Getenv(envAccessTTL)); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Secrets{}, fmt.Errorf("auth: invalid %s: %q", envAccessTTL, raw)
		}
		s.AccessTTL = ttl
	}
	if raw := strings.TrimSpace(os.Getenv(envRefreshTTL)); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Secrets{}, fmt.Errorf("auth: invalid %s: %q", envRefreshTTL, raw)
		}
		s.RefreshTTL = ttl
	}
	return s, s.validate()
}

func (s Secrets) validate() error {
	if len(s.Standard.Access) == 0 || len(s.Standard.Refresh) == 0 ||
		len(s.Elevated.Access) == 0 || len(s.Elevated.Refresh) == 0 {
		return errors.New("auth: all four signing secrets are required")
	}
	if s.AccessTTL <= 0 || s.RefreshTTL <= 0 {
		return errors.New("auth: token lifetimes must be positive")
	}
	return nil
}

// pair resolves the secret material for a tier.
func (s Secrets) pair(tier Tier) SecretPair {
	if tier == TierElevated {
		return s.Elevated
	}
	return s.Standard
}

// secretFor resolves the concrete secret for a tier and token kind.
func (s Secrets) secretFor(tier Tier, kind Kind) []byte {
	p := s.pair(tier)
	if kind == KindRefresh {
		return p.Refresh
	}
	return p.Access
}

// ttlFor returns the lifetime for a token kind.
func (s Secrets) ttlFor(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.RefreshTTL
	}
	return s.AccessTTL
}
