package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSecrets() Secrets {
	return Secrets{
		Standard:   SecretPair{Access: []byte("std-access"), Refresh: []byte("std-refresh")},
		Elevated:   SecretPair{Access: []byte("elev-access"), Refresh: []byte("elev-refresh")},
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
	}
}

func TestIssuePairSharesTokenID(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	pair, claims, err := svc.IssuePair("user-1", TierStandard)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if claims.TokenID == "" {
		t.Fatal("expected a generated jti")
	}

	access, err := svc.Verify(pair.AccessToken, TierStandard, KindAccess)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	refresh, err := svc.Verify(pair.RefreshToken, TierStandard, KindRefresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if access.Subject != "user-1" || refresh.Subject != "user-1" {
		t.Fatalf("subjects not preserved: %q / %q", access.Subject, refresh.Subject)
	}
	if access.TokenID != refresh.TokenID {
		t.Fatalf("pair does not share one jti: %q vs %q", access.TokenID, refresh.TokenID)
	}
	if access.TokenID != claims.TokenID {
		t.Fatalf("claims jti mismatch: %q vs %q", access.TokenID, claims.TokenID)
	}
}

func TestVerifyRoundTripPerKind(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	for _, kind := range []Kind{KindAccess, KindRefresh} {
		for _, tier := range []Tier{TierStandard, TierElevated} {
			token, _, err := svc.Issue("subject-9", tier, kind, "jti-1")
			if err != nil {
				t.Fatalf("Issue(%s,%s): %v", tier, kind, err)
			}
			claims, err := svc.Verify(token, tier, kind)
			if err != nil {
				t.Fatalf("Verify(%s,%s): %v", tier, kind, err)
			}
			if claims.Subject != "subject-9" || claims.TokenID != "jti-1" {
				t.Fatalf("claims not recovered: %+v", claims)
			}
			if claims.IssuedAt.IsZero() || claims.ExpiresAt.IsZero() {
				t.Fatalf("timestamps missing: %+v", claims)
			}
		}
	}
}

func TestVerifyRejectsCrossTier(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	standard, _, err := svc.Issue("user-1", TierStandard, KindAccess, "jti-std")
	if err != nil {
		t.Fatalf("Issue standard: %v", err)
	}
	if _, err := svc.Verify(standard, TierElevated, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("standard token against elevated secret: got %v, want ErrInvalidToken", err)
	}

	elevated, _, err := svc.Issue("admin-1", TierElevated, KindAccess, "jti-elev")
	if err != nil {
		t.Fatalf("Issue elevated: %v", err)
	}
	if _, err := svc.Verify(elevated, TierStandard, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("elevated token against standard secret: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsCrossKind(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	refresh, _, err := svc.Issue("user-1", TierStandard, KindRefresh, "jti-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(refresh, TierStandard, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token against access secret: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc, err := NewTokenService(testSecrets(), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _, err := svc.Issue("user-1", TierStandard, KindAccess, "jti-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(token, TierStandard, KindAccess); err != nil {
		t.Fatalf("verify within lifetime: %v", err)
	}

	clock = now.Add(16 * time.Minute)
	if _, err := svc.Verify(token, TierStandard, KindAccess); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("verify past lifetime: got %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Signed with the right secret but missing sub and iat.
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "tijara",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte("std-access"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token, TierStandard, KindAccess); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("got %v, want ErrMalformedToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.Verify(token, TierStandard, KindAccess); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): got %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestIssueRequiresSubjectAndJTI(t *testing.T) {
	svc, err := NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	if _, _, err := svc.Issue("", TierStandard, KindAccess, "jti"); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, _, err := svc.Issue("user-1", TierStandard, KindAccess, ""); err == nil {
		t.Fatal("expected error for empty jti")
	}
}
