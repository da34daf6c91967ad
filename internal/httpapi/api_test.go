package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tijara.org/internal/auth"
)

func testSecrets() auth.Secrets {
	return auth.Secrets{
		Standard:   auth.SecretPair{Access: []byte("std-access"), Refresh: []byte("std-refresh")},
		Elevated:   auth.SecretPair{Access: []byte("elev-access"), Refresh: []byte("elev-refresh")},
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
	}
}

// brokenStore fails revocation lookups to simulate a database outage.
type brokenStore struct {
	auth.Store
	err error
}

func (s *brokenStore) Revocations() auth.RevocationStore {
	return &brokenRevocations{err: s.err}
}

type brokenRevocations struct {
	auth.RevocationStore
	err error
}

func (s *brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, s.err
}

type apiFixture struct {
	svc     *auth.Service
	store   auth.Store
	handler http.Handler
}

func newAPIFixture(t *testing.T, store auth.Store) *apiFixture {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(svc, ReadyProbe{}, "test")
	return &apiFixture{svc: svc, store: store, handler: api.Handler()}
}

func (f *apiFixture) addUser(t *testing.T, email, password string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	confirmed := time.Now().UTC().Add(-time.Hour)
	u := &auth.User{
		ID:           "user-" + email,
		Email:        email,
		UserName:     email,
		PasswordHash: hash,
		Provider:     auth.ProviderSystem,
		Role:         role,
		ConfirmedAt:  &confirmed,
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *apiFixture) login(t *testing.T, email, password string) auth.CredentialPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return pair
}

func (f *apiFixture) do(method, path, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:50000"
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestHealthzIsPublic(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())

	rec := f.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}

func TestGateRejectsAnonymous(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		rec := f.do(http.MethodGet, "/v1/users/me", header, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status %d, want 401", header, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("header %q: missing WWW-Authenticate", header)
		}
		// The body never distinguishes failure kinds.
		body := decodeBody(t, rec)
		if body["error"] != "unauthorized" {
			t.Fatalf("header %q: body leaks detail: %v", header, body)
		}
	}
}

func TestSignupConfirmLoginFlow(t *testing.T) {
	store := auth.NewMemStore()
	tokens, err := auth.NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	var code string
	notifier := notifierFunc(func(c string) { code = c })
	svc, err := auth.NewService(store, tokens, auth.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(svc, ReadyProbe{}, "test")
	f := &apiFixture{svc: svc, store: store, handler: api.Handler()}

	rec := f.do(http.MethodPost, "/v1/auth/signup", "",
		`{"email":"shop@example.com","username":"shopper","password":"s3cret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body.String())
	}
	if len(code) != 6 {
		t.Fatalf("no OTP delivered, got %q", code)
	}

	rec = f.do(http.MethodPost, "/v1/auth/confirm-email", "",
		`{"email":"shop@example.com","code":"`+code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPost, "/v1/auth/login", "",
		`{"email":"shop@example.com","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("missing tokens: %v", body)
	}
}

// notifierFunc adapts a code capture into the Notifier interface.
type notifierFunc func(code string)

func (f notifierFunc) ConfirmEmailCode(_, code string) { f(code) }
func (f notifierFunc) PasswordChanged(string)          {}

func TestResendConfirmEmail(t *testing.T) {
	store := auth.NewMemStore()
	tokens, err := auth.NewTokenService(testSecrets())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	var code string
	notifier := notifierFunc(func(c string) { code = c })
	svc, err := auth.NewService(store, tokens, auth.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(svc, ReadyProbe{}, "test")
	f := &apiFixture{svc: svc, store: store, handler: api.Handler()}

	rec := f.do(http.MethodPost, "/v1/auth/signup", "",
		`{"email":"slow@example.com","username":"slow","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body.String())
	}

	// Public route, no credentials required.
	rec = f.do(http.MethodPost, "/v1/auth/resend-confirm-email", "",
		`{"email":"slow@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resend status %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodPost, "/v1/auth/confirm-email", "",
		`{"email":"slow@example.com","code":"`+code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", rec.Code, rec.Body.String())
	}

	// Confirmed accounts and unknown emails are rejected.
	rec = f.do(http.MethodPost, "/v1/auth/resend-confirm-email", "",
		`{"email":"slow@example.com"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("confirmed resend status %d, want 409", rec.Code)
	}
	rec = f.do(http.MethodPost, "/v1/auth/resend-confirm-email", "",
		`{"email":"ghost@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown resend status %d, want 400", rec.Code)
	}
}

func TestSignupRejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())

	for _, body := range []string{"", "{", `{"email":"x@example.com","unknown":true}`} {
		rec := f.do(http.MethodPost, "/v1/auth/signup", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status %d, want 400", body, rec.Code)
		}
	}
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "taken@example.com", "pw", auth.RoleUser)

	rec := f.do(http.MethodPost, "/v1/auth/signup", "",
		`{"email":"taken@example.com","username":"again","password":"pw2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
}

func TestMeReturnsAuthenticatedIdentity(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	u := f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	rec := f.do(http.MethodGet, "/v1/users/me", "Bearer "+pair.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["id"] != u.ID || body["email"] != u.Email {
		t.Fatalf("wrong identity: %v", body)
	}
}

func TestLogoutRevokesAccess(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	rec := f.do(http.MethodPost, "/v1/auth/logout", "Bearer "+pair.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/v1/users/me", "Bearer "+pair.AccessToken, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout status %d, want 401", rec.Code)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	rec := f.do(http.MethodPost, "/v1/auth/refresh", "Bearer "+pair.RefreshToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	next, _ := body["refresh_token"].(string)
	if next == "" || next == pair.RefreshToken {
		t.Fatalf("refresh token was not rotated: %v", body)
	}

	// The consumed refresh token is dead.
	rec = f.do(http.MethodPost, "/v1/auth/refresh", "Bearer "+pair.RefreshToken, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status %d, want 401", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	rec := f.do(http.MethodPost, "/v1/users/password", "Bearer "+pair.AccessToken,
		`{"old_password":"wrong","new_password":"pw2"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong old password: status %d, want 401", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/users/password", "Bearer "+pair.AccessToken,
		`{"old_password":"pw","new_password":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty new password: status %d, want 400", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/users/password", "Bearer "+pair.AccessToken,
		`{"old_password":"pw","new_password":"pw2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("change status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminEndpointEnforcesRoles(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	f.addUser(t, "admin@example.com", "pw", auth.RoleAdmin)

	userPair := f.login(t, "user@example.com", "pw")
	adminPair := f.login(t, "admin@example.com", "pw")

	rec := f.do(http.MethodGet, "/v1/admin/revoked-tokens", "Bearer "+userPair.AccessToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user: status %d, want 403", rec.Code)
	}

	// Elevated tokens travel under the System scheme.
	rec = f.do(http.MethodGet, "/v1/admin/revoked-tokens", "System "+adminPair.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, ok := body["revoked_tokens"]; !ok {
		t.Fatalf("missing revoked_tokens key: %v", body)
	}

	rec = f.do(http.MethodGet, "/v1/admin/revoked-tokens?limit=0", "System "+adminPair.AccessToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0: status %d, want 400", rec.Code)
	}
}

func TestStoreOutageReturns503(t *testing.T) {
	base := auth.NewMemStore()
	f := newAPIFixture(t, base)
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	broken := newAPIFixture(t, &brokenStore{Store: base, err: errors.New("connection refused")})
	rec := broken.do(http.MethodGet, "/v1/users/me", "Bearer "+pair.AccessToken, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "" {
		t.Fatal("outage must not look like an auth failure")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())

	rec := f.do(http.MethodGet, "/v1/auth/login", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("Allow=%q, want POST", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t, auth.NewMemStore())
	f.addUser(t, "user@example.com", "pw", auth.RoleUser)
	pair := f.login(t, "user@example.com", "pw")

	// Anonymous probes of unknown paths hit the gate before the router.
	rec := f.do(http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d, want 401", rec.Code)
	}

	rec = f.do(http.MethodGet, "/nope", "Bearer "+pair.AccessToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("authenticated: status %d, want 404", rec.Code)
	}
}
