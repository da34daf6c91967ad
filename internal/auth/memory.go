package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store for tests and local development. It
// honors the same contracts as the Postgres implementation, including
// idempotent revocation.
type MemStore struct {
	mu      sync.Mutex
	users   map[string]*User
	revoked map[string]RevokedToken
	otps    map[string]*OTP
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]*User),
		revoked: make(map[string]RevokedToken),
		otps:    make(map[string]*OTP),
	}
}

func (m *MemStore) Users() UserStore             { return (*memUsers)(m) }
func (m *MemStore) Revocations() RevocationStore { return (*memRevocations)(m) }
func (m *MemStore) OTPs() OTPStore               { return (*memOTPs)(m) }

type memUsers MemStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	cp := *u
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
		cp.UpdatedAt = now
	}
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) ConfirmEmail(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.ConfirmedAt = &at
	u.UpdatedAt = at
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ChangeCredentialsAt = &changedAt
	u.UpdatedAt = changedAt
	return nil
}

type memRevocations MemStore

func (m *memRevocations) Revoke(_ context.Context, tok RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[tok.JTI]; ok {
		return nil
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	m.revoked[tok.JTI] = tok
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *memRevocations) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, tok := range m.revoked {
		if tok.ExpiresAt.Before(now) {
			delete(m.revoked, jti)
			n++
		}
	}
	return n, nil
}

func (m *memRevocations) Recent(_ context.Context, limit int) ([]RevokedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RevokedToken, 0, len(m.revoked))
	for _, tok := range m.revoked {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memOTPs MemStore

func (m *memOTPs) Create(_ context.Context, otp *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *otp
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.otps[otp.ID] = &cp
	return nil
}

func (m *memOTPs) FindPending(_ context.Context, userID, purpose string, now time.Time) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, otp := range m.otps {
		if otp.UserID == userID && otp.Purpose == purpose && otp.ExpiresAt.After(now) {
			cp := *otp
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOTPs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.otps, id)
	return nil
}
