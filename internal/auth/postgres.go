package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tijara.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL via database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Revocations() RevocationStore { return &revocationStore{db: s.db} }
func (s *PGStore) OTPs() OTPStore               { return &otpStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, user_name, password_hash, provider, role,
	confirmed_at, change_credentials_at, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, user_name, password_hash, provider, role)
		 values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Email, u.UserName, nullString(u.PasswordHash), string(u.Provider), string(u.Role),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u        User
		hash     sql.NullString
		provider string
		role     string
	)
	err := row.Scan(&u.ID, &u.Email, &u.UserName, &hash, &provider, &role,
		&u.ConfirmedAt, &u.ChangeCredentialsAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.PasswordHash = hash.String
	u.Provider = Provider(provider)
	u.Role = Role(role)
	return &u, nil
}

func (s *userStore) ConfirmEmail(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set confirmed_at=$2, updated_at=now() where id=$1`,
		userID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users
		 set password_hash=$2, change_credentials_at=$3, updated_at=now()
		 where id=$1`,
		userID, passwordHash, changedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Revocation store ---------------------------------------------------------

type revocationStore struct{ db *sql.DB }

func (s *revocationStore) Revoke(ctx context.Context, tok RevokedToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	// Duplicate jti is a no-op: revoking twice must not fail.
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(id, jti, user_id, expires_at)
		 values($1,$2,$3,$4)
		 on conflict (jti) do nothing`,
		tok.ID, tok.JTI, tok.UserID, tok.ExpiresAt)
	return err
}

func (s *revocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *revocationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *revocationStore) Recent(ctx context.Context, limit int) ([]RevokedToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, jti, user_id, expires_at, created_at
		 from revoked_tokens order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevokedToken
	for rows.Next() {
		var tok RevokedToken
		if err := rows.Scan(&tok.ID, &tok.JTI, &tok.UserID, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

// OTP store ----------------------------------------------------------------

type otpStore struct{ db *sql.DB }

func (s *otpStore) Create(ctx context.Context, otp *OTP) error {
	if otp.ID == "" {
		otp.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into otps(id, user_id, code_hash, purpose, expires_at)
		 values($1,$2,$3,$4,$5)`,
		otp.ID, otp.UserID, otp.CodeHash, otp.Purpose, otp.ExpiresAt)
	return err
}

func (s *otpStore) FindPending(ctx context.Context, userID, purpose string, now time.Time) (*OTP, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, code_hash, purpose, expires_at, created_at
		 from otps
		 where user_id=$1 and purpose=$2 and expires_at > $3
		 order by created_at desc limit 1`,
		userID, purpose, now)
	var otp OTP
	err := row.Scan(&otp.ID, &otp.UserID, &otp.CodeHash, &otp.Purpose, &otp.ExpiresAt, &otp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &otp, nil
}

func (s *otpStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from otps where id=$1`, id)
	return err
}

// helpers ------------------------------------------------------------------

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
