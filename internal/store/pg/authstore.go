package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staffgate.org/internal/auth"
)

var (
	_ auth.UserStore         = (*UserStore)(nil)
	_ auth.RefreshTokenStore = (*RefreshTokenStore)(nil)
	_ auth.RevokedTokenStore = (*RevokedTokenStore)(nil)
)

// Users returns the user directory backed by this pool.
func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

// RefreshTokens returns the refresh token store backed by this pool.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{db: s.db} }

// RevokedTokens returns the access token denylist backed by this pool.
func (s *Store) RevokedTokens() *RevokedTokenStore { return &RevokedTokenStore{db: s.db} }

// UserStore reads accounts from the users table. The service never
// writes users; provisioning is the migration seeds' job.
type UserStore struct{ db *sql.DB }

const userColumns = `id, username, coalesce(display_name,''), email, role, coalesce(organization_id,''), password_hash, is_active, created_at`

func scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role,
		&u.OrganizationID, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username))
}

func (s *UserStore) ListStaff(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where role='staff' and is_active order by username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role,
			&u.OrganizationID, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// RefreshTokenStore persists the hashed half of refresh credentials.
type RefreshTokenStore struct{ db *sql.DB }

func (s *RefreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, created_at) values($1,$2,$3,$4,$5)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	return err
}

func (s *RefreshTokenStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, created_at, revoked_at is not null
		 from refresh_tokens where id=$1`, id).
		Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *RefreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=now() where id=$1 and revoked_at is null`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RefreshTokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=now() where user_id=$1 and revoked_at is null`, userID)
	return err
}

// RevokedTokenStore is the jti denylist. Rows past their expiry are
// ignored on lookup and can be swept at any time.
type RevokedTokenStore struct{ db *sql.DB }

func (s *RevokedTokenStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(jti, expires_at) values($1,$2) on conflict (jti) do nothing`,
		jti, expiresAt)
	return err
}

func (s *RevokedTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where jti=$1 and expires_at > now())`, jti).
		Scan(&revoked)
	return revoked, err
}
