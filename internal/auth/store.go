package auth

import (
	"context"
	"time"
)

// UserStore is the read-only user directory consumed by the session
// manager. Provisioning happens out of process.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// ListStaff returns active staff accounts ordered by username.
	ListStaff(ctx context.Context) ([]*User, error)
}

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}

// RevokedTokenStore is the access-token denylist. Entries only need to
// outlive the token they revoke.
type RevokedTokenStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
