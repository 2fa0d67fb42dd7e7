package auth

import "time"

// User is an account in the external user directory. The service reads
// users but never provisions them.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name,omitempty"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	OrganizationID string    `json:"organization_id,omitempty"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Identity is the server-side view of a validated session: who the
// caller is and the role claim minted at login. The role is always
// re-derived from the signed token, never from client-cached data.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsZero reports whether the identity carries no authenticated caller.
func (id Identity) IsZero() bool {
	return id.UserID == ""
}

// Session is the opaque credential bundle returned at login. Sessions
// are immutable once issued; logout and expiry destroy them.
type Session struct {
	AccessToken      string    `json:"access"`
	RefreshToken     string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is the persisted server-side half of a refresh
// credential. Only a SHA-256 hash of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}
