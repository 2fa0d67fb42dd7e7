package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"staffgate.org/internal/ids"
)

const (
	defaultIssuer     = "staffgate"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14

	secretEnvVariable = "STAFFGATE_AUTH_SECRET"
)

// Claims are the JWT claims carried by access tokens. The role claim is
// what the gate trusts; it is signed server-side and immutable for the
// life of the session.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues, validates and revokes authentication sessions.
type Service struct {
	users   UserStore
	refresh RefreshTokenStore
	revoked RevokedTokenStore

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecret overrides the HS256 signing secret read from the environment.
func WithSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: secret must not be empty")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the session manager. The signing secret comes
// from WithSecret or the STAFFGATE_AUTH_SECRET environment variable.
func NewService(users UserStore, refresh RefreshTokenStore, revoked RevokedTokenStore, opts ...ServiceOption) (*Service, error) {
	if users == nil || refresh == nil || revoked == nil {
		return nil, errors.New("auth: all stores are required")
	}
	svc := &Service{
		users:      users,
		refresh:    refresh,
		revoked:    revoked,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
		if raw == "" {
			return nil, fmt.Errorf("auth: signing secret is not configured (set %s)", secretEnvVariable)
		}
		svc.secret = []byte(raw)
	}
	return svc, nil
}

// Authenticate verifies username/password against the user directory and
// issues a fresh token pair. The response is identical for unknown
// usernames, wrong passwords and inactive accounts.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Session, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return Session{}, nil, ErrInvalidCredentials
	}
	if !user.Active {
		return Session{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, nil, ErrInvalidCredentials
	}
	sess, err := s.mintSession(ctx, user)
	if err != nil {
		return Session{}, nil, err
	}
	return sess, user, nil
}

// Validate checks the access token signature, expiry and revocation
// state and returns the caller's identity.
func (s *Service) Validate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	if revoked, err := s.revoked.IsRevoked(ctx, claims.ID); err != nil {
		return Identity{}, err
	} else if revoked {
		return Identity{}, ErrUnauthenticated
	}
	// A disabled account invalidates outstanding sessions immediately.
	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil || !user.Active {
		return Identity{}, ErrUnauthenticated
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.Subject, Username: claims.Username, Role: role}, nil
}

// Refresh rotates the refresh token and issues a new session. The old
// refresh token is revoked whether or not rotation succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, *User, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return Session{}, nil, ErrUnauthenticated
	}
	record, err := s.refresh.Find(ctx, tokenID)
	if err != nil {
		return Session{}, nil, ErrUnauthenticated
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return Session{}, nil, ErrUnauthenticated
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = s.refresh.MarkRevoked(ctx, record.ID)
		return Session{}, nil, ErrUnauthenticated
	}
	user, err := s.users.Find(ctx, record.UserID)
	if err != nil || !user.Active {
		return Session{}, nil, ErrUnauthenticated
	}
	if err := s.refresh.MarkRevoked(ctx, record.ID); err != nil {
		return Session{}, nil, err
	}
	sess, err := s.mintSession(ctx, user)
	if err != nil {
		return Session{}, nil, err
	}
	return sess, user, nil
}

// Invalidate revokes both halves of a session. It is idempotent and
// tolerates tokens that are already expired, malformed or revoked.
func (s *Service) Invalidate(ctx context.Context, accessToken, refreshToken string) error {
	if claims, err := s.parseAccessTokenAllowExpired(accessToken); err == nil && claims.ID != "" {
		exp := s.now().Add(s.accessTTL)
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		if err := s.revoked.Revoke(ctx, claims.ID, exp); err != nil {
			return err
		}
	}
	if tokenID, _, err := splitRefreshToken(refreshToken); err == nil {
		if err := s.refresh.MarkRevoked(ctx, tokenID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *Service) mintSession(ctx context.Context, user *User) (Session, error) {
	now := s.now().UTC()
	accessExp := now.Add(s.accessTTL)

	claims := Claims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshString, refreshRec, err := s.generateRefreshToken(user.ID, now)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.Create(ctx, refreshRec); err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken:      access,
		RefreshToken:     refreshString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshRec.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	rec := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	return tokenID + "." + secret, rec, nil
}

func (s *Service) parseAccessToken(token string) (*Claims, error) {
	return s.parse(token, jwt.WithExpirationRequired())
}

func (s *Service) parseAccessTokenAllowExpired(token string) (*Claims, error) {
	return s.parse(token, jwt.WithoutClaimsValidation())
}

func (s *Service) parse(token string, extra ...jwt.ParserOption) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	opts := append([]jwt.ParserOption{
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	}, extra...)
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthenticated
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
