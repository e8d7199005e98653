package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
)

const (
	defaultJWTIssuer = "floodwatch-api"
	// DefaultSessionTTL is the lifetime of a login token.
	DefaultSessionTTL = 24 * time.Hour
	minSecretBytes    = 16
)

// defaultJWTLeeway absorbs clock skew on iat and nbf. Expiry is exact.
var defaultJWTLeeway = 30 * time.Second

// ErrInvalidSession is returned for any token that fails verification.
var ErrInvalidSession = errors.New("invalid session token")

// JWTOptions configures claim validation.
type JWTOptions struct {
	Issuer string
	// Leeway tolerates issuer clock skew on iat and nbf only.
	Leeway time.Duration
	// AllowShortSecret permits secrets under 16 bytes (local development only).
	AllowShortSecret bool
}

// SessionClaims is the identity carried inside a session token.
//
// Role is a snapshot taken at login. It is not re-read from the account on
// each request, so a demoted admin keeps admin rights until the token expires.
type SessionClaims struct {
	UserID    string
	Role      domain.UserRole
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSessionStore issues and verifies stateless HS256 session tokens.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTSessionStore builds an HS256 token store from a shared secret.
func NewJWTSessionStore(secret string, ttl time.Duration, opts JWTOptions) (*JWTSessionStore, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if len(secret) < minSecretBytes && !opts.AllowShortSecret {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: opts.Issuer,
		leeway: opts.Leeway,
		now:    time.Now,
	}, nil
}

// TTL returns the configured session lifetime.
func (s *JWTSessionStore) TTL() time.Duration { return s.ttl }

// NewSession signs a token binding the user's id and current role.
func (s *JWTSessionStore) NewSession(user domain.User) (string, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", errors.New("session subject missing")
	}
	now := s.now().UTC()
	claims := sessionTokenClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        util.NewID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseSession verifies signature, issuer and expiry and returns the claims.
// A token is rejected from the instant it expires.
// Every failure is reported as ErrInvalidSession wrapping the cause.
func (s *JWTSessionStore) ParseSession(token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrInvalidSession
	}
	var claims sessionTokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return SessionClaims{}, ErrInvalidSession
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidSession, jwt.ErrTokenExpired)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, fmt.Errorf("%w: subject missing", ErrInvalidSession)
	}
	role := domain.UserRole(claims.Role)
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return SessionClaims{}, fmt.Errorf("%w: unknown role %q", ErrInvalidSession, claims.Role)
	}
	out := SessionClaims{
		UserID:  claims.Subject,
		Role:    role,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

func normalizeJWTOptions(opts JWTOptions) JWTOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	if opts.Issuer == "" {
		opts.Issuer = defaultJWTIssuer
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return opts
}
