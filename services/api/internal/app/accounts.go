package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"floodwatch/pkg/auth"
	"floodwatch/pkg/domain"
	"floodwatch/pkg/store"
)

const (
	defaultAdminEmail    = "admin@flood.lk"
	defaultAdminName     = "Admin"
	defaultAdminPassword = "admin123"
)

// Identity is the authenticated caller as asserted by the session token.
type Identity struct {
	UserID string
	Role   domain.UserRole
}

type identityKey struct{}

// ContextWithIdentity attaches the caller to ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller attached by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// SeedAdminInput overrides the default seeded account. Blank fields fall back
// to the defaults.
type SeedAdminInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with role user.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return domain.User{}, invalid("All fields required")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, invalid("%s", err.Error())
	}
	_, exists, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, storageErr("check email", err)
	}
	if exists {
		return domain.User{}, ErrDuplicateIdentity
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := a.store.SaveUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrDuplicateIdentity
		}
		return domain.User{}, storageErr("save user", err)
	}
	return user, nil
}

// Authenticate checks credentials and issues a session token carrying the
// user's current role.
func (a *App) Authenticate(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", invalid("Email and password required")
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", storageErr("fetch user", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Authorize validates a bearer token without touching the store.
func (a *App) Authorize(token string) (Identity, error) {
	claims, err := a.sessions.ParseSession(token)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// RequireRole checks the caller in ctx against role.
func (a *App) RequireRole(ctx context.Context, role domain.UserRole) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if id.Role != role {
		return ErrForbidden
	}
	return nil
}

// SeedAdmin creates or resets the bootstrap admin. Only allowed in development.
func (a *App) SeedAdmin(ctx context.Context, in SeedAdminInput) (domain.User, bool, error) {
	if !a.IsDevelopment() {
		return domain.User{}, false, ErrForbidden
	}
	return a.EnsureAdmin(ctx, in)
}

// EnsureAdmin is SeedAdmin without the environment gate, for operator tooling
// that already has direct store access.
func (a *App) EnsureAdmin(ctx context.Context, in SeedAdminInput) (domain.User, bool, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		email = defaultAdminEmail
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultAdminName
	}
	password := in.Password
	if password == "" {
		password = defaultAdminPassword
	}
	role := domain.RoleAdmin
	if r := strings.TrimSpace(in.Role); r != "" && r != string(domain.RoleAdmin) {
		role = domain.RoleUser
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, false, invalid("%s", err.Error())
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("hash password: %w", err)
	}

	user, exists, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, false, storageErr("fetch user", err)
	}
	if !exists {
		user = domain.User{Email: email}
	}
	user.Name = name
	user.PasswordHash = hash
	user.Role = role
	if err := a.store.SaveUser(ctx, &user); err != nil {
		return domain.User{}, false, storageErr("save admin", err)
	}
	return user, !exists, nil
}

// PromoteToAdmin grants the admin role. Tokens issued earlier keep their old
// role until they expire.
func (a *App) PromoteToAdmin(ctx context.Context, userID string) (domain.User, error) {
	user, err := a.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.Role == domain.RoleAdmin {
		return user, nil
	}
	user.Role = domain.RoleAdmin
	if err := a.store.SaveUser(ctx, &user); err != nil {
		return domain.User{}, storageErr("save user", err)
	}
	return user, nil
}

func (a *App) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, storageErr("fetch user", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}
