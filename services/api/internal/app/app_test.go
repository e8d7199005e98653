package app

import (
	"context"
	"errors"
	"testing"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/govfeed"
	"floodwatch/pkg/reconcile"
	"floodwatch/pkg/storage"
	"floodwatch/pkg/store"
)

const testSecret = "app-test-secret-0123456789"

func newTestApp(t *testing.T, env string) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(testSecret, store.DefaultSessionTTL, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	engine := reconcile.New(st, govfeed.NewClient("", 0), nil, reconcile.Config{})
	a, err := New(Config{
		Store:       st,
		Sessions:    sessions,
		Engine:      engine,
		Photos:      storage.NewMemoryObjectStore(),
		Environment: env,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestRegisterThenAuthenticateRoundTrip(t *testing.T) {
	a, _ := newTestApp(t, "production")
	ctx := context.Background()

	user, err := a.Register(ctx, RegisterInput{Name: "Nimal", Email: "  Nimal@Example.LK ", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "nimal@example.lk" || user.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "" || user.PasswordHash == "s3cret!" {
		t.Fatalf("password must be stored hashed")
	}

	logged, token, err := a.Authenticate(ctx, "NIMAL@example.lk", "s3cret!")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if logged.ID != user.ID || token == "" {
		t.Fatalf("unexpected login result: %+v %q", logged, token)
	}
	id, err := a.Authorize(token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if id.UserID != user.ID || id.Role != domain.RoleUser {
		t.Fatalf("identity = %+v", id)
	}
}

func TestRegisterRejectsDuplicatesAndMissingFields(t *testing.T) {
	a, _ := newTestApp(t, "production")
	ctx := context.Background()
	if _, err := a.Register(ctx, RegisterInput{Name: "A", Email: "a@x.lk", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := a.Register(ctx, RegisterInput{Name: "B", Email: "A@X.LK", Password: "pw2"}); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected duplicate identity, got %v", err)
	}
	for _, in := range []RegisterInput{
		{Email: "c@x.lk", Password: "pw"},
		{Name: "C", Password: "pw"},
		{Name: "C", Email: "c@x.lk"},
	} {
		_, err := a.Register(ctx, in)
		var verr *ValidationError
		if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
			t.Fatalf("Register(%+v) err = %v", in, err)
		}
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	a, st := newTestApp(t, "production")
	ctx := context.Background()
	if _, err := a.Register(ctx, RegisterInput{Name: "A", Email: "a@x.lk", Password: "right"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	noHash := domain.User{Name: "Legacy", Email: "legacy@x.lk", Role: domain.RoleUser}
	if err := st.SaveUser(ctx, &noHash); err != nil {
		t.Fatalf("save user: %v", err)
	}

	cases := []struct{ email, password string }{
		{"nobody@x.lk", "right"},
		{"a@x.lk", "wrong"},
		{"legacy@x.lk", "anything"},
	}
	for _, c := range cases {
		_, token, err := a.Authenticate(ctx, c.email, c.password)
		if !errors.Is(err, ErrInvalidCredentials) || token != "" {
			t.Fatalf("Authenticate(%q) = %q, %v", c.email, token, err)
		}
		if err.Error() != "Invalid credentials" {
			t.Fatalf("message = %q", err.Error())
		}
	}
}

func TestAuthorizeRejectsGarbage(t *testing.T) {
	a, _ := newTestApp(t, "production")
	if _, err := a.Authorize("not-a-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	a, _ := newTestApp(t, "production")
	ctx := context.Background()
	if err := a.RequireRole(ctx, domain.RoleAdmin); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("no identity: %v", err)
	}
	userCtx := ContextWithIdentity(ctx, Identity{UserID: "u1", Role: domain.RoleUser})
	if err := a.RequireRole(userCtx, domain.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user as admin: %v", err)
	}
	adminCtx := ContextWithIdentity(ctx, Identity{UserID: "a1", Role: domain.RoleAdmin})
	if err := a.RequireRole(adminCtx, domain.RoleAdmin); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestSeedAdminOnlyInDevelopment(t *testing.T) {
	ctx := context.Background()
	prod, st := newTestApp(t, "production")
	if _, _, err := prod.SeedAdmin(ctx, SeedAdminInput{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden outside development, got %v", err)
	}
	if n, _ := st.UserCount(ctx); n != 0 {
		t.Fatalf("seed-admin must not write outside development")
	}

	dev, _ := newTestApp(t, " Development ")
	admin, created, err := dev.SeedAdmin(ctx, SeedAdminInput{})
	if err != nil || !created {
		t.Fatalf("seed admin: %v created=%v", err, created)
	}
	if admin.Email != "admin@flood.lk" || admin.Role != domain.RoleAdmin || admin.Name != "Admin" {
		t.Fatalf("unexpected admin: %+v", admin)
	}
	if _, _, err := dev.Authenticate(ctx, "admin@flood.lk", "admin123"); err != nil {
		t.Fatalf("default admin login: %v", err)
	}

	again, created, err := dev.SeedAdmin(ctx, SeedAdminInput{Password: "rotated"})
	if err != nil || created || again.ID != admin.ID {
		t.Fatalf("re-seed should update in place: %+v created=%v err=%v", again, created, err)
	}
	if _, _, err := dev.Authenticate(ctx, "admin@flood.lk", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should stop working")
	}
}

func TestPromoteToAdminKeepsOldTokenRole(t *testing.T) {
	a, _ := newTestApp(t, "production")
	ctx := context.Background()
	user, err := a.Register(ctx, RegisterInput{Name: "U", Email: "u@x.lk", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, oldToken, err := a.Authenticate(ctx, "u@x.lk", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	promoted, err := a.PromoteToAdmin(ctx, user.ID)
	if err != nil || promoted.Role != domain.RoleAdmin {
		t.Fatalf("promote: %+v %v", promoted, err)
	}
	id, err := a.Authorize(oldToken)
	if err != nil || id.Role != domain.RoleUser {
		t.Fatalf("old token keeps its role snapshot: %+v %v", id, err)
	}
	_, newToken, _ := a.Authenticate(ctx, "u@x.lk", "pw")
	if id, _ := a.Authorize(newToken); id.Role != domain.RoleAdmin {
		t.Fatalf("new token should carry admin role")
	}
	if _, err := a.PromoteToAdmin(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
