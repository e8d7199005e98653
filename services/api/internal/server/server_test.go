package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"floodwatch/internal/ratelimit"
	"floodwatch/internal/security"
	"floodwatch/pkg/domain"
	"floodwatch/pkg/govfeed"
	"floodwatch/pkg/reconcile"
	"floodwatch/pkg/storage"
	"floodwatch/pkg/store"
	"floodwatch/services/api/internal/app"
)

const testSecret = "server-test-secret-0123456789"

type testEnv struct {
	srv   *httptest.Server
	app   *app.App
	store store.Store
}

func newTestEnv(t *testing.T, env string, st store.Store, cfg Config) *testEnv {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	sessions, err := store.NewJWTSessionStore(testSecret, store.DefaultSessionTTL, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:       st,
		Sessions:    sessions,
		Engine:      reconcile.New(st, govfeed.NewClient("", 0), nil, reconcile.Config{}),
		Photos:      storage.NewMemoryObjectStore(),
		Environment: env,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = a
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, app: a, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, out
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", email, body)
	}
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	if _, _, err := e.app.EnsureAdmin(context.Background(), app.SeedAdminInput{}); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return e.login(t, "admin@flood.lk", "admin123")
}

func (e *testEnv) userToken(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Resident",
		"email":    email,
		"password": "secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: status %d body %v", email, resp.StatusCode, body)
	}
	return e.login(t, email, "secret")
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	resp, body := e.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})

	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Nimal", "email": "Nimal@Example.com", "password": "pw",
	})
	if resp.StatusCode != http.StatusOK || body["message"] != "User registered successfully" {
		t.Fatalf("register: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Again", "email": "nimal@example.com", "password": "pw",
	})
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Email already exists" {
		t.Fatalf("duplicate register: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nimal@example.com", "password": "pw",
	})
	if resp.StatusCode != http.StatusOK || body["role"] != "user" || body["userId"] == "" {
		t.Fatalf("login: %d %v", resp.StatusCode, body)
	}

	for _, creds := range []map[string]string{
		{"email": "nimal@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "pw"},
	} {
		resp, body = e.do(t, http.MethodPost, "/api/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Invalid credentials" {
			t.Fatalf("bad login %v: %d %v", creds, resp.StatusCode, body)
		}
	}

	resp, _ = e.do(t, http.MethodPost, "/api/auth/login", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty login body: %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	userToken := e.userToken(t, "user@example.com")
	adminToken := e.adminToken(t)

	resp, body := e.do(t, http.MethodGet, "/api/admin/users", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "No token provided" {
		t.Fatalf("no token: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodGet, "/api/admin/users", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Invalid token" {
		t.Fatalf("bad token: %d %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodGet, "/api/admin/users", userToken, nil)
	if resp.StatusCode != http.StatusForbidden || body["message"] != "Admin access required" {
		t.Fatalf("user token: %d %v", resp.StatusCode, body)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/admin/users", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin token: %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/floods", userToken, map[string]any{
		"title": "Flash flood", "location": map[string]float64{"lat": 6.9, "lng": 79.9},
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user create flood: %d", resp.StatusCode)
	}
}

func TestFloodAndShelterFlow(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	admin := e.adminToken(t)

	resp, flood := e.do(t, http.MethodPost, "/api/floods", admin, map[string]any{
		"title":    "Kelani river overflow",
		"severity": "high",
		"location": map[string]float64{"lat": 6.95, "lng": 79.92},
	})
	if resp.StatusCode != http.StatusCreated || flood["status"] != "active" {
		t.Fatalf("create flood: %d %v", resp.StatusCode, flood)
	}
	id, _ := flood["id"].(string)

	resp, _ = e.do(t, http.MethodGet, "/api/floods/severity/extreme", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad severity: %d", resp.StatusCode)
	}
	resp, flood = e.do(t, http.MethodPut, "/api/floods/"+id+"/resolve", admin, nil)
	if resp.StatusCode != http.StatusOK || flood["status"] != "resolved" {
		t.Fatalf("resolve: %d %v", resp.StatusCode, flood)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/floods/missing-id", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown flood: %d", resp.StatusCode)
	}

	resp, shelter := e.do(t, http.MethodPost, "/api/shelters", admin, map[string]any{
		"name":     "Temple hall",
		"capacity": 10,
		"location": map[string]float64{"lat": 6.9, "lng": 79.9},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create shelter: %d %v", resp.StatusCode, shelter)
	}
	sid, _ := shelter["id"].(string)

	resp, body := e.do(t, http.MethodPatch, "/api/shelters/"+sid+"/occupancy", admin, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Valid occupancy number required" {
		t.Fatalf("missing occupancy: %d %v", resp.StatusCode, body)
	}
	resp, shelter = e.do(t, http.MethodPatch, "/api/shelters/"+sid+"/occupancy", admin, map[string]any{"currentOccupancy": 10})
	if resp.StatusCode != http.StatusOK || shelter["status"] != "full" {
		t.Fatalf("fill shelter: %d %v", resp.StatusCode, shelter)
	}

	resp, capacity := e.do(t, http.MethodGet, "/api/analytics/shelter-capacity", "", nil)
	if resp.StatusCode != http.StatusOK || capacity["occupancyRate"] != "100.0" {
		t.Fatalf("capacity: %d %v", resp.StatusCode, capacity)
	}
}

func TestHelpRequestOwnership(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	owner := e.userToken(t, "owner@example.com")
	other := e.userToken(t, "other@example.com")
	admin := e.adminToken(t)

	resp, help := e.do(t, http.MethodPost, "/api/help", owner, map[string]any{
		"name": "Kamala", "type": "food", "description": "Family of four",
	})
	if resp.StatusCode != http.StatusCreated || help["userId"] == nil {
		t.Fatalf("create help: %d %v", resp.StatusCode, help)
	}
	id, _ := help["id"].(string)

	resp, anon := e.do(t, http.MethodPost, "/api/help", "not-a-token", map[string]any{"type": "rescue"})
	if resp.StatusCode != http.StatusCreated || anon["userId"] != nil {
		t.Fatalf("anonymous help: %d %v", resp.StatusCode, anon)
	}

	if resp, _ := e.do(t, http.MethodGet, "/api/help/"+id, owner, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read: %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, http.MethodGet, "/api/help/"+id, other, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("other read: %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, http.MethodGet, "/api/help/"+id, admin, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin read: %d", resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodPatch, "/api/admin/help-requests/"+id+"/status", admin, map[string]string{"status": "done"})
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Invalid status" {
		t.Fatalf("bad status: %d %v", resp.StatusCode, body)
	}
	resp, help = e.do(t, http.MethodPatch, "/api/admin/help-requests/"+id+"/status", admin, map[string]string{"status": "in-progress"})
	if resp.StatusCode != http.StatusOK || help["status"] != "in-progress" {
		t.Fatalf("set status: %d %v", resp.StatusCode, help)
	}
}

func TestSeedAdminGatedByEnvironment(t *testing.T) {
	prod := newTestEnv(t, "production", nil, Config{})
	resp, body := prod.do(t, http.MethodPost, "/api/auth/seed-admin", "", nil)
	if resp.StatusCode != http.StatusForbidden || body["message"] != "Forbidden in production" {
		t.Fatalf("production seed: %d %v", resp.StatusCode, body)
	}

	dev := newTestEnv(t, "Development", nil, Config{})
	resp, body = dev.do(t, http.MethodPost, "/api/auth/seed-admin", "", nil)
	if resp.StatusCode != http.StatusOK || body["message"] != "Admin created" {
		t.Fatalf("development seed: %d %v", resp.StatusCode, body)
	}
	resp, body = dev.do(t, http.MethodPost, "/api/auth/seed-admin", "", nil)
	if resp.StatusCode != http.StatusOK || body["message"] != "Admin updated" {
		t.Fatalf("second seed: %d %v", resp.StatusCode, body)
	}
	dev.login(t, "admin@flood.lk", "admin123")
}

func TestSyncGovDataWithMockAndHistory(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	admin := e.adminToken(t)

	resp, summary := e.do(t, http.MethodPost, "/api/admin/sync-gov-data?useMock=1", admin, nil)
	if resp.StatusCode != http.StatusOK || summary["success"] != true {
		t.Fatalf("mock sync: %d %v", resp.StatusCode, summary)
	}
	results, _ := summary["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected two collection results, got %v", summary["results"])
	}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/admin/sync-runs?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sync runs: %v", err)
	}
	defer resp.Body.Close()
	var runs []domain.SyncRun
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 sync runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Trigger != reconcile.TriggerManual || run.Source != reconcile.SourceMock {
			t.Fatalf("unexpected run: %+v", run)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer limiter.Close()
	e := newTestEnv(t, "production", nil, Config{LoginLimiter: limiter})

	creds := map[string]string{"email": "x@example.com", "password": "pw"}
	resp, _ := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first login expected 401, got %d", resp.StatusCode)
	}
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" || body["message"] == "" {
		t.Fatalf("expected Retry-After and message, got %q %v", resp.Header.Get("Retry-After"), body)
	}
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) ListFloods(context.Context, store.FloodFilter) ([]domain.Flood, error) {
	return nil, errors.New("pq: connection refused to 10.0.0.5")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	e := newTestEnv(t, "production", failingStore{store.NewMemoryStore()}, Config{})
	resp, body := e.do(t, http.MethodGet, "/api/floods", "", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if msg, _ := body["message"].(string); strings.Contains(msg, "10.0.0.5") || msg != "internal error" {
		t.Fatalf("leaked error text: %v", body)
	}
}

func TestUploadMissingPersonPhoto(t *testing.T) {
	e := newTestEnv(t, "production", nil, Config{})
	admin := e.adminToken(t)

	resp, person := e.do(t, http.MethodPost, "/api/missing", "", map[string]any{"name": "Sunil", "age": 40})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report missing: %d %v", resp.StatusCode, person)
	}
	id, _ := person["id"].(string)

	var img bytes.Buffer
	pic := image.NewRGBA(image.Rect(0, 0, 2, 2))
	pic.Set(0, 0, color.RGBA{R: 255, A: 255})
	if err := png.Encode(&img, pic); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	upload := func(name string, data []byte) (*http.Response, map[string]any) {
		var form bytes.Buffer
		mw := multipart.NewWriter(&form)
		part, err := mw.CreateFormFile("photo", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = part.Write(data)
		_ = mw.Close()
		req, _ := http.NewRequest(http.MethodPut, e.srv.URL+"/api/missing/"+id+"/photo", &form)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+admin)
		return e.send(t, req)
	}

	resp, body := upload("notes.txt", []byte("just some text, not an image"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("text upload: %d %v", resp.StatusCode, body)
	}
	resp, body = upload("photo.png", img.Bytes())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("png upload: %d %v", resp.StatusCode, body)
	}
	if url, _ := body["photoUrl"].(string); !strings.HasPrefix(url, "memory://") {
		t.Fatalf("expected presigned photo url, got %v", body["photoUrl"])
	}
}

type recordingAlerter struct {
	events []string
}

func (a *recordingAlerter) Observe(_ context.Context, event, outcome, _ string) (security.AlertResult, error) {
	a.events = append(a.events, event+":"+outcome)
	return security.AlertResult{}, nil
}

func TestFailedAuthEventsReachAlerter(t *testing.T) {
	alerter := &recordingAlerter{}
	e := newTestEnv(t, "production", nil, Config{Alerter: alerter})
	userToken := e.userToken(t, "user@example.com")

	e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "user@example.com", "password": "nope"})
	e.do(t, http.MethodGet, "/api/admin/stats", userToken, nil)

	want := []string{"login:fail", "admin.authorize:fail"}
	if len(alerter.events) != len(want) {
		t.Fatalf("alerter events = %v, want %v", alerter.events, want)
	}
	for i := range want {
		if alerter.events[i] != want[i] {
			t.Fatalf("alerter events = %v, want %v", alerter.events, want)
		}
	}
}

func TestSyncGovDataOutlivesServerWriteTimeout(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(feed.Close)

	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(testSecret, store.DefaultSessionTTL, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:    st,
		Sessions: sessions,
		Engine: reconcile.New(st, govfeed.NewClient("", 5*time.Second), nil, reconcile.Config{
			FloodURL:   feed.URL + "/floods",
			ShelterURL: feed.URL + "/shelters",
		}),
		Environment: "production",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewUnstartedServer(s.Router())
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	e := &testEnv{srv: srv, app: a, store: st}
	admin := e.adminToken(t)
	resp, summary := e.do(t, http.MethodPost, "/api/admin/sync-gov-data", admin, nil)
	if resp.StatusCode != http.StatusOK || summary["success"] != true {
		t.Fatalf("slow sync: %d %v", resp.StatusCode, summary)
	}
}
