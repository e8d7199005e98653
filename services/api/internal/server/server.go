package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"floodwatch/internal/ratelimit"
	"floodwatch/internal/security"
	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
	"floodwatch/services/api/internal/app"
)

const maxJSONBody = 1 << 20

// RateLimiter is satisfied by ratelimit.FixedWindowLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Decision
}

// SecurityAlerter is satisfied by security.AuditAlerter.
type SecurityAlerter interface {
	Observe(ctx context.Context, event, outcome, ip string) (security.AlertResult, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
	// Nil limiters disable rate limiting for that route group.
	LoginLimiter    RateLimiter
	RegisterLimiter RateLimiter
	// Alerter is optional; failures are only logged without it.
	Alerter SecurityAlerter
}

// Server exposes the public and admin HTTP API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	allowedOrigins  []string
	trusted         *util.TrustedProxies
	loginLimiter    RateLimiter
	registerLimiter RateLimiter
	alerter         SecurityAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		allowedOrigins:  cfg.AllowedOrigins,
		trusted:         cfg.TrustedProxies,
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
		alerter:         cfg.Alerter,
	}
	s.routes()
	return s, nil
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRecover(h)
	h = util.WithRequestLog(h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/seed-admin", s.handleSeedAdmin)
	s.mux.Handle("GET /api/auth/me", s.authenticated(s.handleMe))

	// floods
	s.mux.HandleFunc("GET /api/floods", s.handleListFloods)
	s.mux.HandleFunc("GET /api/floods/active", s.handleActiveFloods)
	s.mux.HandleFunc("GET /api/floods/severity/{level}", s.handleFloodsBySeverity)
	s.mux.HandleFunc("GET /api/floods/{id}", s.handleGetFlood)
	s.mux.Handle("POST /api/floods", s.adminOnly(s.handleCreateFlood))
	s.mux.Handle("PATCH /api/floods/{id}", s.adminOnly(s.handleUpdateFlood))
	s.mux.Handle("PUT /api/floods/{id}/resolve", s.adminOnly(s.handleResolveFlood))
	s.mux.Handle("DELETE /api/floods/{id}", s.adminOnly(s.handleDeleteFlood))
	s.mux.Handle("GET /api/floods/admin/stats", s.adminOnly(s.handleFloodStats))

	// shelters
	s.mux.HandleFunc("GET /api/shelters", s.handleListShelters)
	s.mux.HandleFunc("GET /api/shelters/available", s.handleAvailableShelters)
	s.mux.HandleFunc("GET /api/shelters/with-capacity", s.handleSheltersWithSpace)
	s.mux.HandleFunc("GET /api/shelters/{id}", s.handleGetShelter)
	s.mux.Handle("POST /api/shelters", s.adminOnly(s.handleCreateShelter))
	s.mux.Handle("PATCH /api/shelters/{id}", s.adminOnly(s.handleUpdateShelter))
	s.mux.Handle("PATCH /api/shelters/{id}/occupancy", s.adminOnly(s.handleSetOccupancy))
	s.mux.Handle("PUT /api/shelters/{id}/close", s.adminOnly(s.handleCloseShelter))
	s.mux.Handle("PUT /api/shelters/{id}/open", s.adminOnly(s.handleOpenShelter))
	s.mux.Handle("DELETE /api/shelters/{id}", s.adminOnly(s.handleDeleteShelter))
	s.mux.Handle("GET /api/shelters/admin/stats", s.adminOnly(s.handleShelterStats))

	// missing persons
	s.mux.HandleFunc("POST /api/missing", s.handleReportMissing)
	s.mux.HandleFunc("GET /api/missing", s.handleListMissing)
	s.mux.HandleFunc("GET /api/missing/{id}", s.handleGetMissing)
	s.mux.Handle("PUT /api/missing/{id}/found", s.adminOnly(s.handleMarkFound))
	s.mux.Handle("PUT /api/missing/{id}/photo", s.adminOnly(s.handleUploadPhoto))
	s.mux.Handle("PATCH /api/missing/{id}", s.adminOnly(s.handleUpdateMissing))
	s.mux.Handle("DELETE /api/missing/{id}", s.adminOnly(s.handleDeleteMissing))
	s.mux.Handle("GET /api/missing/admin/stats", s.adminOnly(s.handleMissingStats))

	// help requests
	s.mux.Handle("POST /api/help", s.optionalIdentity(s.handleCreateHelp))
	s.mux.Handle("GET /api/help", s.adminOnly(s.handleListHelp))
	s.mux.Handle("GET /api/help/{id}", s.authenticated(s.handleGetHelp))
	s.mux.Handle("PATCH /api/help/{id}", s.adminOnly(s.handleUpdateHelp))
	s.mux.Handle("PUT /api/help/{id}/resolve", s.adminOnly(s.handleResolveHelp))
	s.mux.Handle("DELETE /api/help/{id}", s.adminOnly(s.handleDeleteHelp))
	s.mux.Handle("GET /api/help/admin/stats", s.adminOnly(s.handleHelpStats))
	s.mux.Handle("GET /api/help/admin/by-status/{status}", s.adminOnly(s.handleHelpByStatus))

	// admin
	s.mux.Handle("GET /api/admin/users", s.adminOnly(s.handleAdminUsers))
	s.mux.Handle("PATCH /api/admin/users/{id}/make-admin", s.adminOnly(s.handleMakeAdmin))
	s.mux.Handle("GET /api/admin/stats", s.adminOnly(s.handleDashboardStats))
	s.mux.Handle("GET /api/admin/help-requests", s.adminOnly(s.handleListHelp))
	s.mux.Handle("PATCH /api/admin/help-requests/{id}/status", s.adminOnly(s.handleSetHelpStatus))
	s.mux.Handle("POST /api/admin/sync-gov-data", s.adminOnly(s.handleSyncGovData))
	s.mux.Handle("GET /api/admin/sync-runs", s.adminOnly(s.handleSyncRuns))
	s.mux.Handle("GET /api/stats", s.adminOnly(s.handleHelpSummary))

	// analytics
	s.mux.HandleFunc("GET /api/analytics/flood-severity", s.handleFloodSeverity)
	s.mux.HandleFunc("GET /api/analytics/help-requests-by-type", s.handleHelpByType)
	s.mux.Handle("GET /api/analytics/help-requests-by-status", s.adminOnly(s.handleHelpByStatusAnalytics))
	s.mux.HandleFunc("GET /api/analytics/shelter-capacity", s.handleShelterCapacity)
	s.mux.HandleFunc("GET /api/analytics/missing-persons-status", s.handleMissingStatus)
	s.mux.Handle("GET /api/analytics/overview", s.adminOnly(s.handleOverview))
	s.mux.Handle("GET /api/analytics/timeline", s.adminOnly(s.handleTimeline))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, app.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "authorize", "fail", "reason", "missing_token")
			writeMessage(w, http.StatusUnauthorized, "No token provided")
			return
		}
		id, err := s.app.Authorize(token)
		if err != nil {
			s.audit(r, "authorize", "fail", "reason", "invalid_token")
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := app.ContextWithIdentity(r.Context(), id)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", id.UserID))
		next(w, r.WithContext(ctx), id)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, id app.Identity) {
		if err := s.app.RequireRole(r.Context(), domain.RoleAdmin); err != nil {
			s.audit(r, "admin.authorize", "fail", "user_id", id.UserID, "reason", "forbidden")
			writeMessage(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r, id)
	})
}

// optionalIdentity attaches the caller when a valid bearer token is sent and
// otherwise serves the request anonymously.
func (s *Server) optionalIdentity(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if id, err := s.app.Authorize(token); err == nil {
				r = r.WithContext(app.ContextWithIdentity(r.Context(), id))
			} else {
				s.audit(r, "authorize.optional", "fail", "reason", "invalid_token")
			}
		}
		next(w, r)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
	if s.alerter == nil {
		return
	}
	alert, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter unavailable", "event", event, "err", err)
		return
	}
	if alert.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", alert.Count,
			"threshold", alert.Threshold,
			"window", alert.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter RateLimiter, event string) bool {
	if limiter == nil {
		return true
	}
	d := limiter.Allow(r.Context(), event+":"+util.ClientIP(r, s.trusted))
	if d.Allowed {
		return true
	}
	secs := max(1, int(math.Ceil(d.RetryAfter.Seconds())))
	s.audit(r, event, "rate_limited")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeMessage(w, http.StatusTooManyRequests, "Too many requests, try again later")
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// decodeJSON reads a bounded JSON body into dst, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
