package server

import (
	"net/http"
	"strconv"
	"time"

	"floodwatch/internal/util"
	"floodwatch/pkg/reconcile"
	"floodwatch/services/api/internal/app"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	users, err := s.app.ListUsers(r.Context())
	respond(w, r, http.StatusOK, users, err)
}

func (s *Server) handleMakeAdmin(w http.ResponseWriter, r *http.Request, id app.Identity) {
	user, err := s.app.PromoteToAdmin(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "make_admin", "success", "actor_id", id.UserID, "target_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User promoted to admin",
		"user":    user,
	})
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	stats, err := s.app.DashboardStats(r.Context())
	respond(w, r, http.StatusOK, stats, err)
}

func (s *Server) handleHelpSummary(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	summary, err := s.app.HelpSummary(r.Context())
	respond(w, r, http.StatusOK, summary, err)
}

// syncWriteTimeout covers both feed fetches plus the store writes, which can
// outlast the server-wide write timeout.
const syncWriteTimeout = 2 * time.Minute

// handleSyncGovData always answers 200; failures are reported in the summary.
func (s *Server) handleSyncGovData(w http.ResponseWriter, r *http.Request, id app.Identity) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(syncWriteTimeout)); err != nil {
		util.LoggerFromContext(r.Context()).Debug("cannot extend sync write deadline", "err", err)
	}
	useMock := r.URL.Query().Get("useMock") == "1"
	ctx := reconcile.WithTrigger(r.Context(), reconcile.TriggerManual)
	summary := s.app.SyncGovData(ctx, useMock)
	s.audit(r, "sync_gov_data", outcome(summary.Success), "actor_id", id.UserID, "mock", useMock)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSyncRuns(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.app.SyncRuns(r.Context(), limit)
	respond(w, r, http.StatusOK, runs, err)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "fail"
}
