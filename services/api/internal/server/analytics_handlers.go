package server

import (
	"net/http"

	"floodwatch/services/api/internal/app"
)

func (s *Server) handleFloodSeverity(w http.ResponseWriter, r *http.Request) {
	counts, err := s.app.FloodSeverityCounts(r.Context())
	respond(w, r, http.StatusOK, counts, err)
}

func (s *Server) handleHelpByType(w http.ResponseWriter, r *http.Request) {
	counts, err := s.app.HelpByType(r.Context())
	respond(w, r, http.StatusOK, counts, err)
}

func (s *Server) handleHelpByStatusAnalytics(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	counts, err := s.app.HelpByStatus(r.Context())
	respond(w, r, http.StatusOK, counts, err)
}

func (s *Server) handleShelterCapacity(w http.ResponseWriter, r *http.Request) {
	summary, err := s.app.ShelterCapacity(r.Context())
	respond(w, r, http.StatusOK, summary, err)
}

func (s *Server) handleMissingStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.app.MissingStatusCounts(r.Context())
	respond(w, r, http.StatusOK, counts, err)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	overview, err := s.app.Overview(r.Context())
	respond(w, r, http.StatusOK, overview, err)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	days, err := s.app.Timeline(r.Context())
	respond(w, r, http.StatusOK, days, err)
}
