package server

import (
	"net/http"

	"floodwatch/pkg/domain"
	"floodwatch/services/api/internal/app"
)

type locationBody struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// toDomain returns nil unless both coordinates are present.
func (l *locationBody) toDomain() *domain.Location {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return nil
	}
	return &domain.Location{Lat: *l.Lat, Lng: *l.Lng}
}

// respond writes v with status, or the mapped error.
func respond[T any](w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func respondDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Deleted")
}

// floods

type floodRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    string        `json:"severity"`
	Location    *locationBody `json:"location"`
}

type floodPatchRequest struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Severity    *string       `json:"severity"`
	Status      *string       `json:"status"`
	Location    *locationBody `json:"location"`
}

func (s *Server) handleListFloods(w http.ResponseWriter, r *http.Request) {
	floods, err := s.app.ListFloods(r.Context())
	respond(w, r, http.StatusOK, floods, err)
}

func (s *Server) handleActiveFloods(w http.ResponseWriter, r *http.Request) {
	floods, err := s.app.ListActiveFloods(r.Context())
	respond(w, r, http.StatusOK, floods, err)
}

func (s *Server) handleFloodsBySeverity(w http.ResponseWriter, r *http.Request) {
	floods, err := s.app.ListFloodsBySeverity(r.Context(), r.PathValue("level"))
	respond(w, r, http.StatusOK, floods, err)
}

func (s *Server) handleGetFlood(w http.ResponseWriter, r *http.Request) {
	flood, err := s.app.GetFlood(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, flood, err)
}

func (s *Server) handleCreateFlood(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req floodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	flood, err := s.app.CreateFlood(r.Context(), app.FloodInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Location:    req.Location.toDomain(),
	})
	respond(w, r, http.StatusCreated, flood, err)
}

func (s *Server) handleUpdateFlood(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req floodPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	flood, err := s.app.UpdateFlood(r.Context(), r.PathValue("id"), app.FloodPatch{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      req.Status,
		Location:    req.Location.toDomain(),
	})
	respond(w, r, http.StatusOK, flood, err)
}

func (s *Server) handleResolveFlood(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	flood, err := s.app.ResolveFlood(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, flood, err)
}

func (s *Server) handleDeleteFlood(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	respondDeleted(w, r, s.app.DeleteFlood(r.Context(), r.PathValue("id")))
}

func (s *Server) handleFloodStats(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	stats, err := s.app.FloodStats(r.Context())
	respond(w, r, http.StatusOK, stats, err)
}

// shelters

type shelterRequest struct {
	Name             string        `json:"name"`
	Capacity         *int          `json:"capacity"`
	CurrentOccupancy *int          `json:"currentOccupancy"`
	Facilities       string        `json:"facilities"`
	Contact          string        `json:"contact"`
	Location         *locationBody `json:"location"`
}

type shelterPatchRequest struct {
	Name             *string       `json:"name"`
	Capacity         *int          `json:"capacity"`
	CurrentOccupancy *int          `json:"currentOccupancy"`
	Facilities       *string       `json:"facilities"`
	Contact          *string       `json:"contact"`
	Status           *string       `json:"status"`
	Location         *locationBody `json:"location"`
}

type occupancyRequest struct {
	CurrentOccupancy *int `json:"currentOccupancy"`
}

func (s *Server) handleListShelters(w http.ResponseWriter, r *http.Request) {
	shelters, err := s.app.ListShelters(r.Context())
	respond(w, r, http.StatusOK, shelters, err)
}

func (s *Server) handleAvailableShelters(w http.ResponseWriter, r *http.Request) {
	shelters, err := s.app.ListAvailableShelters(r.Context())
	respond(w, r, http.StatusOK, shelters, err)
}

func (s *Server) handleSheltersWithSpace(w http.ResponseWriter, r *http.Request) {
	shelters, err := s.app.ListSheltersWithSpace(r.Context())
	respond(w, r, http.StatusOK, shelters, err)
}

func (s *Server) handleGetShelter(w http.ResponseWriter, r *http.Request) {
	shelter, err := s.app.GetShelter(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, shelter, err)
}

func (s *Server) handleCreateShelter(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req shelterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shelter, err := s.app.CreateShelter(r.Context(), app.ShelterInput{
		Name:             req.Name,
		Capacity:         req.Capacity,
		CurrentOccupancy: req.CurrentOccupancy,
		Facilities:       req.Facilities,
		Contact:          req.Contact,
		Location:         req.Location.toDomain(),
	})
	respond(w, r, http.StatusCreated, shelter, err)
}

func (s *Server) handleUpdateShelter(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req shelterPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shelter, err := s.app.UpdateShelter(r.Context(), r.PathValue("id"), app.ShelterPatch{
		Name:             req.Name,
		Capacity:         req.Capacity,
		CurrentOccupancy: req.CurrentOccupancy,
		Facilities:       req.Facilities,
		Contact:          req.Contact,
		Status:           req.Status,
		Location:         req.Location.toDomain(),
	})
	respond(w, r, http.StatusOK, shelter, err)
}

func (s *Server) handleSetOccupancy(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req occupancyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shelter, err := s.app.SetOccupancy(r.Context(), r.PathValue("id"), req.CurrentOccupancy)
	respond(w, r, http.StatusOK, shelter, err)
}

func (s *Server) handleCloseShelter(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	shelter, err := s.app.CloseShelter(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, shelter, err)
}

func (s *Server) handleOpenShelter(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	shelter, err := s.app.OpenShelter(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, shelter, err)
}

func (s *Server) handleDeleteShelter(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	respondDeleted(w, r, s.app.DeleteShelter(r.Context(), r.PathValue("id")))
}

func (s *Server) handleShelterStats(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	stats, err := s.app.ShelterStats(r.Context())
	respond(w, r, http.StatusOK, stats, err)
}

// help requests

type helpRequest struct {
	Name        string        `json:"name"`
	Phone       string        `json:"phone"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Location    *locationBody `json:"location"`
}

type helpPatchRequest struct {
	Name        *string       `json:"name"`
	Phone       *string       `json:"phone"`
	Type        *string       `json:"type"`
	Description *string       `json:"description"`
	Status      *string       `json:"status"`
	Location    *locationBody `json:"location"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleCreateHelp(w http.ResponseWriter, r *http.Request) {
	var req helpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	help, err := s.app.CreateHelp(r.Context(), app.HelpInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Type:        req.Type,
		Description: req.Description,
		Location:    req.Location.toDomain(),
	})
	respond(w, r, http.StatusCreated, help, err)
}

func (s *Server) handleListHelp(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	reqs, err := s.app.ListHelp(r.Context())
	respond(w, r, http.StatusOK, reqs, err)
}

func (s *Server) handleGetHelp(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	help, err := s.app.GetHelp(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, help, err)
}

func (s *Server) handleUpdateHelp(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req helpPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	help, err := s.app.UpdateHelp(r.Context(), r.PathValue("id"), app.HelpPatch{
		Name:        req.Name,
		Phone:       req.Phone,
		Type:        req.Type,
		Description: req.Description,
		Status:      req.Status,
		Location:    req.Location.toDomain(),
	})
	respond(w, r, http.StatusOK, help, err)
}

func (s *Server) handleResolveHelp(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	help, err := s.app.ResolveHelp(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, help, err)
}

func (s *Server) handleSetHelpStatus(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	help, err := s.app.SetHelpStatus(r.Context(), r.PathValue("id"), req.Status)
	respond(w, r, http.StatusOK, help, err)
}

func (s *Server) handleDeleteHelp(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	respondDeleted(w, r, s.app.DeleteHelp(r.Context(), r.PathValue("id")))
}

func (s *Server) handleHelpStats(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	stats, err := s.app.HelpStats(r.Context())
	respond(w, r, http.StatusOK, stats, err)
}

func (s *Server) handleHelpByStatus(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	reqs, err := s.app.ListHelpByStatus(r.Context(), r.PathValue("status"))
	respond(w, r, http.StatusOK, reqs, err)
}
