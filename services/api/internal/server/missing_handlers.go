package server

import (
	"errors"
	"io"
	"net/http"

	"floodwatch/pkg/storage"
	"floodwatch/services/api/internal/app"
)

const photoFormOverhead = 1 << 20

type missingRequest struct {
	Name        string `json:"name"`
	Age         *int   `json:"age"`
	LastSeen    string `json:"lastSeen"`
	Description string `json:"description"`
	PhotoURL    string `json:"photoUrl"`
	Contact     string `json:"contact"`
}

type missingPatchRequest struct {
	Name        *string `json:"name"`
	Age         *int    `json:"age"`
	LastSeen    *string `json:"lastSeen"`
	Description *string `json:"description"`
	Contact     *string `json:"contact"`
	Status      *string `json:"status"`
}

func (s *Server) handleReportMissing(w http.ResponseWriter, r *http.Request) {
	var req missingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	person, err := s.app.ReportMissing(r.Context(), app.MissingInput{
		Name:        req.Name,
		Age:         req.Age,
		LastSeen:    req.LastSeen,
		Description: req.Description,
		PhotoURL:    req.PhotoURL,
		Contact:     req.Contact,
	})
	respond(w, r, http.StatusCreated, person, err)
}

func (s *Server) handleListMissing(w http.ResponseWriter, r *http.Request) {
	people, err := s.app.ListMissing(r.Context(), r.URL.Query().Get("name"))
	respond(w, r, http.StatusOK, people, err)
}

func (s *Server) handleGetMissing(w http.ResponseWriter, r *http.Request) {
	person, err := s.app.GetMissing(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, person, err)
}

func (s *Server) handleMarkFound(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	person, err := s.app.MarkFound(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, person, err)
}

func (s *Server) handleUpdateMissing(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	var req missingPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	person, err := s.app.UpdateMissing(r.Context(), r.PathValue("id"), app.MissingPatch{
		Name:        req.Name,
		Age:         req.Age,
		LastSeen:    req.LastSeen,
		Description: req.Description,
		Contact:     req.Contact,
		Status:      req.Status,
	})
	respond(w, r, http.StatusOK, person, err)
}

func (s *Server) handleDeleteMissing(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	respondDeleted(w, r, s.app.DeleteMissing(r.Context(), r.PathValue("id")))
}

func (s *Server) handleMissingStats(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	stats, err := s.app.MissingStats(r.Context())
	respond(w, r, http.StatusOK, stats, err)
}

// handleUploadPhoto accepts a multipart "photo" field. The content type is
// sniffed from the bytes, not taken from the client.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request, _ app.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxPhotoBytes+photoFormOverhead)
	file, header, err := r.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Photo too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "Photo file required")
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		writeMessage(w, http.StatusBadRequest, "Photo file required")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeAppError(w, r, err)
		return
	}
	contentType := http.DetectContentType(head[:n])

	person, err := s.app.UploadPhoto(r.Context(), r.PathValue("id"), file, header.Size, contentType)
	respond(w, r, http.StatusOK, person, err)
}
