package server

import (
	"errors"
	"net/http"

	"floodwatch/services/api/internal/app"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Role    string `json:"role"`
	UserID  string `json:"userId"`
}

type seedAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter, "register") {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "register", "fail", "reason", "invalid_json")
		return
	}
	user, err := s.app.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.audit(r, "register", "fail", "reason", auditReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User registered successfully",
		"userId":  user.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "login") {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "login", "fail", "reason", "invalid_json")
		return
	}
	user, token, err := s.app.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "reason", auditReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		Token:   token,
		Role:    string(user.Role),
		UserID:  user.ID,
	})
}

func (s *Server) handleSeedAdmin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter, "seed_admin") {
		return
	}
	if !s.app.IsDevelopment() {
		s.audit(r, "seed_admin", "fail", "reason", "not_development")
		writeMessage(w, http.StatusForbidden, "Forbidden in production")
		return
	}
	var req seedAdminRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	user, created, err := s.app.SeedAdmin(r.Context(), app.SeedAdminInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.audit(r, "seed_admin", "fail", "reason", auditReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "seed_admin", "success", "user_id", user.ID, "created", created)
	msg := "Admin updated"
	if created {
		msg = "Admin created"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg, "email": user.Email})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, id app.Identity) {
	user, err := s.app.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// auditReason names an auth failure without echoing raw error text.
func auditReason(err error) string {
	switch {
	case errors.Is(err, app.ErrValidation):
		return "invalid_input"
	case errors.Is(err, app.ErrDuplicateIdentity):
		return "duplicate_email"
	case errors.Is(err, app.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, app.ErrForbidden):
		return "forbidden"
	}
	return "internal"
}
