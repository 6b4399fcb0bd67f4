package server

import (
	"net/http"

	"github.com/skourtis/boomtown/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

// handleLogin handles POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.Login(req.Email, req.Password, req.Device, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleLoginTOTP handles POST /api/auth/login/totp.
func (s *Server) handleLoginTOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
		Device string `json:"device,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.LoginTOTP(req.UserID, req.Code, req.Device, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleRegister handles POST /api/auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	u, err := s.authService.Register(req.Email, req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, map[string]string{
		"user_id": u.ID,
		"email":   u.Email,
	})
}

// handleRequestMagicLink handles POST /api/auth/magic-link. The response is
// identical whether or not the email exists.
func (s *Server) handleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.authService.RequestMagicLink(req.Email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleMagicToken handles POST /api/auth/magic-link/token.
func (s *Server) handleMagicToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		Device string `json:"device,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.LoginMagicToken(req.Token, req.Device, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleMagicCode handles POST /api/auth/magic-link/code.
func (s *Server) handleMagicCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email  string `json:"email"`
		Code   string `json:"code"`
		Device string `json:"device,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.LoginMagicCode(req.Email, req.Code, req.Device, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleAcceptInvitation handles POST /api/auth/invitations/accept.
func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password,omitempty"`
		Device   string `json:"device,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.AcceptInvitation(req.Token, req.Password, req.Device, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleMe handles GET /api/auth/me: the user plus their resolved pages.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	pages, err := s.authzService.ResolvePages(u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"user_id":   u.ID,
		"email":     u.Email,
		"username":  u.Username,
		"role":      u.Role,
		"tenant_id": u.TenantID,
		"pages":     pages,
	})
}

// handleLogout handles POST /api/auth/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := currentClaims(r)
	if claims == nil {
		s.writeError(w, domain.E(domain.KindUnauthenticated, "authentication required"))
		return
	}
	if err := s.authService.Logout(claims.SessionID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleTOTPSetup handles POST /api/auth/totp/setup.
func (s *Server) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := s.authService.SetupTOTP(currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, setup)
}

// handleTOTPVerify handles POST /api/auth/totp/verify.
func (s *Server) handleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.authService.VerifyTOTPSetup(currentUser(r).ID, req.Code); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "enabled"})
}

// handleTOTPDisable handles POST /api/auth/totp/disable.
func (s *Server) handleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.DisableTOTP(currentUser(r).ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "disabled"})
}
