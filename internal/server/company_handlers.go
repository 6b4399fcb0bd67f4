package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleCreateCompany handles POST /api/companies.
func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		BossName string `json:"boss_name"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	c, err := s.companyService.Create(r.Context(), currentUser(r).ID, req.Name, req.BossName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, c)
}

// handleListCompanies handles GET /api/companies.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.companyService.List(currentUser(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"companies": companies})
}

// handleGetCompany handles GET /api/companies/{companyID}.
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.companyService.Get(currentUser(r).ID, chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	buildings, err := s.buildingRepo.ListByCompany(c.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"company":   c,
		"buildings": buildings,
	})
}

// handleJoinMap handles POST /api/companies/{companyID}/join/{mapID}.
func (s *Server) handleJoinMap(w http.ResponseWriter, r *http.Request) {
	c, err := s.companyService.JoinMap(currentUser(r).ID, chi.URLParam(r, "companyID"), chi.URLParam(r, "mapID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, c)
}

// handleLeaveMap handles POST /api/companies/{companyID}/leave.
func (s *Server) handleLeaveMap(w http.ResponseWriter, r *http.Request) {
	if err := s.companyService.LeaveMap(currentUser(r).ID, chi.URLParam(r, "companyID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "left"})
}

// handleHeroOut handles POST /api/companies/{companyID}/hero-out. A hero
// message in the body is stored alongside the ceremony.
func (s *Server) handleHeroOut(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	var req struct {
		Message string `json:"message,omitempty"`
	}
	// The body is optional.
	_ = s.tryDecode(r, &req)

	c, err := s.companyService.Get(currentUser(r).ID, companyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	mapID := c.MapID
	tier := c.TierJoined

	res, err := s.companyService.HeroOut(currentUser(r).ID, companyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if mapID != "" {
		if _, err := s.socialService.PostHeroMessage(r.Context(), companyID, mapID, tier, req.Message); err != nil {
			s.log.Warn().Err(err).Str("company_id", companyID).Msg("Hero message not stored")
		}
	}
	s.writeData(w, http.StatusOK, res)
}

// handlePayFine handles POST /api/companies/{companyID}/pay-fine.
func (s *Server) handlePayFine(w http.ResponseWriter, r *http.Request) {
	if err := s.companyService.PayFine(currentUser(r).ID, chi.URLParam(r, "companyID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "released"})
}

// handleCompanyStatistics handles GET /api/companies/{companyID}/statistics.
func (s *Server) handleCompanyStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.companyService.Statistics(currentUser(r).ID, chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, stats)
}

// handleCompanyTransactions handles GET /api/companies/{companyID}/transactions.
func (s *Server) handleCompanyTransactions(w http.ResponseWriter, r *http.Request) {
	c, err := s.companyService.Get(currentUser(r).ID, chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.ledgerRepo.ListByCompany(c.ID, queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}
