package server

import (
	"net/http"
)

// handleAttack handles POST .../attacks.
func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
		Trick      string `json:"trick"`
		Message    string `json:"message,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.attackService.Attack(r.Context(), userID, companyID, req.BuildingID, req.Trick, req.Message)
	if err != nil {
		s.recordAttack(req.Trick, "error")
		s.writeError(w, err)
		return
	}
	outcome := "landed"
	if res.Detected {
		outcome = "detected"
	}
	s.recordAttack(req.Trick, outcome)
	s.writeData(w, http.StatusOK, res)
}

// handleExtinguish handles POST .../attacks/extinguish.
func (s *Server) handleExtinguish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.attackService.Extinguish(userID, companyID, req.BuildingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleCleanup handles POST .../attacks/cleanup.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.attackService.Cleanup(userID, companyID, req.BuildingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

// handleRepair handles POST .../attacks/repair.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.attackService.Repair(userID, companyID, req.BuildingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, res)
}

func (s *Server) recordAttack(trick, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AttackTotal.WithLabelValues(trick, outcome).Inc()
}
