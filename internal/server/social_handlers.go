package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handlePostChat handles POST /api/social/chat.
func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Message   string `json:"message"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	m, err := s.socialService.PostChat(r.Context(), currentUser(r).ID, req.CompanyID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, m)
}

// handleChatHistory handles GET /api/maps/{mapID}/chat.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.socialService.ChatHistory(chi.URLParam(r, "mapID"), queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// handleChatStream handles GET /api/maps/{mapID}/chat/ws: the live feed.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Serve(w, r, chi.URLParam(r, "mapID")); err != nil {
		s.log.Debug().Err(err).Msg("Chat stream closed")
	}
}

// handleHeroMessages handles GET /api/maps/{mapID}/hero-messages.
func (s *Server) handleHeroMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.socialService.HeroMessages(chi.URLParam(r, "mapID"), queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// handleDonate handles POST /api/social/donations.
func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Amount    int64  `json:"amount"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	cash, err := s.socialService.Donate(currentUser(r).ID, req.CompanyID, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]int64{"cash": cash})
}

// handleLeaderboard handles GET /api/social/donations/leaderboard.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	totals, err := s.socialService.Leaderboard(queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"leaderboard": totals})
}

// handleRoulette handles POST /api/social/casino/roulette.
func (s *Server) handleRoulette(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Stake     int64  `json:"stake"`
		Bet       string `json:"bet"`
		Number    int    `json:"number,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.socialService.RouletteSpin(currentUser(r).ID, req.CompanyID, req.Stake, req.Bet, req.Number)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.recordCasino(req.Stake, res.Payout)
	s.writeData(w, http.StatusOK, res)
}

// handleBlackjackDeal handles POST /api/social/casino/blackjack.
func (s *Server) handleBlackjackDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Stake     int64  `json:"stake"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	view, err := s.socialService.BlackjackDeal(currentUser(r).ID, req.CompanyID, req.Stake)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.recordCasino(req.Stake, view.Payout)
	s.writeData(w, http.StatusCreated, view)
}

// handleBlackjackState handles GET /api/social/casino/blackjack/{gameID}.
func (s *Server) handleBlackjackState(w http.ResponseWriter, r *http.Request) {
	view, err := s.socialService.BlackjackState(currentUser(r).ID, chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, view)
}

// handleBlackjackHit handles POST /api/social/casino/blackjack/{gameID}/hit.
func (s *Server) handleBlackjackHit(w http.ResponseWriter, r *http.Request) {
	view, err := s.socialService.BlackjackHit(currentUser(r).ID, chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.recordCasino(0, view.Payout)
	s.writeData(w, http.StatusOK, view)
}

// handleBlackjackStand handles POST /api/social/casino/blackjack/{gameID}/stand.
func (s *Server) handleBlackjackStand(w http.ResponseWriter, r *http.Request) {
	view, err := s.socialService.BlackjackStand(currentUser(r).ID, chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.recordCasino(0, view.Payout)
	s.writeData(w, http.StatusOK, view)
}

// handleBlackjackDouble handles POST /api/social/casino/blackjack/{gameID}/double.
func (s *Server) handleBlackjackDouble(w http.ResponseWriter, r *http.Request) {
	view, err := s.socialService.BlackjackDouble(currentUser(r).ID, chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.recordCasino(0, view.Payout)
	s.writeData(w, http.StatusOK, view)
}

func (s *Server) recordCasino(stake, payout int64) {
	if s.metrics == nil {
		return
	}
	if stake > 0 {
		s.metrics.CasinoStaked.Add(float64(stake))
	}
	if payout > 0 {
		s.metrics.CasinoPaidOut.Add(float64(payout))
	}
}
