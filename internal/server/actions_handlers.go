package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Action handlers share one shape: resolve the acting user and company from
// the route, decode the action-specific body, call the action layer, return
// the Result.

func (s *Server) actionIDs(r *http.Request) (string, string) {
	return currentUser(r).ID, chi.URLParam(r, "companyID")
}

// handleBuyLand handles POST .../actions/buy-land.
func (s *Server) handleBuyLand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TileID string `json:"tile_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.BuyLand(userID, companyID, req.TileID)
	if err != nil {
		s.recordAction("buy_land", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("buy_land", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleBuild handles POST .../actions/build.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TileID  string `json:"tile_id"`
		TypeID  string `json:"type_id"`
		Variant string `json:"variant,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.Build(userID, companyID, req.TileID, req.TypeID, req.Variant)
	if err != nil {
		s.recordAction("build", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("build", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleSellBuilding handles POST .../actions/sell-building.
func (s *Server) handleSellBuilding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.SellBuildingToState(userID, companyID, req.BuildingID)
	if err != nil {
		s.recordAction("sell_building", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("sell_building", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleSellLand handles POST .../actions/sell-land.
func (s *Server) handleSellLand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TileID string `json:"tile_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.SellLandToState(userID, companyID, req.TileID)
	if err != nil {
		s.recordAction("sell_land", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("sell_land", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleListForSale handles POST .../actions/list-for-sale.
func (s *Server) handleListForSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TileID string `json:"tile_id"`
		Price  int64  `json:"price"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.ListForSale(userID, companyID, req.TileID, req.Price)
	if err != nil {
		s.recordAction("list_for_sale", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("list_for_sale", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleCancelListing handles POST .../actions/cancel-listing.
func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.CancelListing(userID, companyID, req.ListingID)
	if err != nil {
		s.recordAction("cancel_listing", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("cancel_listing", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleBuyListing handles POST .../actions/buy-listing. The offered price
// must match the asking price exactly.
func (s *Server) handleBuyListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id"`
		Price     int64  `json:"price"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.BuyListing(userID, companyID, req.ListingID, req.Price)
	if err != nil {
		s.recordAction("buy_listing", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("buy_listing", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleDemolish handles POST .../actions/demolish.
func (s *Server) handleDemolish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.Demolish(userID, companyID, req.BuildingID)
	if err != nil {
		s.recordAction("demolish", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("demolish", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleTakeover handles POST .../actions/takeover.
func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
		Message    string `json:"message,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.Takeover(r.Context(), userID, companyID, req.BuildingID, req.Message)
	if err != nil {
		s.recordAction("takeover", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("takeover", nil)
	s.writeData(w, http.StatusOK, res)
}

// handlePurchaseSecurity handles POST .../actions/security.
func (s *Server) handlePurchaseSecurity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
		Level      int    `json:"level"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.PurchaseSecurity(userID, companyID, req.BuildingID, req.Level)
	if err != nil {
		s.recordAction("purchase_security", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("purchase_security", nil)
	s.writeData(w, http.StatusOK, res)
}

// handleRemoveSecurity handles POST .../actions/security/remove.
func (s *Server) handleRemoveSecurity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID string `json:"building_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	userID, companyID := s.actionIDs(r)
	res, err := s.actionService.RemoveSecurity(userID, companyID, req.BuildingID)
	if err != nil {
		s.recordAction("remove_security", err)
		s.writeError(w, err)
		return
	}
	s.recordAction("remove_security", nil)
	s.writeData(w, http.StatusOK, res)
}

// recordAction counts an action outcome.
func (s *Server) recordAction(action string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ActionTotal.WithLabelValues(action, outcome).Inc()
}
