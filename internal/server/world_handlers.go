package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/world"
)

// handleListMaps handles GET /api/maps?tier=town.
func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	tier := domain.Tier(r.URL.Query().Get("tier"))
	maps, err := s.worldService.ListMaps(tier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"maps": maps})
}

// handleGetMap handles GET /api/maps/{mapID}: the map with its tiles,
// buildings, companies and active listings in one payload.
func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	mapID := chi.URLParam(r, "mapID")

	m, err := s.worldService.GetMap(mapID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tiles, err := s.worldService.GetTiles(mapID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	instances, err := s.buildingRepo.ListByMap(mapID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	listings, err := s.marketRepo.ListActiveByMap(mapID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"map":       m,
		"tiles":     tiles,
		"buildings": instances,
		"listings":  listings,
	})
}

// handleListListings handles GET /api/maps/{mapID}/listings.
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.marketRepo.ListActiveByMap(chi.URLParam(r, "mapID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"listings": listings})
}

// handleBuildingTypes handles GET /api/buildings/types.
func (s *Server) handleBuildingTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.buildingRepo.GetTypes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"types": types})
}

// handleBuildingMessages handles GET /api/buildings/{buildingID}/messages:
// approved attack messages visible on the building.
func (s *Server) handleBuildingMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.attackService.VisibleMessages(chi.URLParam(r, "buildingID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// handleCreateMap handles POST /api/admin/maps.
func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Country      string  `json:"country"`
		Tier         string  `json:"tier"`
		Width        int     `json:"width"`
		Height       int     `json:"height"`
		HeroNetWorth int64   `json:"hero_net_worth"`
		HeroCash     int64   `json:"hero_cash"`
		HeroLandPct  float64 `json:"hero_land_pct"`
		Seed         int64   `json:"seed,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	m, err := s.worldService.CreateMap(world.CreateMapParams{
		Country:      req.Country,
		Tier:         domain.Tier(req.Tier),
		Width:        req.Width,
		Height:       req.Height,
		HeroNetWorth: req.HeroNetWorth,
		HeroCash:     req.HeroCash,
		HeroLandPct:  req.HeroLandPct,
		Seed:         req.Seed,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "map_created", m.ID, "")
	s.writeData(w, http.StatusCreated, m)
}

// queryLimit parses an optional ?limit= parameter.
func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
