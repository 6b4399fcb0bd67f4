package world

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Service handles map lifecycle and world queries.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new world service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "world").Logger(),
	}
}

// CreateMapParams are the admin inputs for a new map.
type CreateMapParams struct {
	Country      string
	Tier         domain.Tier
	Width        int
	Height       int
	HeroNetWorth int64
	HeroCash     int64
	HeroLandPct  float64
	Seed         int64 // 0 picks a time-based seed
}

// CreateMap validates dimensions, generates terrain and special buildings,
// and persists the new map with all its tiles.
func (s *Service) CreateMap(p CreateMapParams) (*domain.Map, error) {
	if p.Width < 1 || p.Width > 100 || p.Height < 1 || p.Height > 100 {
		return nil, domain.E(domain.KindInvalidRequest, "map dimensions must be between 1 and 100")
	}
	switch p.Tier {
	case domain.TierTown, domain.TierCity, domain.TierCapital:
	default:
		return nil, domain.E(domain.KindInvalidRequest, "unknown tier %q", p.Tier)
	}
	if p.Country == "" {
		return nil, domain.E(domain.KindInvalidRequest, "country is required")
	}
	if p.HeroNetWorth <= 0 || p.HeroCash <= 0 {
		return nil, domain.E(domain.KindInvalidRequest, "hero thresholds must be positive")
	}
	if p.HeroLandPct <= 0 || p.HeroLandPct > 1 {
		return nil, domain.E(domain.KindInvalidRequest, "hero land percentage must be in (0, 1]")
	}

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &domain.Map{
		ID:           uuid.New().String(),
		Country:      p.Country,
		Tier:         p.Tier,
		Width:        p.Width,
		Height:       p.Height,
		HeroNetWorth: p.HeroNetWorth,
		HeroCash:     p.HeroCash,
		HeroLandPct:  p.HeroLandPct,
		Active:       true,
		CreatedAt:    time.Now().Unix(),
	}

	tiles := generateTerrain(m, seed)
	placeSpecialBuildings(tiles, rand.New(rand.NewSource(seed+1)))

	if err := s.repo.CreateMap(m, tiles); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMap returns one map or a not-found error.
func (s *Service) GetMap(id string) (*domain.Map, error) {
	m, err := s.repo.GetMap(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.E(domain.KindNotFound, "map not found")
	}
	return m, nil
}

// ListMaps returns active maps, optionally filtered by tier.
func (s *Service) ListMaps(tier domain.Tier) ([]domain.Map, error) {
	if tier == "" {
		return s.repo.ListActiveMaps()
	}
	return s.repo.ListMapsByTier(tier)
}

// GetTiles returns the full tile grid of a map.
func (s *Service) GetTiles(mapID string) ([]domain.Tile, error) {
	m, err := s.repo.GetMap(mapID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.E(domain.KindNotFound, "map not found")
	}
	return s.repo.GetTiles(mapID)
}

// generateTerrain lays out the grid: mostly free land, with roads in
// straight lines and scattered water, trees and dirt tracks.
func generateTerrain(m *domain.Map, seed int64) []domain.Tile {
	rng := rand.New(rand.NewSource(seed))
	tiles := make([]domain.Tile, 0, m.Width*m.Height)

	// One vertical and one horizontal road for maps big enough to carry them
	roadX, roadY := -1, -1
	if m.Width >= 5 {
		roadX = 1 + rng.Intn(m.Width-2)
	}
	if m.Height >= 5 {
		roadY = 1 + rng.Intn(m.Height-2)
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			terrain := domain.TerrainFreeLand
			switch {
			case x == roadX || y == roadY:
				terrain = domain.TerrainRoad
			default:
				switch roll := rng.Float64(); {
				case roll < 0.06:
					terrain = domain.TerrainWater
				case roll < 0.14:
					terrain = domain.TerrainTrees
				case roll < 0.20:
					terrain = domain.TerrainDirtTrack
				}
			}
			tiles = append(tiles, domain.Tile{
				ID:      uuid.New().String(),
				MapID:   m.ID,
				X:       x,
				Y:       y,
				Terrain: terrain,
			})
		}
	}
	return tiles
}

// placeSpecialBuildings puts at most one of each landmark on a distinct
// free-land tile. Small maps get as many as fit.
func placeSpecialBuildings(tiles []domain.Tile, rng *rand.Rand) {
	candidates := make([]int, 0, len(tiles))
	for i := range tiles {
		if tiles[i].Terrain == domain.TerrainFreeLand {
			candidates = append(candidates, i)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	specials := []domain.SpecialBuilding{
		domain.SpecialTemple,
		domain.SpecialBank,
		domain.SpecialPoliceStation,
		domain.SpecialCasino,
	}
	for i, sb := range specials {
		if i >= len(candidates) {
			break
		}
		tiles[candidates[i]].SpecialBuilding = sb
	}
}
