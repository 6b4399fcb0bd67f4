// Package engine implements the deterministic adjacency/profit engine.
// It never reads the database; callers pass snapshots of the map. For
// identical inputs the output is byte-identical.
package engine

import (
	"fmt"
	"math"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/rules"
)

// neighborOffsets is the fixed evaluation order of the eight surrounding
// tiles. The order matters for breakdown determinism, not for the totals.
var neighborOffsets = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Snapshot is the immutable view of one map the engine evaluates against.
type Snapshot struct {
	Map       domain.Map
	Tiles     []domain.Tile
	Buildings []domain.BuildingInstance            // non-collapsed only
	Types     map[string]domain.BuildingType       // catalog, keyed by type id

	tileAt     map[[2]int]*domain.Tile
	buildingOn map[string]*domain.BuildingInstance // keyed by tile id
}

// NewSnapshot indexes the passed slices. The slices are not copied; callers
// must not mutate them while the snapshot is in use.
func NewSnapshot(m domain.Map, tiles []domain.Tile, buildings []domain.BuildingInstance, types map[string]domain.BuildingType) *Snapshot {
	s := &Snapshot{
		Map:        m,
		Tiles:      tiles,
		Buildings:  buildings,
		Types:      types,
		tileAt:     make(map[[2]int]*domain.Tile, len(tiles)),
		buildingOn: make(map[string]*domain.BuildingInstance, len(buildings)),
	}
	for i := range tiles {
		s.tileAt[[2]int{tiles[i].X, tiles[i].Y}] = &tiles[i]
	}
	for i := range buildings {
		if buildings[i].Collapsed {
			continue
		}
		s.buildingOn[buildings[i].TileID] = &buildings[i]
	}
	return s
}

// TileAt returns the tile at (x, y), or nil when off-map. Off-map neighbors
// are treated as empty.
func (s *Snapshot) TileAt(x, y int) *domain.Tile {
	return s.tileAt[[2]int{x, y}]
}

// BuildingOn returns the live building on a tile, or nil.
func (s *Snapshot) BuildingOn(tileID string) *domain.BuildingInstance {
	return s.buildingOn[tileID]
}

// Evaluate computes the profit, valuation and breakdown for placing (or
// re-evaluating) a building of the given type on the given tile.
func Evaluate(tile domain.Tile, btype domain.BuildingType, snap *Snapshot, rs *rules.Ruleset) (int64, int64, domain.Breakdown) {
	bd := domain.Breakdown{
		Profit: []domain.BreakdownEntry{{Source: "base", Delta: btype.BaseProfit, Reason: "base profit"}},
		Value:  []domain.BreakdownEntry{{Source: "base", Delta: btype.BaseCost, Reason: "base cost"}},
	}

	profit := btype.BaseProfit
	value := btype.BaseCost

	for _, off := range neighborOffsets {
		nx, ny := tile.X+off[0], tile.Y+off[1]
		neighbor := snap.TileAt(nx, ny)
		if neighbor == nil {
			continue
		}
		source := fmt.Sprintf("(%d,%d)", nx, ny)

		pd, pr := neighborDelta(btype, neighbor, snap, &rs.Profit)
		if pd != 0 {
			profit += pd
			bd.Profit = append(bd.Profit, domain.BreakdownEntry{Source: source, Delta: pd, Reason: pr})
		}

		vd, vr := neighborDelta(btype, neighbor, snap, &rs.Value)
		if vd != 0 {
			value += vd
			bd.Value = append(bd.Value, domain.BreakdownEntry{Source: source, Delta: vd, Reason: vr})
		}
	}

	// Map-tier multiplier applies to profit only
	mult := rs.TierMultiplier[snap.Map.Tier]
	if mult == 0 {
		mult = 1
	}
	scaled := int64(math.Floor(float64(profit) * mult))
	if scaled != profit {
		bd.Profit = append(bd.Profit, domain.BreakdownEntry{
			Source: "tier",
			Delta:  scaled - profit,
			Reason: fmt.Sprintf("%s multiplier", snap.Map.Tier),
		})
		profit = scaled
	}

	// Valuation never drops below the resale floor
	floor := int64(math.Floor(float64(btype.BaseCost) * rs.ResaleFloorFraction))
	if value < floor {
		bd.Value = append(bd.Value, domain.BreakdownEntry{
			Source: "floor",
			Delta:  floor - value,
			Reason: "resale floor",
		})
		value = floor
	}

	return profit, value, bd
}

// neighborDelta computes the additive contribution of one neighboring tile
// under one coefficient set.
func neighborDelta(btype domain.BuildingType, neighbor *domain.Tile, snap *Snapshot, coeffs *rules.AdjacencyCoeffs) (int64, string) {
	// Special buildings dominate whatever terrain they sit on
	if neighbor.SpecialBuilding != "" {
		return coeffs.Special[neighbor.SpecialBuilding], string(neighbor.SpecialBuilding) + " adjacency"
	}

	if b := snap.BuildingOn(neighbor.ID); b != nil {
		nt, ok := snap.Types[b.TypeID]
		if ok && nt.VisualOnly {
			return 0, ""
		}
		if pairs, ok := coeffs.Synergy[btype.ID]; ok {
			if delta, ok := pairs[b.TypeID]; ok {
				return delta, "near " + b.TypeID
			}
		}
		if b.TypeID == btype.ID {
			return coeffs.SameTypePenalty, "saturation"
		}
		return 0, ""
	}

	switch neighbor.Terrain {
	case domain.TerrainRoad:
		return coeffs.RoadAccess, "road access"
	case domain.TerrainDirtTrack:
		return coeffs.DirtTrackAccess, "track access"
	case domain.TerrainWater:
		return coeffs.WaterAmenity, "waterfront"
	case domain.TerrainTrees:
		return coeffs.TreesAmenity, "greenery"
	}
	return 0, ""
}
