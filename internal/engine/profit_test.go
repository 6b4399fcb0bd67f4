package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/rules"
)

func testTypes() map[string]domain.BuildingType {
	return map[string]domain.BuildingType{
		"hot_dog_stand": {ID: "hot_dog_stand", BaseCost: 5_000, BaseProfit: 300},
		"casino":        {ID: "casino", BaseCost: 200_000, BaseProfit: 4_000, MaxPerMap: 1},
		"demolished":    {ID: "demolished", VisualOnly: true},
	}
}

// gridMap builds a width x height map of free land tiles.
func gridMap(tier domain.Tier, width, height int) (domain.Map, []domain.Tile) {
	m := domain.Map{ID: "m1", Tier: tier, Width: width, Height: height}
	tiles := make([]domain.Tile, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tiles = append(tiles, domain.Tile{
				ID:      tileID(x, y),
				MapID:   m.ID,
				X:       x,
				Y:       y,
				Terrain: domain.TerrainFreeLand,
			})
		}
	}
	return m, tiles
}

func tileID(x, y int) string {
	return string(rune('a'+x)) + string(rune('a'+y))
}

func TestEvaluate_NoNeighbors(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 5, 5)
	snap := NewSnapshot(m, tiles, nil, testTypes())

	profit, value, bd := Evaluate(tiles[2*5+2], testTypes()["hot_dog_stand"], snap, rs)

	// Town multiplier is 1.0, so profit stays at base
	assert.Equal(t, int64(300), profit)
	assert.Equal(t, int64(5_000), value)
	assert.Len(t, bd.Profit, 1)
	assert.Equal(t, "base", bd.Profit[0].Source)
}

func TestEvaluate_TierMultiplier(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierCapital, 3, 3)
	snap := NewSnapshot(m, tiles, nil, testTypes())

	profit, _, bd := Evaluate(tiles[4], testTypes()["hot_dog_stand"], snap, rs)

	assert.Equal(t, int64(600), profit) // 300 * 2.0
	last := bd.Profit[len(bd.Profit)-1]
	assert.Equal(t, "tier", last.Source)
	assert.Equal(t, int64(300), last.Delta)
}

func TestEvaluate_TempleAdjacencyBonus(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 5, 5)
	// Place the temple next to (3,2)
	for i := range tiles {
		if tiles[i].X == 4 && tiles[i].Y == 2 {
			tiles[i].SpecialBuilding = domain.SpecialTemple
		}
	}
	snap := NewSnapshot(m, tiles, nil, testTypes())

	plain, _, _ := Evaluate(tileAt(tiles, 1, 2), testTypes()["hot_dog_stand"], snap, rs)
	near, _, bd := Evaluate(tileAt(tiles, 3, 2), testTypes()["hot_dog_stand"], snap, rs)

	assert.Equal(t, plain+rs.Profit.Special[domain.SpecialTemple], near)

	found := false
	for _, e := range bd.Profit {
		if e.Reason == "temple adjacency" {
			found = true
			assert.Equal(t, rs.Profit.Special[domain.SpecialTemple], e.Delta)
		}
	}
	assert.True(t, found, "expected a temple adjacency entry in the breakdown")
}

func TestEvaluate_SaturationPenalty(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 5, 5)
	buildings := []domain.BuildingInstance{
		{ID: "b1", TileID: tileAt(tiles, 2, 2).ID, TypeID: "hot_dog_stand"},
	}
	snap := NewSnapshot(m, tiles, buildings, testTypes())

	profit, _, _ := Evaluate(tileAt(tiles, 3, 2), testTypes()["hot_dog_stand"], snap, rs)

	// Defaults carry an explicit same-type synergy entry for hot dog stands
	assert.Equal(t, int64(300)+rs.Profit.Synergy["hot_dog_stand"]["hot_dog_stand"], profit)
}

func TestEvaluate_CollapsedAndVisualOnlyNeighborsIgnored(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 5, 5)
	buildings := []domain.BuildingInstance{
		{ID: "b1", TileID: tileAt(tiles, 2, 2).ID, TypeID: "hot_dog_stand", Collapsed: true},
		{ID: "b2", TileID: tileAt(tiles, 4, 2).ID, TypeID: "demolished"},
	}
	snap := NewSnapshot(m, tiles, buildings, testTypes())

	profit, _, _ := Evaluate(tileAt(tiles, 3, 2), testTypes()["hot_dog_stand"], snap, rs)
	assert.Equal(t, int64(300), profit)
}

func TestEvaluate_MapEdgeTreatsOffMapAsEmpty(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 1, 1)
	snap := NewSnapshot(m, tiles, nil, testTypes())

	profit, value, _ := Evaluate(tiles[0], testTypes()["hot_dog_stand"], snap, rs)
	assert.Equal(t, int64(300), profit)
	assert.Equal(t, int64(5_000), value)
}

func TestEvaluate_ValueFloor(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierTown, 3, 3)
	// Surround with casinos to drag valuation down
	types := testTypes()
	buildings := []domain.BuildingInstance{
		{ID: "b1", TileID: tileAt(tiles, 0, 1).ID, TypeID: "casino"},
		{ID: "b2", TileID: tileAt(tiles, 2, 1).ID, TypeID: "casino"},
		{ID: "b3", TileID: tileAt(tiles, 1, 0).ID, TypeID: "casino"},
		{ID: "b4", TileID: tileAt(tiles, 1, 2).ID, TypeID: "casino"},
	}
	snap := NewSnapshot(m, tiles, buildings, types)

	_, value, _ := Evaluate(tileAt(tiles, 1, 1), types["casino"], snap, rs)
	floor := int64(float64(types["casino"].BaseCost) * rs.ResaleFloorFraction)
	assert.GreaterOrEqual(t, value, floor)
}

// Determinism: replaying the evaluation yields byte-identical output.
func TestEvaluate_Deterministic(t *testing.T) {
	rs := rules.Defaults()
	m, tiles := gridMap(domain.TierCity, 10, 10)
	for i := range tiles {
		switch {
		case tiles[i].X == 3:
			tiles[i].Terrain = domain.TerrainRoad
		case tiles[i].Y == 7:
			tiles[i].Terrain = domain.TerrainWater
		}
	}
	for i := range tiles {
		if tiles[i].X == 5 && tiles[i].Y == 5 {
			tiles[i].SpecialBuilding = domain.SpecialBank
		}
	}
	buildings := []domain.BuildingInstance{
		{ID: "b1", TileID: tileAt(tiles, 4, 4).ID, TypeID: "hot_dog_stand"},
		{ID: "b2", TileID: tileAt(tiles, 4, 5).ID, TypeID: "casino"},
	}

	var firstProfit, firstValue int64
	var firstBD []byte
	for i := 0; i < 5; i++ {
		snap := NewSnapshot(m, tiles, buildings, testTypes())
		profit, value, bd := Evaluate(tileAt(tiles, 4, 6), testTypes()["hot_dog_stand"], snap, rs)
		raw, err := json.Marshal(bd)
		require.NoError(t, err)

		if i == 0 {
			firstProfit, firstValue, firstBD = profit, value, raw
			continue
		}
		assert.Equal(t, firstProfit, profit)
		assert.Equal(t, firstValue, value)
		assert.Equal(t, firstBD, raw)
	}
}

func TestRegion_ClipsToBounds(t *testing.T) {
	assert.Len(t, Region(0, 0, 5, 5), 4)
	assert.Len(t, Region(2, 2, 5, 5), 9)
	assert.Len(t, Region(4, 4, 5, 5), 4)
	assert.Len(t, Region(0, 0, 1, 1), 1)
}

func tileAt(tiles []domain.Tile, x, y int) domain.Tile {
	for _, tl := range tiles {
		if tl.X == x && tl.Y == y {
			return tl
		}
	}
	return domain.Tile{}
}
