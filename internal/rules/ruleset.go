// Package rules holds the product-owner tunables of the game economy:
// adjacency coefficients, tier multipliers, tax rates, trick catalog,
// decay factors. Values ship as seeded defaults and are overridable at
// runtime through the rules table; nothing here is hardcoded at call sites.
package rules

import "github.com/skourtis/boomtown/internal/domain"

// AdjacencyCoeffs is one set of additive modifiers applied per neighboring
// tile. Profit and valuation use the same rules with different coefficient
// sets.
type AdjacencyCoeffs struct {
	// Synergy maps building type -> neighbor building type -> delta.
	// Negative deltas model antagonistic pairings.
	Synergy map[string]map[string]int64 `json:"synergy"`

	// Special maps a special building to its named adjacency bonus.
	Special map[domain.SpecialBuilding]int64 `json:"special"`

	RoadAccess      int64 `json:"road_access"`
	DirtTrackAccess int64 `json:"dirt_track_access"`
	WaterAmenity    int64 `json:"water_amenity"`
	TreesAmenity    int64 `json:"trees_amenity"`

	// SameTypePenalty is applied per adjacent building of the same type.
	SameTypePenalty int64 `json:"same_type_penalty"`
}

// Trick describes one offensive action type.
type Trick struct {
	Cost          int64   `json:"cost"`
	BaseDamage    float64 `json:"base_damage"`
	CooldownTicks int     `json:"cooldown_ticks"`
	DetectionProb float64 `json:"detection_prob"`
	FineFactor    float64 `json:"fine_factor"` // fine = cost * factor
	Overlay       string  `json:"overlay"`     // fire, rubble, vermin; empty when none
	SetsBurning   bool    `json:"sets_burning"`
}

// SecurityLevel is one tier of the per-building guard layer.
type SecurityLevel struct {
	InstallCost int64   `json:"install_cost"`
	Upkeep      int64   `json:"upkeep"`
	Resistance  float64 `json:"resistance"` // fraction of damage absorbed, 0..1
}

// Ruleset is the complete coefficient table the engine and action layer
// read from. It is pure data.
type Ruleset struct {
	TierMultiplier map[domain.Tier]float64 `json:"tier_multiplier"`
	TaxRate        map[domain.Tier]float64 `json:"tax_rate"`
	LandBaseCost   map[domain.Tier]int64   `json:"land_base_cost"`
	TerrainFactor  map[domain.Terrain]float64 `json:"terrain_factor"`

	// StreakDiscount is the per-streak-point fractional discount on land,
	// capped at StreakDiscountCap.
	StreakDiscount    float64 `json:"streak_discount"`
	StreakDiscountCap float64 `json:"streak_discount_cap"`

	Profit AdjacencyCoeffs `json:"profit"`
	Value  AdjacencyCoeffs `json:"value"`

	// ResaleFloorFraction sets the valuation floor as a fraction of base cost.
	ResaleFloorFraction float64 `json:"resale_floor_fraction"`
	// StatePriceFraction is the fraction of current value paid on liquidation.
	StatePriceFraction float64 `json:"state_price_fraction"`

	UnbuiltTileCap      int `json:"unbuilt_tile_cap"`
	MaxCompaniesPerUser int `json:"max_companies_per_user"`
	InactivityThreshold int `json:"inactivity_threshold"`

	DecayFactorDamaged float64 `json:"decay_factor_damaged"`
	DecayFactorBurning float64 `json:"decay_factor_burning"`

	Tricks map[string]Trick `json:"tricks"`

	// Takeover of inactive or wrecked buildings.
	TakeoverDamageThreshold float64 `json:"takeover_damage_threshold"`
	TakeoverCostFactor      float64 `json:"takeover_cost_factor"` // of current value
	TakeoverCooldownTicks   int     `json:"takeover_cooldown_ticks"`

	SecurityLevels []SecurityLevel `json:"security_levels"`

	// RepairCostPerPoint prices repair, cleanup and extinguish actions
	// proportionally to severity.
	RepairCostPerPoint int64 `json:"repair_cost_per_point"`

	// LevelThresholds[i] is the total-actions count required for level i+2.
	LevelThresholds []int `json:"level_thresholds"`

	// RoulettePayout maps bet kind to payout multiplier (stake included).
	RoulettePayout map[string]int64 `json:"roulette_payout"`
	// BlackjackPayoutNum/Den encode the 3:2 natural payout.
	BlackjackPayoutNum int64 `json:"blackjack_payout_num"`
	BlackjackPayoutDen int64 `json:"blackjack_payout_den"`
}

// Defaults returns the seeded product defaults. The authority for these
// numbers is the product owner; they are data, not design.
func Defaults() *Ruleset {
	return &Ruleset{
		TierMultiplier: map[domain.Tier]float64{
			domain.TierTown:    1.0,
			domain.TierCity:    1.5,
			domain.TierCapital: 2.0,
		},
		TaxRate: map[domain.Tier]float64{
			domain.TierTown:    0.10,
			domain.TierCity:    0.15,
			domain.TierCapital: 0.20,
		},
		LandBaseCost: map[domain.Tier]int64{
			domain.TierTown:    1_000,
			domain.TierCity:    5_000,
			domain.TierCapital: 20_000,
		},
		TerrainFactor: map[domain.Terrain]float64{
			domain.TerrainFreeLand:  1.0,
			domain.TerrainTrees:     1.2,
			domain.TerrainDirtTrack: 0.8,
		},
		StreakDiscount:    0.01,
		StreakDiscountCap: 0.20,

		Profit: AdjacencyCoeffs{
			Synergy: map[string]map[string]int64{
				"hot_dog_stand":     {"hot_dog_stand": -40, "casino": 60, "market_stall": 25},
				"market_stall":      {"market_stall": -20, "shop": 30},
				"burger_bar":        {"burger_bar": -50, "casino": 80, "motel": 40},
				"motel":             {"motel": -80, "restaurant": 60, "casino": 100},
				"restaurant":        {"restaurant": -90, "manor": 70, "bank": 50},
				"shop":              {"shop": -35, "market_stall": 30},
				"high_street_store": {"high_street_store": -60, "shop": 45, "bank": 55},
				"campsite":          {"campsite": -30, "motel": -20},
				"manor":             {"manor": -100},
				"casino":            {"casino": -200, "motel": 90, "burger_bar": 40},
			},
			Special: map[domain.SpecialBuilding]int64{
				domain.SpecialTemple:        50,
				domain.SpecialBank:          40,
				domain.SpecialPoliceStation: 25,
				domain.SpecialCasino:        70,
			},
			RoadAccess:      30,
			DirtTrackAccess: 10,
			WaterAmenity:    20,
			TreesAmenity:    15,
			SameTypePenalty: -25,
		},
		Value: AdjacencyCoeffs{
			Synergy: map[string]map[string]int64{
				"manor":      {"manor": -500, "water": 0},
				"motel":      {"casino": 400},
				"restaurant": {"manor": 350},
				"casino":     {"casino": -1000},
			},
			Special: map[domain.SpecialBuilding]int64{
				domain.SpecialTemple:        300,
				domain.SpecialBank:          450,
				domain.SpecialPoliceStation: 250,
				domain.SpecialCasino:        200,
			},
			RoadAccess:      200,
			DirtTrackAccess: 50,
			WaterAmenity:    350,
			TreesAmenity:    250,
			SameTypePenalty: -150,
		},

		ResaleFloorFraction: 0.40,
		StatePriceFraction:  0.50,

		UnbuiltTileCap:      10,
		MaxCompaniesPerUser: 3,
		InactivityThreshold: 144,

		DecayFactorDamaged: 0.02,
		DecayFactorBurning: 0.08,

		Tricks: map[string]Trick{
			"vandalism":   {Cost: 500, BaseDamage: 10, CooldownTicks: 3, DetectionProb: 0.15, FineFactor: 2.0, Overlay: "rubble"},
			"arson":       {Cost: 2_000, BaseDamage: 40, CooldownTicks: 12, DetectionProb: 0.35, FineFactor: 5.0, Overlay: "fire", SetsBurning: true},
			"sabotage":    {Cost: 1_200, BaseDamage: 25, CooldownTicks: 6, DetectionProb: 0.25, FineFactor: 3.0},
			"infestation": {Cost: 800, BaseDamage: 15, CooldownTicks: 4, DetectionProb: 0.10, FineFactor: 2.5, Overlay: "vermin"},
		},

		TakeoverDamageThreshold: 60,
		TakeoverCostFactor:      0.75,
		TakeoverCooldownTicks:   24,

		SecurityLevels: []SecurityLevel{
			{InstallCost: 2_000, Upkeep: 50, Resistance: 0.25},
			{InstallCost: 6_000, Upkeep: 120, Resistance: 0.50},
			{InstallCost: 15_000, Upkeep: 300, Resistance: 0.75},
		},

		RepairCostPerPoint: 60,

		LevelThresholds: []int{10, 25, 50, 100, 200, 400, 800},

		RoulettePayout: map[string]int64{
			"straight": 36,
			"red":      2,
			"black":    2,
			"even":     2,
			"odd":      2,
		},
		BlackjackPayoutNum: 3,
		BlackjackPayoutDen: 2,
	}
}

// LevelFor returns the level earned by a total-actions count.
func (r *Ruleset) LevelFor(totalActions int) int {
	level := 1
	for _, threshold := range r.LevelThresholds {
		if totalActions >= threshold {
			level++
		}
	}
	return level
}
