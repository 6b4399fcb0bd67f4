// Package domain holds the core entities of the Boomtown game world.
// The domain layer is pure: no database handles, no HTTP, no clocks.
package domain

// Tier is a map tier. Tiers determine starting cash, tax rate, and the
// tier multiplier applied to building profit.
type Tier string

const (
	TierTown    Tier = "town"
	TierCity    Tier = "city"
	TierCapital Tier = "capital"
)

// NextTier returns the tier unlocked by heroing out of t, or "" for capital.
func NextTier(t Tier) Tier {
	switch t {
	case TierTown:
		return TierCity
	case TierCity:
		return TierCapital
	}
	return ""
}

// Terrain is the ground type of a tile.
type Terrain string

const (
	TerrainFreeLand  Terrain = "free_land"
	TerrainWater     Terrain = "water"
	TerrainRoad      Terrain = "road"
	TerrainDirtTrack Terrain = "dirt_track"
	TerrainTrees     Terrain = "trees"
)

// Ownable reports whether land of this terrain may be purchased.
func (t Terrain) Ownable() bool {
	switch t {
	case TerrainFreeLand, TerrainTrees, TerrainDirtTrack:
		return true
	}
	return false
}

// SpecialBuilding is a map-owned landmark. At most one of each per map;
// its tile is unownable.
type SpecialBuilding string

const (
	SpecialTemple        SpecialBuilding = "temple"
	SpecialBank          SpecialBuilding = "bank"
	SpecialPoliceStation SpecialBuilding = "police_station"
	SpecialCasino        SpecialBuilding = "casino"
)

// Map is a rectangular grid owned by no one and shared by all players on it.
// Dimensions are immutable post-creation.
type Map struct {
	ID              string
	Country         string
	Tier            Tier
	Width           int
	Height          int
	HeroNetWorth    int64
	HeroCash        int64
	HeroLandPct     float64
	PoliceStrikeDay int
	Active          bool
	CreatedAt       int64
}

// Tile is one cell of a map.
type Tile struct {
	ID              string
	MapID           string
	X               int
	Y               int
	Terrain         Terrain
	SpecialBuilding SpecialBuilding // empty when none
	OwnerCompanyID  string          // empty when unowned
}

// GameCompany is a player's economic actor on one map. A user owns at most
// three game companies.
type GameCompany struct {
	ID               string
	UserID           string
	Name             string
	BossName         string
	Cash             int64
	Offshore         int64
	Level            int
	TotalActions     int
	TicksSinceAction int
	InPrison         bool
	Fine             int64
	LandStreak       int
	MapID            string // empty when not on a map
	TierJoined       Tier
	Inactive         bool
	CreatedAt        int64
}

// BuildingType is a static catalog entry.
type BuildingType struct {
	ID            string
	Name          string
	BaseCost      int64
	BaseProfit    int64
	LevelRequired int
	Variants      []string
	MaxPerMap     int // 0 means unlicensed (no cap)
	VisualClass   string
	VisualOnly    bool
}

// Licensed reports whether the type has a per-map cap.
func (t BuildingType) Licensed() bool { return t.MaxPerMap > 0 }

// Visual-only catalog entries.
const (
	BuildingDemolished = "demolished"
	BuildingClaimStake = "claim_stake"
)

// BreakdownEntry records one non-zero contribution to a building's profit
// or valuation.
type BreakdownEntry struct {
	Source string `json:"source"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// Breakdown is the full profit/value derivation for one building.
type Breakdown struct {
	Profit []BreakdownEntry `json:"profit"`
	Value  []BreakdownEntry `json:"value"`
}

// BuildingInstance is a built structure on one tile.
type BuildingInstance struct {
	ID                string
	TileID            string
	TypeID            string
	CompanyID         string
	Variant           string
	CalculatedProfit  int64
	CalculatedValue   int64
	Breakdown         string // JSON-encoded Breakdown
	Damage            float64
	Collapsed         bool
	Burning           bool
	Overlay           string // fire, rubble, vermin; empty when none
	Repairing         bool
	NeedsProfitRecalc bool
	LastTickApplied   int64
	CreatedAt         int64
}

// Live reports whether the building earns income and occupies its tile as a
// functioning structure.
func (b BuildingInstance) Live() bool { return !b.Collapsed }

// BuildingSecurity is an optional guard layer attached to one building.
type BuildingSecurity struct {
	ID         string
	BuildingID string
	Level      int
	Upkeep     int64
	Resistance float64 // damage multiplier reduction, 0..1
	CreatedAt  int64
}

// ModerationStatus tracks the verdict on user-supplied text.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// Attack records one offensive action against a building.
type Attack struct {
	ID                string
	AttackerCompanyID string
	BuildingID        string
	Trick             string
	Message           string
	ModerationStatus  ModerationStatus
	Detected          bool
	CreatedAt         int64
}

// ListingStatus is the lifecycle state of a market listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// MarketListing is an asking price published by an owner.
type MarketListing struct {
	ID              string
	MapID           string
	TileID          string
	BuildingID      string // empty for bare land
	SellerCompanyID string
	AskingPrice     int64
	Status          ListingStatus
	CreatedAt       int64
}

// Transaction is an append-only audit record of any economic action.
type Transaction struct {
	ID         string
	Type       string
	CompanyID  string
	MapID      string
	TileID     string
	BuildingID string
	Amount     int64
	Details    string // JSON blob
	CreatedAt  int64
}

// CompanyStatistics is the per-(company,map) snapshot upserted each tick.
type CompanyStatistics struct {
	CompanyID    string
	MapID        string
	TickTS       int64
	NetWorth     int64
	Cash         int64
	LandPct      float64
	Buildings    int
	ProfitMean   float64
	ProfitStddev float64
}
