// Package actions is the transactional action layer: every player-initiated
// economic mutation runs here as a single transaction that validates all
// preconditions, applies all effects, appends a ledger row and dirty-marks
// the affected neighborhood.
package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/engine"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/market"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

// Service executes action-layer operations against game.db.
type Service struct {
	db           *sql.DB
	companies    *company.Repository
	worldRepo    *world.Repository
	buildingRepo *buildings.Repository
	marketRepo   *market.Repository
	ledgerRepo   *ledger.Repository
	rulesRepo    *rules.Repository
	gate         moderation.Gate
	tickInterval time.Duration
	log          zerolog.Logger
}

// NewService creates a new action service. tickInterval converts
// cooldowns expressed in ticks into wall-clock windows.
func NewService(db *sql.DB, companies *company.Repository, worldRepo *world.Repository,
	buildingRepo *buildings.Repository, marketRepo *market.Repository,
	ledgerRepo *ledger.Repository, rulesRepo *rules.Repository,
	gate moderation.Gate, tickInterval time.Duration, log zerolog.Logger) *Service {
	return &Service{
		db:           db,
		companies:    companies,
		worldRepo:    worldRepo,
		buildingRepo: buildingRepo,
		marketRepo:   marketRepo,
		ledgerRepo:   ledgerRepo,
		rulesRepo:    rulesRepo,
		gate:         gate,
		tickInterval: tickInterval,
		log:          log.With().Str("service", "actions").Logger(),
	}
}

// Result reports the outcome of one action.
type Result struct {
	Cash     int64  `json:"cash"`
	LevelUp  bool   `json:"level_up"`
	Level    int    `json:"level"`
	Message  string `json:"message,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

// loadActor loads and gates the acting company inside the transaction:
// it must exist, belong to the user, be on a map and be out of prison.
func (s *Service) loadActor(tx *sql.Tx, userID, companyID string) (*domain.GameCompany, error) {
	c, err := s.companies.GetByIDTx(tx, companyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.E(domain.KindNotFound, "company not found")
	}
	if c.UserID != userID {
		return nil, domain.E(domain.KindForbidden, "company belongs to another user")
	}
	if c.MapID == "" {
		return nil, domain.E(domain.KindPreconditionFailed, "company is not on a map")
	}
	if c.InPrison {
		return nil, domain.E(domain.KindPreconditionFailed, "fine must be paid first")
	}
	return c, nil
}

// finish records the action, runs the level-up check and fills the result.
func (s *Service) finish(tx *sql.Tx, c *domain.GameCompany, rs *rules.Ruleset, cashDelta int64, res *Result) error {
	if err := s.companies.RecordActionTx(tx, c.ID); err != nil {
		return err
	}
	res.Cash = c.Cash + cashDelta
	res.Level = c.Level

	newLevel := rs.LevelFor(c.TotalActions + 1)
	if newLevel > c.Level {
		if err := s.companies.SetLevelTx(tx, c.ID, newLevel); err != nil {
			return err
		}
		res.LevelUp = true
		res.Level = newLevel
	}
	return nil
}

func (s *Service) appendTx(tx *sql.Tx, txType string, c *domain.GameCompany, tileID, buildingID string, amount int64, details string) error {
	return s.ledgerRepo.AppendTx(tx, &domain.Transaction{
		ID:         uuid.New().String(),
		Type:       txType,
		CompanyID:  c.ID,
		MapID:      c.MapID,
		TileID:     tileID,
		BuildingID: buildingID,
		Amount:     amount,
		Details:    details,
		CreatedAt:  time.Now().Unix(),
	})
}

// landCost prices a tile: per-tier base, terrain factor, streak discount.
func landCost(rs *rules.Ruleset, tier domain.Tier, terrain domain.Terrain, streak int) int64 {
	base := float64(rs.LandBaseCost[tier])
	factor, ok := rs.TerrainFactor[terrain]
	if !ok {
		factor = 1.0
	}
	discount := float64(streak) * rs.StreakDiscount
	if discount > rs.StreakDiscountCap {
		discount = rs.StreakDiscountCap
	}
	return int64(math.Floor(base * factor * (1 - discount)))
}

// BuyLand purchases an unowned, ownable tile on the actor's map.
func (s *Service) BuyLand(userID, companyID, tileID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, tileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindNotFound, "tile not found on your map")
		}
		if t.OwnerCompanyID != "" {
			return domain.E(domain.KindPreconditionFailed, "tile is already owned")
		}
		if t.SpecialBuilding != "" {
			return domain.E(domain.KindPreconditionFailed, "special-building tiles are unownable")
		}
		if !t.Terrain.Ownable() {
			return domain.E(domain.KindPreconditionFailed, "terrain %s is unownable", t.Terrain)
		}

		unbuilt, err := s.worldRepo.CountUnbuiltOwnedTilesTx(tx, c.MapID, c.ID)
		if err != nil {
			return err
		}
		if unbuilt >= rs.UnbuiltTileCap {
			return domain.E(domain.KindPreconditionFailed,
				"unbuilt land limit reached (%d tiles)", rs.UnbuiltTileCap)
		}

		cost := landCost(rs, c.TierJoined, t.Terrain, c.LandStreak)
		if c.Cash < cost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", cost, c.Cash)
		}

		if err := s.companies.AdjustCashTx(tx, c.ID, -cost); err != nil {
			return err
		}
		if err := s.worldRepo.SetOwnerTx(tx, tileID, c.ID); err != nil {
			return err
		}
		if err := s.companies.SetLandStreakTx(tx, c.ID, c.LandStreak+1); err != nil {
			return err
		}
		if err := s.appendTx(tx, "buy_land", c, tileID, "", -cost, ""); err != nil {
			return err
		}
		res.TargetID = tileID
		return s.finish(tx, c, rs, -cost, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Build constructs a building on a tile the actor owns.
func (s *Service) Build(userID, companyID, tileID, typeID, variant string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	btype, err := s.buildingRepo.GetType(typeID)
	if err != nil {
		return nil, err
	}
	if btype == nil || btype.VisualOnly {
		return nil, domain.E(domain.KindInvalidRequest, "unknown building type %q", typeID)
	}
	if len(btype.Variants) > 0 {
		valid := false
		for _, v := range btype.Variants {
			if v == variant {
				valid = true
				break
			}
		}
		if !valid {
			return nil, domain.E(domain.KindInvalidRequest,
				"variant %q is not available for %s", variant, typeID)
		}
	} else if variant != "" {
		return nil, domain.E(domain.KindInvalidRequest, "%s has no variants", typeID)
	}

	types, err := s.buildingRepo.GetTypes()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, tileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindNotFound, "tile not found on your map")
		}
		if t.OwnerCompanyID != c.ID {
			return domain.E(domain.KindPreconditionFailed, "you do not own this tile")
		}

		existing, err := s.buildingRepo.GetAnyByTileTx(tx, tileID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Collapsed {
				return domain.E(domain.KindPreconditionFailed, "tile is blocked by a collapsed building")
			}
			et, ok := types[existing.TypeID]
			if !ok || !et.VisualOnly {
				return domain.E(domain.KindPreconditionFailed, "tile already has a building")
			}
			if err := s.buildingRepo.DeleteVisualMarkerTx(tx, tileID); err != nil {
				return err
			}
		}

		if c.Level < btype.LevelRequired {
			return domain.E(domain.KindPreconditionFailed,
				"level %d required (you are level %d)", btype.LevelRequired, c.Level)
		}
		if btype.Licensed() {
			count, err := s.buildingRepo.CountLicensedOnMapTx(tx, c.MapID, typeID)
			if err != nil {
				return err
			}
			if count >= btype.MaxPerMap {
				return domain.E(domain.KindPreconditionFailed, "license limit reached")
			}
		}
		if c.Cash < btype.BaseCost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", btype.BaseCost, c.Cash)
		}

		m, tiles, instances, err := s.snapshotInputs(c.MapID)
		if err != nil {
			return err
		}
		snap := engine.NewSnapshot(*m, tiles, instances, types)
		profit, value, bd := engine.Evaluate(*t, *btype, snap, rs)
		rawBD, err := json.Marshal(bd)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}

		b := &domain.BuildingInstance{
			ID:               uuid.New().String(),
			TileID:           tileID,
			TypeID:           typeID,
			CompanyID:        c.ID,
			Variant:          variant,
			CalculatedProfit: profit,
			CalculatedValue:  value,
			Breakdown:        string(rawBD),
			CreatedAt:        time.Now().Unix(),
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, -btype.BaseCost); err != nil {
			return err
		}
		if err := s.buildingRepo.InsertTx(tx, b); err != nil {
			return err
		}
		if err := s.appendTx(tx, "build", c, tileID, b.ID, -btype.BaseCost, ""); err != nil {
			return err
		}
		if err := s.buildingRepo.MarkDirtyAroundTx(tx, c.MapID, t.X, t.Y, m.Width, m.Height); err != nil {
			return err
		}
		res.TargetID = b.ID
		return s.finish(tx, c, rs, -btype.BaseCost, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SellBuildingToState liquidates a building at the state price. The land
// stays with the owner; a demolished marker takes the building's place.
func (s *Service) SellBuildingToState(userID, companyID, buildingID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		b, t, m, err := s.loadOwnedBuilding(tx, c, buildingID)
		if err != nil {
			return err
		}
		if listed, err := s.marketRepo.GetActiveByTileTx(tx, b.TileID); err != nil {
			return err
		} else if listed != nil {
			return domain.E(domain.KindPreconditionFailed, "cancel the market listing first")
		}

		price := int64(math.Floor(float64(b.CalculatedValue) * rs.StatePriceFraction))
		if err := s.replaceWithMarker(tx, b, c.ID); err != nil {
			return err
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, price); err != nil {
			return err
		}
		if err := s.appendTx(tx, "sell_to_state", c, b.TileID, b.ID, price, ""); err != nil {
			return err
		}
		if err := s.buildingRepo.MarkDirtyAroundTx(tx, c.MapID, t.X, t.Y, m.Width, m.Height); err != nil {
			return err
		}
		return s.finish(tx, c, rs, price, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SellLandToState releases an empty owned tile back to the state for a
// fraction of its land cost.
func (s *Service) SellLandToState(userID, companyID, tileID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	types, err := s.buildingRepo.GetTypes()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, tileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindNotFound, "tile not found on your map")
		}
		if t.OwnerCompanyID != c.ID {
			return domain.E(domain.KindPreconditionFailed, "you do not own this tile")
		}
		if listed, err := s.marketRepo.GetActiveByTileTx(tx, tileID); err != nil {
			return err
		} else if listed != nil {
			return domain.E(domain.KindPreconditionFailed, "cancel the market listing first")
		}

		b, err := s.buildingRepo.GetLiveByTileTx(tx, tileID)
		if err != nil {
			return err
		}
		if b != nil {
			bt, ok := types[b.TypeID]
			if !ok || !bt.VisualOnly {
				return domain.E(domain.KindPreconditionFailed, "sell or demolish the building first")
			}
			if err := s.buildingRepo.DeleteVisualMarkerTx(tx, tileID); err != nil {
				return err
			}
		}

		price := int64(math.Floor(float64(landCost(rs, c.TierJoined, t.Terrain, 0)) * rs.StatePriceFraction))
		if err := s.worldRepo.SetOwnerTx(tx, tileID, ""); err != nil {
			return err
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, price); err != nil {
			return err
		}
		if err := s.appendTx(tx, "sell_land_to_state", c, tileID, "", price, ""); err != nil {
			return err
		}
		return s.finish(tx, c, rs, price, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListForSale publishes an asking price for an owned tile (and its building,
// when one stands on it).
func (s *Service) ListForSale(userID, companyID, tileID string, price int64) (*Result, error) {
	if price <= 0 {
		return nil, domain.E(domain.KindInvalidRequest, "asking price must be positive")
	}
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	types, err := s.buildingRepo.GetTypes()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, tileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindNotFound, "tile not found on your map")
		}
		if t.OwnerCompanyID != c.ID {
			return domain.E(domain.KindPreconditionFailed, "you do not own this tile")
		}
		if existing, err := s.marketRepo.GetActiveByTileTx(tx, tileID); err != nil {
			return err
		} else if existing != nil {
			return domain.E(domain.KindConflict, "tile is already listed")
		}

		buildingID := ""
		if b, err := s.buildingRepo.GetLiveByTileTx(tx, tileID); err != nil {
			return err
		} else if b != nil {
			bt, ok := types[b.TypeID]
			if ok && !bt.VisualOnly {
				buildingID = b.ID
			}
		}

		l := &domain.MarketListing{
			ID:              uuid.New().String(),
			MapID:           c.MapID,
			TileID:          tileID,
			BuildingID:      buildingID,
			SellerCompanyID: c.ID,
			AskingPrice:     price,
			Status:          domain.ListingActive,
			CreatedAt:       time.Now().Unix(),
		}
		if err := s.marketRepo.CreateTx(tx, l); err != nil {
			return err
		}
		if err := s.appendTx(tx, "list_for_sale", c, tileID, buildingID, price, ""); err != nil {
			return err
		}
		res.TargetID = l.ID
		return s.finish(tx, c, rs, 0, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelListing withdraws an active listing the actor published.
func (s *Service) CancelListing(userID, companyID, listingID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		l, err := s.marketRepo.GetByIDTx(tx, listingID)
		if err != nil {
			return err
		}
		if l == nil || l.Status != domain.ListingActive {
			return domain.E(domain.KindNotFound, "active listing not found")
		}
		if l.SellerCompanyID != c.ID {
			return domain.E(domain.KindForbidden, "listing belongs to another company")
		}
		if err := s.marketRepo.SetStatusTx(tx, listingID, domain.ListingCancelled); err != nil {
			return err
		}
		if err := s.appendTx(tx, "cancel_listing", c, l.TileID, l.BuildingID, 0, ""); err != nil {
			return err
		}
		return s.finish(tx, c, rs, 0, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// BuyListing atomically transfers cash to the seller and ownership to the
// buyer. The offered price must match the current asking price.
func (s *Service) BuyListing(userID, companyID, listingID string, offeredPrice int64) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		l, err := s.marketRepo.GetByIDTx(tx, listingID)
		if err != nil {
			return err
		}
		if l == nil || l.Status != domain.ListingActive {
			return domain.E(domain.KindNotFound, "active listing not found")
		}
		if l.MapID != c.MapID {
			return domain.E(domain.KindPreconditionFailed, "listing is on another map")
		}
		if l.SellerCompanyID == c.ID {
			return domain.E(domain.KindPreconditionFailed, "cannot buy your own listing")
		}
		if offeredPrice != l.AskingPrice {
			return domain.E(domain.KindPreconditionFailed,
				"price changed: asking is now %d", l.AskingPrice)
		}
		if c.Cash < l.AskingPrice {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", l.AskingPrice, c.Cash)
		}

		t, err := s.worldRepo.GetTileByIDTx(tx, l.TileID)
		if err != nil {
			return err
		}
		if t == nil || t.OwnerCompanyID != l.SellerCompanyID {
			return domain.E(domain.KindConflict, "listing is stale: seller no longer owns the tile")
		}

		if err := s.companies.AdjustCashTx(tx, c.ID, -l.AskingPrice); err != nil {
			return err
		}
		if err := s.companies.AdjustCashTx(tx, l.SellerCompanyID, l.AskingPrice); err != nil {
			return err
		}
		if err := s.worldRepo.SetOwnerTx(tx, l.TileID, c.ID); err != nil {
			return err
		}
		if l.BuildingID != "" {
			b, err := s.buildingRepo.GetByIDTx(tx, l.BuildingID)
			if err != nil {
				return err
			}
			if b == nil || b.Collapsed || b.CompanyID != l.SellerCompanyID {
				return domain.E(domain.KindConflict, "listing is stale: building changed hands")
			}
			if err := s.buildingRepo.SetOwnerTx(tx, l.BuildingID, c.ID); err != nil {
				return err
			}
		}
		if err := s.marketRepo.SetStatusTx(tx, listingID, domain.ListingSold); err != nil {
			return err
		}
		if err := s.appendTx(tx, "buy_listing", c, l.TileID, l.BuildingID, -l.AskingPrice, ""); err != nil {
			return err
		}
		seller := &domain.GameCompany{ID: l.SellerCompanyID, MapID: l.MapID}
		if err := s.appendTx(tx, "sell_listing", seller, l.TileID, l.BuildingID, l.AskingPrice, ""); err != nil {
			return err
		}
		res.TargetID = l.TileID
		return s.finish(tx, c, rs, -l.AskingPrice, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Demolish removes an owned building, leaving a demolished marker. The
// license slot frees up immediately.
func (s *Service) Demolish(userID, companyID, buildingID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		b, t, m, err := s.loadOwnedBuilding(tx, c, buildingID)
		if err != nil {
			return err
		}
		if listed, err := s.marketRepo.GetActiveByTileTx(tx, b.TileID); err != nil {
			return err
		} else if listed != nil {
			return domain.E(domain.KindPreconditionFailed, "cancel the market listing first")
		}

		if err := s.replaceWithMarker(tx, b, c.ID); err != nil {
			return err
		}
		if err := s.appendTx(tx, "demolish", c, b.TileID, b.ID, 0, ""); err != nil {
			return err
		}
		if err := s.buildingRepo.MarkDirtyAroundTx(tx, c.MapID, t.X, t.Y, m.Width, m.Height); err != nil {
			return err
		}
		return s.finish(tx, c, rs, 0, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Takeover seizes a building whose owner went inactive or let damage exceed
// the threshold. Cost is a fraction of current value and the action carries
// a cooldown.
func (s *Service) Takeover(ctx context.Context, userID, companyID, buildingID, message string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	modStatus := ""
	if message != "" {
		verdict := s.gate.Moderate(ctx, "takeover_message", message)
		if verdict.Verdict == moderation.VerdictRejected {
			return nil, domain.E(domain.KindPreconditionFailed, "message rejected by moderation")
		}
		modStatus = string(verdict.Verdict)
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}

		last, err := s.ledgerRepo.LastOfTypeTx(tx, c.ID, "takeover")
		if err != nil {
			return err
		}
		cooldown := int64(rs.TakeoverCooldownTicks) * int64(s.tickInterval.Seconds())
		if last > 0 && time.Now().Unix()-last < cooldown {
			return domain.E(domain.KindPreconditionFailed, "takeover cooldown active")
		}

		b, err := s.buildingRepo.GetByIDTx(tx, buildingID)
		if err != nil {
			return err
		}
		if b == nil || b.Collapsed {
			return domain.E(domain.KindNotFound, "building not found")
		}
		if b.CompanyID == "" || b.CompanyID == c.ID {
			return domain.E(domain.KindPreconditionFailed, "building is not takeable")
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, b.TileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindPreconditionFailed, "building is on another map")
		}

		owner, err := s.companies.GetByIDTx(tx, b.CompanyID)
		if err != nil {
			return err
		}
		if owner == nil {
			return domain.E(domain.KindInternal, "building owner missing")
		}
		if !owner.Inactive && b.Damage < rs.TakeoverDamageThreshold {
			return domain.E(domain.KindPreconditionFailed,
				"owner is active and damage is below %.0f%%", rs.TakeoverDamageThreshold)
		}

		cost := int64(math.Floor(float64(b.CalculatedValue) * rs.TakeoverCostFactor))
		if c.Cash < cost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", cost, c.Cash)
		}

		if err := s.companies.AdjustCashTx(tx, c.ID, -cost); err != nil {
			return err
		}
		if err := s.worldRepo.SetOwnerTx(tx, b.TileID, c.ID); err != nil {
			return err
		}
		if err := s.buildingRepo.SetOwnerTx(tx, b.ID, c.ID); err != nil {
			return err
		}

		details := ""
		if message != "" {
			raw, err := json.Marshal(map[string]string{"message": message, "moderation": modStatus})
			if err != nil {
				return fmt.Errorf("failed to encode takeover details: %w", err)
			}
			details = string(raw)
		}
		if err := s.appendTx(tx, "takeover", c, b.TileID, b.ID, -cost, details); err != nil {
			return err
		}
		m, err := s.worldRepo.GetMap(c.MapID)
		if err != nil {
			return err
		}
		if err := s.buildingRepo.MarkDirtyAroundTx(tx, c.MapID, t.X, t.Y, m.Width, m.Height); err != nil {
			return err
		}
		res.TargetID = b.ID
		return s.finish(tx, c, rs, -cost, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PurchaseSecurity installs or upgrades the guard layer on an owned building.
func (s *Service) PurchaseSecurity(userID, companyID, buildingID string, level int) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	if level < 1 || level > len(rs.SecurityLevels) {
		return nil, domain.E(domain.KindInvalidRequest,
			"security level must be between 1 and %d", len(rs.SecurityLevels))
	}
	spec := rs.SecurityLevels[level-1]

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		b, _, _, err := s.loadOwnedBuilding(tx, c, buildingID)
		if err != nil {
			return err
		}
		existing, err := s.buildingRepo.GetSecurityTx(tx, buildingID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Level >= level {
			return domain.E(domain.KindPreconditionFailed,
				"building already has security level %d", existing.Level)
		}
		if c.Cash < spec.InstallCost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", spec.InstallCost, c.Cash)
		}

		sec := &domain.BuildingSecurity{
			ID:         uuid.New().String(),
			BuildingID: b.ID,
			Level:      level,
			Upkeep:     spec.Upkeep,
			Resistance: spec.Resistance,
			CreatedAt:  time.Now().Unix(),
		}
		if existing != nil {
			sec.ID = existing.ID
			sec.CreatedAt = existing.CreatedAt
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, -spec.InstallCost); err != nil {
			return err
		}
		if err := s.buildingRepo.UpsertSecurityTx(tx, sec); err != nil {
			return err
		}
		if err := s.appendTx(tx, "purchase_security", c, b.TileID, b.ID, -spec.InstallCost, ""); err != nil {
			return err
		}
		return s.finish(tx, c, rs, -spec.InstallCost, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveSecurity detaches the guard layer, stopping its upkeep.
func (s *Service) RemoveSecurity(userID, companyID, buildingID string) (*Result, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.loadActor(tx, userID, companyID)
		if err != nil {
			return err
		}
		b, _, _, err := s.loadOwnedBuilding(tx, c, buildingID)
		if err != nil {
			return err
		}
		existing, err := s.buildingRepo.GetSecurityTx(tx, buildingID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.E(domain.KindPreconditionFailed, "building has no security")
		}
		if err := s.buildingRepo.DeleteSecurityTx(tx, buildingID); err != nil {
			return err
		}
		if err := s.appendTx(tx, "remove_security", c, b.TileID, b.ID, 0, ""); err != nil {
			return err
		}
		return s.finish(tx, c, rs, 0, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// loadOwnedBuilding loads a live, non-visual building the actor owns, plus
// its tile and map.
func (s *Service) loadOwnedBuilding(tx *sql.Tx, c *domain.GameCompany, buildingID string) (*domain.BuildingInstance, *domain.Tile, *domain.Map, error) {
	b, err := s.buildingRepo.GetByIDTx(tx, buildingID)
	if err != nil {
		return nil, nil, nil, err
	}
	if b == nil || b.Collapsed {
		return nil, nil, nil, domain.E(domain.KindNotFound, "building not found")
	}
	if b.CompanyID != c.ID {
		return nil, nil, nil, domain.E(domain.KindForbidden, "building belongs to another company")
	}
	btype, err := s.buildingRepo.GetType(b.TypeID)
	if err != nil {
		return nil, nil, nil, err
	}
	if btype != nil && btype.VisualOnly {
		return nil, nil, nil, domain.E(domain.KindPreconditionFailed, "not an operable building")
	}
	t, err := s.worldRepo.GetTileByIDTx(tx, b.TileID)
	if err != nil {
		return nil, nil, nil, err
	}
	if t == nil || t.MapID != c.MapID {
		return nil, nil, nil, domain.E(domain.KindPreconditionFailed, "building is on another map")
	}
	m, err := s.worldRepo.GetMap(t.MapID)
	if err != nil {
		return nil, nil, nil, err
	}
	if m == nil {
		return nil, nil, nil, domain.E(domain.KindInternal, "map missing for tile")
	}
	return b, t, m, nil
}

// replaceWithMarker swaps a live building for a visual-only demolished site.
func (s *Service) replaceWithMarker(tx *sql.Tx, b *domain.BuildingInstance, companyID string) error {
	if err := s.buildingRepo.DeleteTx(tx, b.ID); err != nil {
		return err
	}
	marker := buildings.NewVisualMarker(uuid.New().String(), b.TileID, domain.BuildingDemolished, companyID)
	return s.buildingRepo.InsertTx(tx, marker)
}

// snapshotInputs loads the engine inputs for one map.
func (s *Service) snapshotInputs(mapID string) (*domain.Map, []domain.Tile, []domain.BuildingInstance, error) {
	m, err := s.worldRepo.GetMap(mapID)
	if err != nil {
		return nil, nil, nil, err
	}
	if m == nil {
		return nil, nil, nil, domain.E(domain.KindNotFound, "map not found")
	}
	tiles, err := s.worldRepo.GetTiles(mapID)
	if err != nil {
		return nil, nil, nil, err
	}
	instances, err := s.buildingRepo.ListByMap(mapID)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, tiles, instances, nil
}
