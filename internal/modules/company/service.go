package company

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

// StartingCash maps a tier to the cash granted on joining a map of that tier.
type StartingCash map[domain.Tier]int64

// Service handles game-company lifecycle: creation, map membership, hero
// progression and fines.
type Service struct {
	db           *sql.DB
	repo         *Repository
	worldRepo    *world.Repository
	buildingRepo *buildings.Repository
	ledgerRepo   *ledger.Repository
	rulesRepo    *rules.Repository
	gate         moderation.Gate
	startingCash StartingCash
	log          zerolog.Logger
}

// NewService creates a new company service.
func NewService(db *sql.DB, repo *Repository, worldRepo *world.Repository,
	buildingRepo *buildings.Repository, ledgerRepo *ledger.Repository,
	rulesRepo *rules.Repository, gate moderation.Gate, startingCash StartingCash,
	log zerolog.Logger) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		worldRepo:    worldRepo,
		buildingRepo: buildingRepo,
		ledgerRepo:   ledgerRepo,
		rulesRepo:    rulesRepo,
		gate:         gate,
		startingCash: startingCash,
		log:          log.With().Str("service", "company").Logger(),
	}
}

// Create makes a new game company for a user. Both names block on a
// definitive moderation verdict and are immutable afterwards.
func (s *Service) Create(ctx context.Context, userID, name, bossName string) (*domain.GameCompany, error) {
	name = strings.TrimSpace(name)
	bossName = strings.TrimSpace(bossName)
	if name == "" || bossName == "" {
		return nil, domain.E(domain.KindInvalidRequest, "company name and boss name are required")
	}
	if len(name) > 40 || len(bossName) > 40 {
		return nil, domain.E(domain.KindInvalidRequest, "names must be 40 characters or fewer")
	}

	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	if count >= rs.MaxCompaniesPerUser {
		return nil, domain.E(domain.KindPreconditionFailed,
			"company limit reached (%d per user)", rs.MaxCompaniesPerUser)
	}

	taken, err := s.repo.NameExists(name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.E(domain.KindConflict, "company name already taken")
	}

	if err := s.gate.ModerateName(ctx, "company_name", name); err != nil {
		return nil, err
	}
	if err := s.gate.ModerateName(ctx, "boss_name", bossName); err != nil {
		return nil, err
	}

	c := &domain.GameCompany{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		BossName:  bossName,
		Level:     1,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.repo.Create(c); err != nil {
		return nil, err
	}

	s.log.Info().Str("company_id", c.ID).Str("user_id", userID).Msg("Company created")
	return c, nil
}

// Get returns a company owned by the given user.
func (s *Service) Get(userID, companyID string) (*domain.GameCompany, error) {
	c, err := s.repo.GetByID(companyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.E(domain.KindNotFound, "company not found")
	}
	if c.UserID != userID {
		return nil, domain.E(domain.KindForbidden, "company belongs to another user")
	}
	return c, nil
}

// List returns all companies a user owns.
func (s *Service) List(userID string) ([]domain.GameCompany, error) {
	return s.repo.ListByUser(userID)
}

// JoinMap places a company on a map. Towns are open to everyone; higher
// tiers require the unlock earned by heroing out of the tier below.
func (s *Service) JoinMap(userID, companyID, mapID string) (*domain.GameCompany, error) {
	c, err := s.Get(userID, companyID)
	if err != nil {
		return nil, err
	}
	if c.MapID != "" {
		return nil, domain.E(domain.KindPreconditionFailed, "company is already on a map")
	}
	if c.InPrison {
		return nil, domain.E(domain.KindPreconditionFailed, "fine must be paid first")
	}

	m, err := s.worldRepo.GetMap(mapID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Active {
		return nil, domain.E(domain.KindNotFound, "map not found")
	}

	if m.Tier != domain.TierTown {
		unlocked, err := s.repo.HasTierUnlock(companyID, m.Tier)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			return nil, domain.E(domain.KindPreconditionFailed, "tier locked: hero out of the previous tier first")
		}
	}

	cash, ok := s.startingCash[m.Tier]
	if !ok {
		return nil, domain.E(domain.KindInternal, "no starting cash configured for tier %s", m.Tier)
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.JoinMapTx(tx, companyID, mapID, m.Tier, cash); err != nil {
			return err
		}
		if err := s.repo.UpsertStatisticsTx(tx, &domain.CompanyStatistics{
			CompanyID: companyID,
			MapID:     mapID,
			Cash:      cash,
			NetWorth:  cash,
		}); err != nil {
			return err
		}
		return s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:        uuid.New().String(),
			Type:      "join_map",
			CompanyID: companyID,
			MapID:     mapID,
			Amount:    cash,
			CreatedAt: time.Now().Unix(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("company_id", companyID).Str("map_id", mapID).
		Str("tier", string(m.Tier)).Msg("Company joined map")
	return s.repo.GetByID(companyID)
}

// LeaveMap removes a company from its map, forfeiting cash and all holdings
// there. Tiles are released and the company's buildings deleted.
func (s *Service) LeaveMap(userID, companyID string) error {
	c, err := s.Get(userID, companyID)
	if err != nil {
		return err
	}
	if c.MapID == "" {
		return domain.E(domain.KindPreconditionFailed, "company is not on a map")
	}
	mapID := c.MapID

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM building_instances
			WHERE company_id = ? AND tile_id IN (SELECT id FROM tiles WHERE map_id = ?)
		`, companyID, mapID); err != nil {
			return fmt.Errorf("failed to remove buildings: %w", err)
		}
		if err := s.worldRepo.ReleaseCompanyTilesTx(tx, companyID, mapID); err != nil {
			return err
		}
		if err := s.repo.LeaveMapTx(tx, companyID); err != nil {
			return err
		}
		return s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:        uuid.New().String(),
			Type:      "leave_map",
			CompanyID: companyID,
			MapID:     mapID,
			Amount:    -c.Cash,
			CreatedAt: time.Now().Unix(),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("company_id", companyID).Str("map_id", mapID).Msg("Company left map")
	return nil
}

// HeroOutResult is the outcome of a successful hero-out.
type HeroOutResult struct {
	UnlockedTier domain.Tier `json:"unlocked_tier"`
	NetWorth     int64       `json:"net_worth"`
	Cash         int64       `json:"cash"`
	LandPct      float64     `json:"land_pct"`
}

// HeroOut graduates a company out of its current tier when all three hero
// thresholds hold. It grants the next tier's unlock and detaches the company
// from the map; cash and holdings are forfeited like a leave.
func (s *Service) HeroOut(userID, companyID string) (*HeroOutResult, error) {
	c, err := s.Get(userID, companyID)
	if err != nil {
		return nil, err
	}
	if c.MapID == "" {
		return nil, domain.E(domain.KindPreconditionFailed, "company is not on a map")
	}
	if c.InPrison {
		return nil, domain.E(domain.KindPreconditionFailed, "fine must be paid first")
	}
	if c.Inactive {
		return nil, domain.E(domain.KindPreconditionFailed, "inactive companies cannot hero out")
	}

	m, err := s.worldRepo.GetMap(c.MapID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.E(domain.KindNotFound, "map not found")
	}
	next := domain.NextTier(m.Tier)
	if next == "" {
		return nil, domain.E(domain.KindPreconditionFailed, "there is no tier above capital")
	}
	already, err := s.repo.HasTierUnlock(companyID, next)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, domain.E(domain.KindPreconditionFailed, "tier already unlocked")
	}

	netWorth, landPct, err := s.Worth(companyID, m)
	if err != nil {
		return nil, err
	}
	if netWorth < m.HeroNetWorth || c.Cash < m.HeroCash || landPct < m.HeroLandPct {
		return nil, domain.E(domain.KindPreconditionFailed,
			"hero thresholds not met (net worth %d/%d, cash %d/%d, land %.1f%%/%.1f%%)",
			netWorth, m.HeroNetWorth, c.Cash, m.HeroCash, landPct*100, m.HeroLandPct*100)
	}

	result := &HeroOutResult{UnlockedTier: next, NetWorth: netWorth, Cash: c.Cash, LandPct: landPct}
	mapID := c.MapID

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		if err := s.repo.GrantTierUnlockTx(tx, companyID, next, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			DELETE FROM building_instances
			WHERE company_id = ? AND tile_id IN (SELECT id FROM tiles WHERE map_id = ?)
		`, companyID, mapID); err != nil {
			return fmt.Errorf("failed to remove buildings: %w", err)
		}
		if err := s.worldRepo.ReleaseCompanyTilesTx(tx, companyID, mapID); err != nil {
			return err
		}
		if err := s.repo.LeaveMapTx(tx, companyID); err != nil {
			return err
		}

		details, err := json.Marshal(map[string]interface{}{
			"unlocked_tier": next,
			"net_worth":     netWorth,
			"land_pct":      landPct,
		})
		if err != nil {
			return fmt.Errorf("failed to encode hero details: %w", err)
		}
		return s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:        uuid.New().String(),
			Type:      "hero_out",
			CompanyID: companyID,
			MapID:     mapID,
			Details:   string(details),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("company_id", companyID).Str("unlocked_tier", string(next)).Msg("Company heroed out")
	return result, nil
}

// PayFine settles an imprisoned company's fine and restores action rights.
func (s *Service) PayFine(userID, companyID string) error {
	c, err := s.Get(userID, companyID)
	if err != nil {
		return err
	}
	if !c.InPrison {
		return domain.E(domain.KindPreconditionFailed, "company is not imprisoned")
	}
	if c.Cash < c.Fine {
		return domain.E(domain.KindPreconditionFailed,
			"insufficient cash to pay fine (%d needed)", c.Fine)
	}

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.AdjustCashTx(tx, companyID, -c.Fine); err != nil {
			return err
		}
		if err := s.repo.ReleaseTx(tx, companyID); err != nil {
			return err
		}
		return s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:        uuid.New().String(),
			Type:      "pay_fine",
			CompanyID: companyID,
			MapID:     c.MapID,
			Amount:    -c.Fine,
			CreatedAt: time.Now().Unix(),
		})
	})
}

// Worth computes a company's net worth (cash plus building valuations) and
// its land-ownership percentage on the given map.
func (s *Service) Worth(companyID string, m *domain.Map) (int64, float64, error) {
	c, err := s.repo.GetByID(companyID)
	if err != nil {
		return 0, 0, err
	}
	if c == nil {
		return 0, 0, domain.E(domain.KindNotFound, "company not found")
	}

	netWorth := c.Cash
	owned, err := s.buildingRepo.ListByCompany(companyID)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range owned {
		netWorth += b.CalculatedValue
	}

	tiles, err := s.worldRepo.CountOwnedTiles(m.ID, companyID)
	if err != nil {
		return 0, 0, err
	}
	total := m.Width * m.Height
	landPct := 0.0
	if total > 0 {
		landPct = float64(tiles) / float64(total)
	}
	return netWorth, landPct, nil
}

// Statistics returns the latest tick snapshot for a company on its map.
func (s *Service) Statistics(userID, companyID string) (*domain.CompanyStatistics, error) {
	c, err := s.Get(userID, companyID)
	if err != nil {
		return nil, err
	}
	if c.MapID == "" {
		return nil, domain.E(domain.KindPreconditionFailed, "company is not on a map")
	}
	stats, err := s.repo.GetStatistics(companyID, c.MapID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, domain.E(domain.KindNotFound, "no statistics yet")
	}
	return stats, nil
}
