package attacks

import (
	"context"
	"database/sql"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

// Service executes tricks and their cleanup operations.
type Service struct {
	db           *sql.DB
	repo         *Repository
	companies    *company.Repository
	worldRepo    *world.Repository
	buildingRepo *buildings.Repository
	ledgerRepo   *ledger.Repository
	rulesRepo    *rules.Repository
	gate         moderation.Gate
	tickInterval time.Duration

	// detectRoll is the detection die; tests pin it.
	detectRoll func() float64

	log zerolog.Logger
}

// NewService creates a new attack service.
func NewService(db *sql.DB, repo *Repository, companies *company.Repository,
	worldRepo *world.Repository, buildingRepo *buildings.Repository,
	ledgerRepo *ledger.Repository, rulesRepo *rules.Repository,
	gate moderation.Gate, tickInterval time.Duration, log zerolog.Logger) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		companies:    companies,
		worldRepo:    worldRepo,
		buildingRepo: buildingRepo,
		ledgerRepo:   ledgerRepo,
		rulesRepo:    rulesRepo,
		gate:         gate,
		tickInterval: tickInterval,
		detectRoll:   rand.Float64,
		log:          log.With().Str("service", "attacks").Logger(),
	}
}

// AttackResult reports the outcome of one trick.
type AttackResult struct {
	AttackID  string  `json:"attack_id"`
	Detected  bool    `json:"detected"`
	Fine      int64   `json:"fine,omitempty"`
	Damage    float64 `json:"damage"`
	Collapsed bool    `json:"collapsed"`
	Cash      int64   `json:"cash"`
}

// Attack runs one trick against a building: cost, detection, damage against
// security, collapse, overlay, and the moderated message.
func (s *Service) Attack(ctx context.Context, userID, companyID, buildingID, trick, message string) (*AttackResult, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	spec, ok := rs.Tricks[trick]
	if !ok {
		return nil, domain.E(domain.KindInvalidRequest, "unknown trick %q", trick)
	}

	// Moderation runs before the transaction; rejection kills the attack.
	modStatus := domain.ModerationApproved
	if message != "" {
		verdict := s.gate.Moderate(ctx, "attack_message", message)
		switch verdict.Verdict {
		case moderation.VerdictRejected:
			return nil, domain.E(domain.KindPreconditionFailed, "message rejected by moderation")
		case moderation.VerdictPending:
			modStatus = domain.ModerationPending
		}
	}

	res := &AttackResult{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, err := s.companies.GetByIDTx(tx, companyID)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.E(domain.KindNotFound, "company not found")
		}
		if c.UserID != userID {
			return domain.E(domain.KindForbidden, "company belongs to another user")
		}
		if c.MapID == "" {
			return domain.E(domain.KindPreconditionFailed, "company is not on a map")
		}
		if c.InPrison {
			return domain.E(domain.KindPreconditionFailed, "fine must be paid first")
		}

		b, err := s.buildingRepo.GetByIDTx(tx, buildingID)
		if err != nil {
			return err
		}
		if b == nil || b.Collapsed {
			return domain.E(domain.KindNotFound, "building not found")
		}
		if b.CompanyID == c.ID {
			return domain.E(domain.KindPreconditionFailed, "cannot attack your own building")
		}
		t, err := s.worldRepo.GetTileByIDTx(tx, b.TileID)
		if err != nil {
			return err
		}
		if t == nil || t.MapID != c.MapID {
			return domain.E(domain.KindPreconditionFailed, "target is on another map")
		}

		last, err := s.repo.LastByAttackerTrickTx(tx, c.ID, trick)
		if err != nil {
			return err
		}
		cooldown := int64(spec.CooldownTicks) * int64(s.tickInterval.Seconds())
		if last > 0 && time.Now().Unix()-last < cooldown {
			return domain.E(domain.KindPreconditionFailed, "%s is on cooldown", trick)
		}

		if c.Cash < spec.Cost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", spec.Cost, c.Cash)
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, -spec.Cost); err != nil {
			return err
		}
		cashDelta := -spec.Cost

		detected := s.detectRoll() < spec.DetectionProb
		var fine int64
		if detected {
			fine = int64(math.Floor(float64(spec.Cost) * spec.FineFactor))
			if err := s.companies.ImprisonTx(tx, c.ID, fine); err != nil {
				return err
			}
		}

		// Security soaks a fraction of the damage
		resistance := 0.0
		if sec, err := s.buildingRepo.GetSecurityTx(tx, buildingID); err != nil {
			return err
		} else if sec != nil {
			resistance = sec.Resistance
		}
		inflicted := spec.BaseDamage * (1 - resistance)
		newDamage := b.Damage + inflicted
		if newDamage > 100 {
			newDamage = 100
		}

		overlay := b.Overlay
		if spec.Overlay != "" {
			overlay = spec.Overlay
		}
		burning := b.Burning || spec.SetsBurning

		if err := s.buildingRepo.ApplyDamageTx(tx, buildingID, newDamage, overlay, burning); err != nil {
			return err
		}

		collapsed := newDamage >= 100
		if collapsed {
			if err := s.buildingRepo.CollapseTx(tx, buildingID); err != nil {
				return err
			}
			m, err := s.worldRepo.GetMap(c.MapID)
			if err != nil {
				return err
			}
			if err := s.buildingRepo.MarkDirtyAroundTx(tx, c.MapID, t.X, t.Y, m.Width, m.Height); err != nil {
				return err
			}
		}

		a := &domain.Attack{
			ID:                uuid.New().String(),
			AttackerCompanyID: c.ID,
			BuildingID:        buildingID,
			Trick:             trick,
			Message:           message,
			ModerationStatus:  modStatus,
			Detected:          detected,
			CreatedAt:         time.Now().Unix(),
		}
		if err := s.repo.InsertTx(tx, a); err != nil {
			return err
		}
		if err := s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:         uuid.New().String(),
			Type:       "attack",
			CompanyID:  c.ID,
			MapID:      c.MapID,
			TileID:     b.TileID,
			BuildingID: buildingID,
			Amount:     -spec.Cost,
			Details:    trick,
			CreatedAt:  a.CreatedAt,
		}); err != nil {
			return err
		}
		if err := s.companies.RecordActionTx(tx, c.ID); err != nil {
			return err
		}

		res.AttackID = a.ID
		res.Detected = detected
		res.Fine = fine
		res.Damage = newDamage
		res.Collapsed = collapsed
		res.Cash = c.Cash + cashDelta
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("company_id", companyID).Str("building_id", buildingID).
		Str("trick", trick).Bool("detected", res.Detected).Float64("damage", res.Damage).
		Msg("Attack executed")
	return res, nil
}

// CleanupResult reports the cost and resulting state of a cleanup action.
type CleanupResult struct {
	Cost   int64   `json:"cost"`
	Damage float64 `json:"damage"`
	Cash   int64   `json:"cash"`
}

// Extinguish puts out a fire. Damage stays; decay returns to the slower rate.
func (s *Service) Extinguish(userID, companyID, buildingID string) (*CleanupResult, error) {
	return s.cleanupOp(userID, companyID, buildingID, "extinguish",
		func(b *domain.BuildingInstance, rs *rules.Ruleset) (int64, float64, string, bool, bool, error) {
			if !b.Burning {
				return 0, 0, "", false, false, domain.E(domain.KindPreconditionFailed, "building is not burning")
			}
			cost := int64(math.Ceil(b.Damage)) * rs.RepairCostPerPoint / 2
			overlay := b.Overlay
			if overlay == "fire" {
				overlay = ""
			}
			return cost, b.Damage, overlay, false, false, nil
		})
}

// Cleanup clears a trick overlay (rubble, vermin) without touching damage.
func (s *Service) Cleanup(userID, companyID, buildingID string) (*CleanupResult, error) {
	return s.cleanupOp(userID, companyID, buildingID, "cleanup",
		func(b *domain.BuildingInstance, rs *rules.Ruleset) (int64, float64, string, bool, bool, error) {
			if b.Overlay == "" || b.Overlay == "fire" {
				return 0, 0, "", false, false, domain.E(domain.KindPreconditionFailed, "nothing to clean up")
			}
			cost := rs.RepairCostPerPoint * 5
			return cost, b.Damage, "", b.Burning, false, nil
		})
}

// Repair restores a building to full health. Burning buildings must be
// extinguished first. Repairing a collapsed building revives it.
func (s *Service) Repair(userID, companyID, buildingID string) (*CleanupResult, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &CleanupResult{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, b, err := s.loadOwnerAndBuilding(tx, userID, companyID, buildingID, true)
		if err != nil {
			return err
		}
		if b.Burning {
			return domain.E(domain.KindPreconditionFailed, "extinguish the fire first")
		}
		if b.Damage <= 0 && !b.Collapsed {
			return domain.E(domain.KindPreconditionFailed, "building is not damaged")
		}

		damage := b.Damage
		if b.Collapsed {
			damage = 100
		}
		cost := int64(math.Ceil(damage)) * rs.RepairCostPerPoint
		if c.Cash < cost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", cost, c.Cash)
		}

		var tile *domain.Tile
		if b.Collapsed {
			t, err := s.worldRepo.GetTileByIDTx(tx, b.TileID)
			if err != nil {
				return err
			}
			tile = t
			btype, err := s.buildingRepo.GetType(b.TypeID)
			if err != nil {
				return err
			}
			// A collapsed building holds no license, so its slot may have
			// been rebuilt while it was down. Reviving must re-check the cap.
			if btype != nil && btype.Licensed() {
				count, err := s.buildingRepo.CountLicensedOnMapTx(tx, tile.MapID, b.TypeID)
				if err != nil {
					return err
				}
				if count >= btype.MaxPerMap {
					return domain.E(domain.KindPreconditionFailed, "license limit reached")
				}
			}
		}

		if err := s.companies.AdjustCashTx(tx, c.ID, -cost); err != nil {
			return err
		}
		if b.Collapsed {
			if _, err := tx.Exec(`
				UPDATE building_instances
				SET collapsed = 0, damage = 0, burning = 0, overlay = NULL,
					repairing = 0, needs_profit_recalc = 1
				WHERE id = ?
			`, buildingID); err != nil {
				return err
			}
			m, err := s.worldRepo.GetMap(tile.MapID)
			if err != nil {
				return err
			}
			if err := s.buildingRepo.MarkDirtyAroundTx(tx, tile.MapID, tile.X, tile.Y, m.Width, m.Height); err != nil {
				return err
			}
		} else {
			if err := s.buildingRepo.ClearConditionTx(tx, buildingID, 0, "", false, false); err != nil {
				return err
			}
		}
		if err := s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:         uuid.New().String(),
			Type:       "repair",
			CompanyID:  c.ID,
			MapID:      c.MapID,
			TileID:     b.TileID,
			BuildingID: buildingID,
			Amount:     -cost,
			CreatedAt:  time.Now().Unix(),
		}); err != nil {
			return err
		}
		if err := s.companies.RecordActionTx(tx, c.ID); err != nil {
			return err
		}

		res.Cost = cost
		res.Damage = 0
		res.Cash = c.Cash - cost
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cleanupOp is the shared shape of extinguish and cleanup.
func (s *Service) cleanupOp(userID, companyID, buildingID, txType string,
	compute func(*domain.BuildingInstance, *rules.Ruleset) (int64, float64, string, bool, bool, error)) (*CleanupResult, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}

	res := &CleanupResult{}
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		c, b, err := s.loadOwnerAndBuilding(tx, userID, companyID, buildingID, false)
		if err != nil {
			return err
		}
		cost, damage, overlay, burning, repairing, err := compute(b, rs)
		if err != nil {
			return err
		}
		if c.Cash < cost {
			return domain.E(domain.KindPreconditionFailed,
				"insufficient cash (%d needed, %d available)", cost, c.Cash)
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, -cost); err != nil {
			return err
		}
		if err := s.buildingRepo.ClearConditionTx(tx, buildingID, damage, overlay, burning, repairing); err != nil {
			return err
		}
		if err := s.ledgerRepo.AppendTx(tx, &domain.Transaction{
			ID:         uuid.New().String(),
			Type:       txType,
			CompanyID:  c.ID,
			MapID:      c.MapID,
			TileID:     b.TileID,
			BuildingID: buildingID,
			Amount:     -cost,
			CreatedAt:  time.Now().Unix(),
		}); err != nil {
			return err
		}
		if err := s.companies.RecordActionTx(tx, c.ID); err != nil {
			return err
		}
		res.Cost = cost
		res.Damage = damage
		res.Cash = c.Cash - cost
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// loadOwnerAndBuilding gates the owner for a cleanup action. allowCollapsed
// lets Repair operate on collapsed buildings.
func (s *Service) loadOwnerAndBuilding(tx *sql.Tx, userID, companyID, buildingID string, allowCollapsed bool) (*domain.GameCompany, *domain.BuildingInstance, error) {
	c, err := s.companies.GetByIDTx(tx, companyID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, domain.E(domain.KindNotFound, "company not found")
	}
	if c.UserID != userID {
		return nil, nil, domain.E(domain.KindForbidden, "company belongs to another user")
	}
	if c.InPrison {
		return nil, nil, domain.E(domain.KindPreconditionFailed, "fine must be paid first")
	}

	b, err := s.buildingRepo.GetByIDTx(tx, buildingID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil || (b.Collapsed && !allowCollapsed) {
		return nil, nil, domain.E(domain.KindNotFound, "building not found")
	}
	if b.CompanyID != c.ID {
		return nil, nil, domain.E(domain.KindForbidden, "building belongs to another company")
	}
	return c, b, nil
}

// ApproveMessage records an admin verdict on a pending attack message.
func (s *Service) ApproveMessage(attackID string, approve bool) error {
	status := domain.ModerationApproved
	if !approve {
		status = domain.ModerationRejected
	}
	return s.repo.SetModerationStatus(attackID, status)
}

// PendingMessages lists attack messages awaiting an admin verdict.
func (s *Service) PendingMessages(limit int) ([]domain.Attack, error) {
	return s.repo.ListPending(limit)
}

// VisibleMessages lists approved attack messages on a building.
func (s *Service) VisibleMessages(buildingID string) ([]domain.Attack, error) {
	return s.repo.ListVisibleByBuilding(buildingID)
}
