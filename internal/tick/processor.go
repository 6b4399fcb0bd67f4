// Package tick advances the game world on the cron cadence: profit
// recalculation, earnings, decay, collapse, inactivity, hero eligibility
// and statistics, per active map in that order.
package tick

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/engine"
	"github.com/skourtis/boomtown/internal/metrics"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

// claimStaleAfter is how long a map claim survives a crashed invocation.
const claimStaleAfter = 15 * time.Minute

// Processor runs one tick across every active map. It is idempotent with
// respect to the tick boundary: re-running for an already-applied tick is a
// no-op per building, and per-map claims forbid overlapping invocations.
type Processor struct {
	db           *sql.DB
	worldRepo    *world.Repository
	buildingRepo *buildings.Repository
	companies    *company.Repository
	rulesRepo    *rules.Repository
	workers      int
	instanceID   string
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewProcessor creates a tick processor with a bounded cross-map fan-out.
func NewProcessor(db *sql.DB, worldRepo *world.Repository, buildingRepo *buildings.Repository,
	companies *company.Repository, rulesRepo *rules.Repository, workers int,
	log zerolog.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		db:           db,
		worldRepo:    worldRepo,
		buildingRepo: buildingRepo,
		companies:    companies,
		rulesRepo:    rulesRepo,
		workers:      workers,
		instanceID:   uuid.New().String(),
		log:          log.With().Str("component", "tick").Logger(),
	}
}

// Instrument attaches Prometheus collectors. Optional; nil means no metrics.
func (p *Processor) Instrument(m *metrics.Metrics) { p.metrics = m }

// Name identifies the job to the scheduler.
func (p *Processor) Name() string { return "tick" }

// Run executes one tick. Per-map failures are logged and do not abort
// sibling maps; cancellation is honored between maps.
func (p *Processor) Run() error {
	return p.RunContext(context.Background())
}

// RunContext is Run with caller-controlled cancellation.
func (p *Processor) RunContext(ctx context.Context) error {
	tickTS := time.Now().Unix()
	rs, err := p.rulesRepo.Get()
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}
	types, err := p.buildingRepo.GetTypes()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	maps, err := p.worldRepo.ListActiveMaps()
	if err != nil {
		return fmt.Errorf("failed to list maps: %w", err)
	}

	start := time.Now()
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex

	for i := range maps {
		if ctx.Err() != nil {
			break
		}
		m := maps[i]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.tickMap(&m, rs, types, tickTS); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				p.log.Error().Err(err).Str("map_id", m.ID).Msg("Tick failed for map")
			}
		}()
	}
	wg.Wait()

	if p.metrics != nil {
		p.metrics.TickDuration.Observe(time.Since(start).Seconds())
		p.metrics.TickMaps.Set(float64(len(maps)))
		p.metrics.TickFailures.Add(float64(failed))
	}

	p.log.Info().
		Int("maps", len(maps)).
		Int64("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Tick completed")
	return nil
}

// tickMap claims one map, runs all passes in a single transaction, then
// advances the tick marker and releases the claim.
func (p *Processor) tickMap(m *domain.Map, rs *rules.Ruleset, types map[string]domain.BuildingType, tickTS int64) error {
	claimed, err := p.claimMap(m.ID, tickTS)
	if err != nil {
		return err
	}
	if !claimed {
		p.log.Debug().Str("map_id", m.ID).Msg("Map already claimed or ticked, skipping")
		return nil
	}
	defer p.releaseMap(m.ID)

	err = database.WithTransaction(p.db, func(tx *sql.Tx) error {
		if err := p.runPasses(tx, m, rs, types, tickTS); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE map_tick_state SET last_tick_ts = ? WHERE map_id = ?`, tickTS, m.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("map %s: %w", m.ID, err)
	}
	return nil
}

// claimMap takes the per-map advisory lock and checks the idempotence
// boundary. Stale claims from crashed invocations are stolen.
func (p *Processor) claimMap(mapID string, tickTS int64) (bool, error) {
	now := time.Now().Unix()
	stale := now - int64(claimStaleAfter.Seconds())
	res, err := p.db.Exec(`
		UPDATE map_tick_state
		SET claimed_by = ?, claimed_at = ?
		WHERE map_id = ? AND last_tick_ts < ?
		AND (claimed_by IS NULL OR claimed_at < ?)
	`, p.instanceID, now, mapID, tickTS, stale)
	if err != nil {
		return false, fmt.Errorf("failed to claim map: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm claim: %w", err)
	}
	return n > 0, nil
}

func (p *Processor) releaseMap(mapID string) {
	if _, err := p.db.Exec(`
		UPDATE map_tick_state SET claimed_by = NULL, claimed_at = NULL
		WHERE map_id = ? AND claimed_by = ?
	`, mapID, p.instanceID); err != nil {
		p.log.Error().Err(err).Str("map_id", mapID).Msg("Failed to release map claim")
	}
}

// runPasses executes the seven passes for one map inside one transaction.
// State is loaded once at tick start; later passes see earlier passes'
// effects through the in-memory working set.
func (p *Processor) runPasses(tx *sql.Tx, m *domain.Map, rs *rules.Ruleset, types map[string]domain.BuildingType, tickTS int64) error {
	tiles, err := p.worldRepo.GetTilesTx(tx, m.ID)
	if err != nil {
		return err
	}
	instances, err := p.buildingRepo.ListByMapTx(tx, m.ID)
	if err != nil {
		return err
	}
	security, err := p.buildingRepo.ListSecurityByMapTx(tx, m.ID)
	if err != nil {
		return err
	}
	companies, err := p.companies.ListByMapTx(tx, m.ID)
	if err != nil {
		return err
	}

	tileByID := make(map[string]*domain.Tile, len(tiles))
	for i := range tiles {
		tileByID[tiles[i].ID] = &tiles[i]
	}

	// Pass 1: recalculation. The snapshot excludes collapsed buildings so
	// dirty neighbors evaluate against what actually stands.
	live := make([]domain.BuildingInstance, 0, len(instances))
	for _, b := range instances {
		if !b.Collapsed {
			live = append(live, b)
		}
	}
	snap := engine.NewSnapshot(*m, tiles, live, types)
	for i := range instances {
		b := &instances[i]
		if b.Collapsed || !b.NeedsProfitRecalc {
			continue
		}
		bt, ok := types[b.TypeID]
		if !ok || bt.VisualOnly {
			// Markers carry no economics; just clear the flag
			if err := p.buildingRepo.UpdateEvaluationTx(tx, b.ID, 0, 0, ""); err != nil {
				return err
			}
			b.NeedsProfitRecalc = false
			continue
		}
		t, ok := tileByID[b.TileID]
		if !ok {
			continue
		}
		profit, value, bd := engine.Evaluate(*t, bt, snap, rs)
		raw, err := json.Marshal(bd)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}
		if err := p.buildingRepo.UpdateEvaluationTx(tx, b.ID, profit, value, string(raw)); err != nil {
			return err
		}
		b.CalculatedProfit = profit
		b.CalculatedValue = value
		b.NeedsProfitRecalc = false
	}

	cashByCompany := make(map[string]int64, len(companies))
	for _, c := range companies {
		cashByCompany[c.ID] = c.Cash
	}
	earned := make(map[string]int64)

	taxRate := rs.TaxRate[m.Tier]

	// Pass 2: earnings. The last_tick_applied marker makes re-runs no-ops.
	for i := range instances {
		b := &instances[i]
		if b.Collapsed || b.CompanyID == "" || b.LastTickApplied >= tickTS {
			continue
		}
		bt, ok := types[b.TypeID]
		if !ok || bt.VisualOnly {
			continue
		}

		upkeep := int64(0)
		if sec, ok := security[b.ID]; ok {
			upkeep = sec.Upkeep
		}
		net := int64(math.Floor(float64(b.CalculatedProfit)*(1-b.Damage/100))) - upkeep
		credit := net
		if net > 0 {
			credit = int64(math.Floor(float64(net) * (1 - taxRate)))
		}
		// Upkeep may push cash negative but never below zero overall
		if credit < 0 {
			if have := cashByCompany[b.CompanyID]; have+credit < 0 {
				credit = -have
			}
		}
		earned[b.CompanyID] += credit
		cashByCompany[b.CompanyID] += credit

		if err := p.buildingRepo.SetLastTickAppliedTx(tx, b.ID, tickTS); err != nil {
			return err
		}
		b.LastTickApplied = tickTS
	}
	for companyID, delta := range earned {
		if delta == 0 {
			continue
		}
		if err := p.companies.AdjustCashTx(tx, companyID, delta); err != nil {
			return err
		}
	}

	// Passes 3 and 4: decay then collapse. Damaged things get worse.
	for i := range instances {
		b := &instances[i]
		if b.Collapsed || b.Damage <= 0 || b.Repairing {
			continue
		}
		factor := rs.DecayFactorDamaged
		if b.Burning {
			factor = rs.DecayFactorBurning
		}
		delta := math.Ceil(b.Damage * factor)
		newDamage := b.Damage + delta
		if newDamage > 100 {
			newDamage = 100
		}
		if err := p.buildingRepo.ApplyDamageTx(tx, b.ID, newDamage, b.Overlay, b.Burning); err != nil {
			return err
		}
		b.Damage = newDamage

		if newDamage >= 100 {
			if err := p.buildingRepo.CollapseTx(tx, b.ID); err != nil {
				return err
			}
			b.Collapsed = true
			if t, ok := tileByID[b.TileID]; ok {
				if err := p.buildingRepo.MarkDirtyAroundTx(tx, m.ID, t.X, t.Y, m.Width, m.Height); err != nil {
					return err
				}
			}
		}
	}

	// Pass 5: inactivity.
	if err := p.companies.IncrementInactivityTx(tx, m.ID, rs.InactivityThreshold); err != nil {
		return err
	}

	// Passes 6 and 7: hero eligibility is derivable from the statistics
	// snapshot; the snapshot is the stored artifact.
	ownedTiles := make(map[string]int)
	for i := range tiles {
		if tiles[i].OwnerCompanyID != "" {
			ownedTiles[tiles[i].OwnerCompanyID]++
		}
	}
	totalTiles := float64(m.Width * m.Height)

	for _, c := range companies {
		var profits []float64
		var valueSum int64
		buildingCount := 0
		for i := range instances {
			b := &instances[i]
			if b.CompanyID != c.ID || b.Collapsed {
				continue
			}
			bt, ok := types[b.TypeID]
			if !ok || bt.VisualOnly {
				continue
			}
			buildingCount++
			valueSum += b.CalculatedValue
			profits = append(profits, float64(b.CalculatedProfit))
		}

		mean, stddev := 0.0, 0.0
		if len(profits) > 0 {
			mean = stat.Mean(profits, nil)
		}
		if len(profits) > 1 {
			stddev = stat.StdDev(profits, nil)
		}

		cash := cashByCompany[c.ID]
		landPct := 0.0
		if totalTiles > 0 {
			landPct = float64(ownedTiles[c.ID]) / totalTiles
		}
		stats := &domain.CompanyStatistics{
			CompanyID:    c.ID,
			MapID:        m.ID,
			TickTS:       tickTS,
			NetWorth:     cash + valueSum,
			Cash:         cash,
			LandPct:      landPct,
			Buildings:    buildingCount,
			ProfitMean:   mean,
			ProfitStddev: stddev,
		}
		if err := p.companies.UpsertStatisticsTx(tx, stats); err != nil {
			return err
		}

		if stats.NetWorth >= m.HeroNetWorth && cash >= m.HeroCash && landPct >= m.HeroLandPct && !c.Inactive {
			p.log.Info().Str("company_id", c.ID).Str("map_id", m.ID).
				Msg("Company is hero-eligible")
		}
	}

	return nil
}
