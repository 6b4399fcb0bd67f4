package attacks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type attacksTestEnv struct {
	svc       *Service
	conn      *sql.DB
	companies *company.Repository
	buildings *buildings.Repository
	gate      *boomtest.MockGate
}

func newAttacksEnv(t *testing.T) *attacksTestEnv {
	t.Helper()
	db := boomtest.NewTestDB(t, "game")
	conn := db.Conn()
	log := zerolog.Nop()

	companyRepo := company.NewRepository(conn, log)
	worldRepo := world.NewRepository(conn, log)
	buildingRepo := buildings.NewRepository(conn, log)
	ledgerRepo := ledger.NewRepository(conn, log)
	rulesRepo := rules.NewRepository(conn, log)
	attackRepo := NewRepository(conn, log)
	require.NoError(t, rulesRepo.Seed())
	require.NoError(t, buildingRepo.SeedCatalog())

	gate := boomtest.AllowAll()
	// Zero tick interval keeps trick cooldowns out of the way
	svc := NewService(conn, attackRepo, companyRepo, worldRepo, buildingRepo,
		ledgerRepo, rulesRepo, gate, 0, log)

	return &attacksTestEnv{
		svc:       svc,
		conn:      conn,
		companies: companyRepo,
		buildings: buildingRepo,
		gate:      gate,
	}
}

// arena seeds a map, an attacker and a rival with one standing building.
func (e *attacksTestEnv) arena(t *testing.T, attackerCash int64) (*domain.GameCompany, *domain.BuildingInstance) {
	t.Helper()
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)

	attacker := &domain.GameCompany{Cash: attackerCash, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, attacker)

	rival := &domain.GameCompany{Cash: 100_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, rival.ID)
	b := &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: rival.ID,
		CalculatedProfit: 120, CalculatedValue: 2_000,
	}
	boomtest.InsertBuilding(t, e.conn, b)
	return attacker, b
}

func TestAttack_Undetected(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	res, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	require.NoError(t, err)

	assert.False(t, res.Detected)
	assert.Zero(t, res.Fine)
	assert.Equal(t, 10.0, res.Damage)
	assert.False(t, res.Collapsed)
	// Vandalism costs 500
	assert.Equal(t, int64(9_500), res.Cash)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Damage)
	assert.Equal(t, "rubble", b.Overlay)
}

func TestAttack_Detected(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.0 }

	res, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	require.NoError(t, err)

	assert.True(t, res.Detected)
	// Fine is cost times the trick's fine factor: 500 * 2.0
	assert.Equal(t, int64(1_000), res.Fine)

	got, err := e.companies.GetByID(attacker.ID)
	require.NoError(t, err)
	assert.True(t, got.InPrison)
	assert.Equal(t, int64(1_000), got.Fine)

	// Imprisoned attackers cannot act again
	_, err = e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "sabotage", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestAttack_SecurityResistance(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	// Level 2 security soaks half the damage
	_, err := e.conn.Exec(`INSERT INTO building_security
		(id, building_id, level, upkeep, resistance, created_at)
		VALUES ('sec1', ?, 2, 120, 0.5, ?)`, target.ID, time.Now().Unix())
	require.NoError(t, err)

	res, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Damage)
}

func TestAttack_CollapseAtFullDamage(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	_, err := e.conn.Exec(`UPDATE building_instances SET damage = 70 WHERE id = ?`, target.ID)
	require.NoError(t, err)

	// Arson inflicts 40: 70 + 40 clamps to 100 and collapses
	res, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "arson", "")
	require.NoError(t, err)
	assert.True(t, res.Collapsed)
	assert.Equal(t, 100.0, res.Damage)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.True(t, b.Collapsed)

	// A collapsed building is no longer a target
	_, err = e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestAttack_OwnBuilding(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	_, err := e.conn.Exec(`UPDATE building_instances SET company_id = ? WHERE id = ?`, attacker.ID, target.ID)
	require.NoError(t, err)

	_, err = e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestAttack_UnknownTrick(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)

	_, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "tickling", "")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestAttack_Cooldown(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }
	e.svc.tickInterval = time.Hour

	_, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	require.NoError(t, err)

	_, err = e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	// A different trick has its own cooldown track
	_, err = e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "sabotage", "")
	require.NoError(t, err)
}

func TestAttack_MessageModeration(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	e.gate.Verdict = moderation.VerdictRejected
	_, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "you stink")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	e.gate.Verdict = moderation.VerdictPending
	res, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "vandalism", "hello")
	require.NoError(t, err)

	// Pending messages sit in the admin queue, invisible on the building
	pending, err := e.svc.PendingMessages(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.AttackID, pending[0].ID)

	visible, err := e.svc.VisibleMessages(target.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)

	require.NoError(t, e.svc.ApproveMessage(res.AttackID, true))
	visible, err = e.svc.VisibleMessages(target.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestExtinguishAndRepair(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	_, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "arson", "")
	require.NoError(t, err)

	owner, err := e.companies.GetByID(target.CompanyID)
	require.NoError(t, err)

	// Repair refuses while the building burns
	_, err = e.svc.Repair(owner.UserID, owner.ID, target.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	res, err := e.svc.Extinguish(owner.UserID, owner.ID, target.ID)
	require.NoError(t, err)
	// Half rate on 40 damage points at 60 per point
	assert.Equal(t, int64(1_200), res.Cost)
	assert.Equal(t, 40.0, res.Damage)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.False(t, b.Burning)
	assert.Empty(t, b.Overlay)

	res, err = e.svc.Repair(owner.UserID, owner.ID, target.ID)
	require.NoError(t, err)
	// Full rate on the remaining 40 points
	assert.Equal(t, int64(2_400), res.Cost)

	b, err = e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.Zero(t, b.Damage)
}

func TestCleanup(t *testing.T) {
	e := newAttacksEnv(t)
	attacker, target := e.arena(t, 10_000)
	e.svc.detectRoll = func() float64 { return 0.99 }

	_, err := e.svc.Attack(context.Background(), attacker.UserID, attacker.ID, target.ID, "infestation", "")
	require.NoError(t, err)

	owner, err := e.companies.GetByID(target.CompanyID)
	require.NoError(t, err)

	res, err := e.svc.Cleanup(owner.UserID, owner.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Cost)
	// Cleanup clears the overlay but damage stays
	assert.Equal(t, 15.0, res.Damage)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.Empty(t, b.Overlay)
	assert.Equal(t, 15.0, b.Damage)

	_, err = e.svc.Cleanup(owner.UserID, owner.ID, target.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestRepair_CollapsedLicenseTaken(t *testing.T) {
	e := newAttacksEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)

	owner := &domain.GameCompany{Cash: 100_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, owner)
	boomtest.SetTileOwner(t, e.conn, tiles[6].ID, owner.ID)
	collapsed := &domain.BuildingInstance{
		TileID: tiles[6].ID, TypeID: "casino", CompanyID: owner.ID,
		Collapsed: true, Damage: 100,
	}
	boomtest.InsertBuilding(t, e.conn, collapsed)

	// A rival built a casino into the slot the collapse freed up.
	rival := &domain.GameCompany{Cash: 1, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[18].ID, rival.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[18].ID, TypeID: "casino", CompanyID: rival.ID,
	})

	_, err := e.svc.Repair(owner.UserID, owner.ID, collapsed.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	b, err := e.buildings.GetByID(collapsed.ID)
	require.NoError(t, err)
	assert.True(t, b.Collapsed)
	got, err := e.companies.GetByID(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), got.Cash)

	count, err := e.buildings.CountLicensedOnMap(m.ID, "casino")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Once the rival casino goes down the revival fits the cap again.
	_, err = e.conn.Exec(`UPDATE building_instances SET collapsed = 1, damage = 100 WHERE tile_id = ?`, tiles[18].ID)
	require.NoError(t, err)

	res, err := e.svc.Repair(owner.UserID, owner.ID, collapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), res.Cost)

	count, err = e.buildings.CountLicensedOnMap(m.ID, "casino")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepair_RevivesCollapsed(t *testing.T) {
	e := newAttacksEnv(t)
	_, target := e.arena(t, 10_000)

	_, err := e.conn.Exec(`UPDATE building_instances SET collapsed = 1, damage = 100 WHERE id = ?`, target.ID)
	require.NoError(t, err)

	owner, err := e.companies.GetByID(target.CompanyID)
	require.NoError(t, err)

	res, err := e.svc.Repair(owner.UserID, owner.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), res.Cost)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.False(t, b.Collapsed)
	assert.Zero(t, b.Damage)
}
