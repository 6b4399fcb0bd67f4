package social

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type socialTestEnv struct {
	svc       *Service
	gameConn  *sql.DB
	repo      *Repository
	companies *company.Repository
	gate      *boomtest.MockGate
}

func newSocialEnv(t *testing.T) *socialTestEnv {
	t.Helper()
	gameDB := boomtest.NewTestDB(t, "game")
	socialDB := boomtest.NewTestDB(t, "social")
	gameConn := gameDB.Conn()
	log := zerolog.Nop()

	repo := NewRepository(socialDB.Conn(), log)
	companyRepo := company.NewRepository(gameConn, log)
	worldRepo := world.NewRepository(gameConn, log)
	ledgerRepo := ledger.NewRepository(gameConn, log)
	rulesRepo := rules.NewRepository(gameConn, log)
	require.NoError(t, rulesRepo.Seed())

	gate := boomtest.AllowAll()
	svc := NewService(gameConn, repo, companyRepo, worldRepo, ledgerRepo, rulesRepo,
		gate, nil, log)
	return &socialTestEnv{svc: svc, gameConn: gameConn, repo: repo, companies: companyRepo, gate: gate}
}

// seedMap puts a company with the given cash on a 5x5 town. Special buildings
// requested by the test land on fixed corner tiles.
func (e *socialTestEnv) seedMap(t *testing.T, cash int64, specials ...domain.SpecialBuilding) (*domain.Map, *domain.GameCompany) {
	t.Helper()
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.gameConn, m)
	tiles := boomtest.InsertGrid(t, e.gameConn, m)
	for i, sb := range specials {
		_, err := e.gameConn.Exec(`UPDATE tiles SET special_building = ? WHERE id = ?`,
			string(sb), tiles[i].ID)
		require.NoError(t, err)
	}
	c := &domain.GameCompany{Cash: cash, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.gameConn, c)
	return m, c
}

func (e *socialTestEnv) cash(t *testing.T, companyID string) int64 {
	t.Helper()
	c, err := e.companies.GetByID(companyID)
	require.NoError(t, err)
	return c.Cash
}

func TestPostChat(t *testing.T) {
	e := newSocialEnv(t)
	m, c := e.seedMap(t, 1_000)

	msg, err := e.svc.PostChat(context.Background(), c.UserID, c.ID, "hello neighbors")
	require.NoError(t, err)
	assert.True(t, msg.Visible)

	history, err := e.svc.ChatHistory(m.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello neighbors", history[0].Message)
}

func TestPostChat_Validation(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 1_000)

	_, err := e.svc.PostChat(context.Background(), c.UserID, c.ID, "   ")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	long := make([]byte, maxChatMessageLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = e.svc.PostChat(context.Background(), c.UserID, c.ID, string(long))
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = e.svc.PostChat(context.Background(), "someone-else", c.ID, "hi")
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestPostChat_ModerationQueue(t *testing.T) {
	e := newSocialEnv(t)
	m, c := e.seedMap(t, 1_000)

	e.gate.Verdict = moderation.VerdictRejected
	_, err := e.svc.PostChat(context.Background(), c.UserID, c.ID, "rude words")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	e.gate.Verdict = moderation.VerdictPending
	msg, err := e.svc.PostChat(context.Background(), c.UserID, c.ID, "borderline")
	require.NoError(t, err)
	assert.False(t, msg.Visible)

	history, err := e.svc.ChatHistory(m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	pending, err := e.svc.PendingChat(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, e.svc.ReviewChat(msg.ID, true))
	history, err = e.svc.ChatHistory(m.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHeroMessages(t *testing.T) {
	e := newSocialEnv(t)
	m, c := e.seedMap(t, 1_000)

	_, err := e.svc.PostHeroMessage(context.Background(), c.ID, m.ID, domain.TierTown, "so long, and thanks")
	require.NoError(t, err)

	msgs, err := e.svc.HeroMessages(m.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.TierTown, msgs[0].Tier)
}

func TestDonate(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialTemple)

	cashAfter, err := e.svc.Donate(c.UserID, c.ID, 2_500)
	require.NoError(t, err)
	assert.Equal(t, int64(7_500), cashAfter)
	assert.Equal(t, int64(7_500), e.cash(t, c.ID))

	board, err := e.svc.Leaderboard(10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(2_500), board[0].Total)
}

func TestDonate_Preconditions(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 1_000, domain.SpecialTemple)

	_, err := e.svc.Donate(c.UserID, c.ID, 0)
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = e.svc.Donate(c.UserID, c.ID, 5_000)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestDonate_NoTemple(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000)

	_, err := e.svc.Donate(c.UserID, c.ID, 1_000)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestRouletteSpin_StraightWin(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := int64(42)
	e.svc.seedFn = func() int64 { return seed }
	pocket := spinPocket(seed)

	res, err := e.svc.RouletteSpin(c.UserID, c.ID, 100, "straight", pocket)
	require.NoError(t, err)
	assert.Equal(t, pocket, res.Pocket)
	assert.Equal(t, int64(3_600), res.Payout)
	assert.Equal(t, int64(13_500), res.Cash)
	assert.Equal(t, int64(13_500), e.cash(t, c.ID))
}

func TestRouletteSpin_StraightLoss(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := int64(42)
	e.svc.seedFn = func() int64 { return seed }
	losing := (spinPocket(seed) + 1) % roulettePockets

	res, err := e.svc.RouletteSpin(c.UserID, c.ID, 100, "straight", losing)
	require.NoError(t, err)
	assert.Zero(t, res.Payout)
	assert.Equal(t, int64(9_900), res.Cash)
}

func TestRouletteSpin_OutsideBet(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := int64(7)
	e.svc.seedFn = func() int64 { return seed }
	pocket := spinPocket(seed)

	if pocket == 0 {
		// Zero loses every outside bet
		res, err := e.svc.RouletteSpin(c.UserID, c.ID, 500, "red", 0)
		require.NoError(t, err)
		assert.Zero(t, res.Payout)
		assert.Equal(t, int64(9_500), res.Cash)
		return
	}

	bet := "red"
	if !redPockets[pocket] {
		bet = "black"
	}
	res, err := e.svc.RouletteSpin(c.UserID, c.ID, 500, bet, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), res.Payout)
	assert.Equal(t, int64(10_500), res.Cash)
}

func TestRouletteSpin_Preconditions(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	_, err := e.svc.RouletteSpin(c.UserID, c.ID, 100, "corner", 0)
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = e.svc.RouletteSpin(c.UserID, c.ID, 100, "straight", 37)
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = e.svc.RouletteSpin(c.UserID, c.ID, 50_000, "red", 0)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestRouletteSpin_NoCasino(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000)

	_, err := e.svc.RouletteSpin(c.UserID, c.ID, 100, "red", 0)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

// pickSeed scans for a seed whose deal leaves the player short of 21, so the
// game stays live for hit/stand/double tests.
func pickSeed(t *testing.T) int64 {
	t.Helper()
	for seed := int64(1); seed < 200; seed++ {
		deck := shuffledDeck(seed)
		player := []card{deck[0], deck[2]}
		if !isNatural(player) {
			return seed
		}
	}
	t.Fatal("no suitable seed found")
	return 0
}

func TestBlackjackDeal(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := pickSeed(t)
	e.svc.seedFn = func() int64 { return seed }

	view, err := e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	require.NoError(t, err)
	assert.Equal(t, blackjackStateDealt, view.State)
	assert.Len(t, view.Player, 2)
	// Hole card stays hidden while the game is live
	assert.Len(t, view.Dealer, 1)
	assert.Equal(t, int64(9_000), view.Cash)

	deck := shuffledDeck(seed)
	assert.Equal(t, handValue([]card{deck[0], deck[2]}), view.PlayerValue)
}

func TestBlackjackStand(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := pickSeed(t)
	e.svc.seedFn = func() int64 { return seed }

	view, err := e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	require.NoError(t, err)

	// Replay the seeded deck to know the settled outcome in advance
	deck := shuffledDeck(seed)
	h := &blackjackHand{
		Seed:   seed,
		Player: []card{deck[0], deck[2]},
		Dealer: []card{deck[1], deck[3]},
		Drawn:  4,
	}
	h.dealerPlay()
	expected := settle(h, 1_000)

	final, err := e.svc.BlackjackStand(c.UserID, view.GameID)
	require.NoError(t, err)
	assert.Equal(t, blackjackStateStand, final.State)
	assert.Equal(t, expected, final.Payout)
	assert.Equal(t, int64(9_000)+expected, final.Cash)
	assert.NotZero(t, final.DealerValue)

	// Settled games refuse further moves
	_, err = e.svc.BlackjackHit(c.UserID, view.GameID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBlackjackHit_TracksDeck(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := pickSeed(t)
	e.svc.seedFn = func() int64 { return seed }

	view, err := e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	require.NoError(t, err)

	deck := shuffledDeck(seed)
	expected := handValue([]card{deck[0], deck[2], deck[4]})

	after, err := e.svc.BlackjackHit(c.UserID, view.GameID)
	require.NoError(t, err)
	assert.Equal(t, expected, after.PlayerValue)
	if expected > 21 {
		assert.Equal(t, blackjackStateBust, after.State)
		assert.Zero(t, after.Payout)
	} else {
		assert.Equal(t, blackjackStateDealt, after.State)
	}
}

func TestBlackjackDouble(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := pickSeed(t)
	e.svc.seedFn = func() int64 { return seed }

	view, err := e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	require.NoError(t, err)

	final, err := e.svc.BlackjackDouble(c.UserID, view.GameID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), final.Stake)
	assert.Contains(t, []string{blackjackStateDouble, blackjackStateBust}, final.State)

	// The doubled stake and any payout reconcile against cash
	assert.Equal(t, int64(8_000)+final.Payout, final.Cash)
}

func TestBlackjack_WrongUser(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)

	seed := pickSeed(t)
	e.svc.seedFn = func() int64 { return seed }

	view, err := e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	require.NoError(t, err)

	_, err = e.svc.BlackjackHit("someone-else", view.GameID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestBlackjack_Imprisoned(t *testing.T) {
	e := newSocialEnv(t)
	_, c := e.seedMap(t, 10_000, domain.SpecialCasino)
	_, err := e.gameConn.Exec(`UPDATE game_companies SET in_prison = 1, fine = 500 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	_, err = e.svc.BlackjackDeal(c.UserID, c.ID, 1_000)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestHandValue(t *testing.T) {
	assert.Equal(t, 21, handValue([]card{{Rank: 1}, {Rank: 13}}))
	assert.Equal(t, 12, handValue([]card{{Rank: 1}, {Rank: 1}}))
	assert.Equal(t, 13, handValue([]card{{Rank: 1}, {Rank: 1}, {Rank: 1}, {Rank: 10}}))
	assert.Equal(t, 20, handValue([]card{{Rank: 10}, {Rank: 12}}))
	assert.Equal(t, 16, handValue([]card{{Rank: 1}, {Rank: 5}, {Rank: 10}}))
}

func TestSettle(t *testing.T) {
	h := &blackjackHand{
		Player: []card{{Rank: 10}, {Rank: 9}},
		Dealer: []card{{Rank: 10}, {Rank: 8}},
	}
	assert.Equal(t, int64(200), settle(h, 100))

	h.Dealer = []card{{Rank: 10}, {Rank: 9}}
	assert.Equal(t, int64(100), settle(h, 100))

	h.Dealer = []card{{Rank: 10}, {Rank: 10}}
	assert.Equal(t, int64(0), settle(h, 100))

	h.Dealer = []card{{Rank: 10}, {Rank: 6}, {Rank: 10}}
	assert.Equal(t, int64(200), settle(h, 100))
}

func TestRouletteWins(t *testing.T) {
	assert.True(t, rouletteWins("straight", 17, 17))
	assert.False(t, rouletteWins("straight", 17, 18))
	assert.True(t, rouletteWins("red", 0, 32))
	assert.True(t, rouletteWins("black", 0, 33))
	// Zero loses every outside bet
	assert.False(t, rouletteWins("red", 0, 0))
	assert.False(t, rouletteWins("black", 0, 0))
	assert.False(t, rouletteWins("even", 0, 0))
	assert.True(t, rouletteWins("even", 0, 8))
	assert.True(t, rouletteWins("odd", 0, 9))
}
