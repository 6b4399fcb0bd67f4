package social

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

const maxChatMessageLen = 280

// RouletteResult is the outcome of one settled spin.
type RouletteResult struct {
	GameID string `json:"game_id"`
	Pocket int    `json:"pocket"`
	Payout int64  `json:"payout"`
	Cash   int64  `json:"cash"`
}

// CardView is one card rendered for clients.
type CardView struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// BlackjackView is the client-facing snapshot of one game. The dealer hole
// card stays hidden while the game is live.
type BlackjackView struct {
	GameID      string     `json:"game_id"`
	State       string     `json:"state"`
	Stake       int64      `json:"stake"`
	Payout      int64      `json:"payout"`
	Player      []CardView `json:"player"`
	PlayerValue int        `json:"player_value"`
	Dealer      []CardView `json:"dealer"`
	DealerValue int        `json:"dealer_value,omitempty"`
	Cash        int64      `json:"cash"`
}

// Service implements the social sublayer: map chat, hero messages, temple
// donations and the casino. Cash moves through the game database; the social
// rows themselves live in social.db and reference companies by UUID only.
type Service struct {
	gameDB    *sql.DB
	repo      *Repository
	companies *company.Repository
	worldRepo *world.Repository
	ledgers   *ledger.Repository
	rulesRepo *rules.Repository
	gate      moderation.Gate
	hub       *Hub
	seedFn    func() int64
	log       zerolog.Logger
}

// NewService creates the social service. hub may be nil when no live feed is
// wanted (tests).
func NewService(
	gameDB *sql.DB,
	repo *Repository,
	companies *company.Repository,
	worldRepo *world.Repository,
	ledgers *ledger.Repository,
	rulesRepo *rules.Repository,
	gate moderation.Gate,
	hub *Hub,
	log zerolog.Logger,
) *Service {
	return &Service{
		gameDB:    gameDB,
		repo:      repo,
		companies: companies,
		worldRepo: worldRepo,
		ledgers:   ledgers,
		rulesRepo: rulesRepo,
		gate:      gate,
		hub:       hub,
		seedFn:    func() int64 { return rand.Int63() },
		log:       log.With().Str("service", "social").Logger(),
	}
}

// loadMember checks that the company exists, belongs to the user and is on a
// map.
func (s *Service) loadMember(userID, companyID string) (*domain.GameCompany, error) {
	c, err := s.companies.GetByID(companyID)
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
	return c, nil
}

// PostChat submits a map chat message through the moderation gate. Rejected
// text fails the post; a pending verdict stores the message hidden until an
// admin review.
func (s *Service) PostChat(ctx context.Context, userID, companyID, message string) (*ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.E(domain.KindInvalidRequest, "message must not be empty")
	}
	if len(message) > maxChatMessageLen {
		return nil, domain.E(domain.KindInvalidRequest, "message too long")
	}
	c, err := s.loadMember(userID, companyID)
	if err != nil {
		return nil, err
	}

	verdict := s.gate.Moderate(ctx, "chat_message", message)
	if verdict.Verdict == moderation.VerdictRejected {
		return nil, domain.E(domain.KindInvalidRequest, "message rejected by moderation")
	}

	m := &ChatMessage{
		ID:               uuid.New().String(),
		MapID:            c.MapID,
		CompanyID:        c.ID,
		Message:          message,
		Visible:          verdict.Verdict == moderation.VerdictAllowed,
		ModerationStatus: domain.ModerationApproved,
		CreatedAt:        time.Now().Unix(),
	}
	if verdict.Verdict == moderation.VerdictPending {
		m.ModerationStatus = domain.ModerationPending
	}
	if err := s.repo.InsertChat(m); err != nil {
		return nil, err
	}
	if m.Visible {
		s.broadcastChat(m)
	}
	return m, nil
}

// ChatHistory returns a map's visible chat, newest first.
func (s *Service) ChatHistory(mapID string, limit int) ([]ChatMessage, error) {
	return s.repo.ListVisibleChat(mapID, limit)
}

// PendingChat returns posts awaiting review.
func (s *Service) PendingChat(limit int) ([]ChatMessage, error) {
	return s.repo.ListPendingChat(limit)
}

// ReviewChat applies an admin verdict to a pending post. Approval makes it
// visible in history; clients pick it up on the next fetch.
func (s *Service) ReviewChat(id string, approve bool) error {
	status := domain.ModerationRejected
	if approve {
		status = domain.ModerationApproved
	}
	return s.repo.SetChatModeration(id, status)
}

// PostHeroMessage stores the celebration text attached to a hero-out. The
// company has already left the map, so the caller passes the map and tier the
// hero-out happened on.
func (s *Service) PostHeroMessage(ctx context.Context, companyID, mapID string, tier domain.Tier, message string) (*HeroMessage, error) {
	message = strings.TrimSpace(message)
	if len(message) > maxChatMessageLen {
		return nil, domain.E(domain.KindInvalidRequest, "message too long")
	}

	visible := true
	status := domain.ModerationApproved
	if message != "" {
		verdict := s.gate.Moderate(ctx, "hero_message", message)
		switch verdict.Verdict {
		case moderation.VerdictRejected:
			return nil, domain.E(domain.KindInvalidRequest, "message rejected by moderation")
		case moderation.VerdictPending:
			visible = false
			status = domain.ModerationPending
		}
	}

	m := &HeroMessage{
		ID:               uuid.New().String(),
		CompanyID:        companyID,
		MapID:            mapID,
		Tier:             tier,
		Message:          message,
		Visible:          visible,
		ModerationStatus: status,
		CreatedAt:        time.Now().Unix(),
	}
	if err := s.repo.InsertHeroMessage(m); err != nil {
		return nil, err
	}
	return m, nil
}

// HeroMessages returns visible celebrations for a map.
func (s *Service) HeroMessages(mapID string, limit int) ([]HeroMessage, error) {
	return s.repo.ListVisibleHeroMessages(mapID, limit)
}

// Donate moves cash from the company to the temple. The map must carry a
// temple. The cash debit commits in the game database first; the donation row
// is social-side bookkeeping and a failure there is logged, not surfaced,
// since the ledger already holds the authoritative record.
func (s *Service) Donate(userID, companyID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.E(domain.KindInvalidRequest, "donation amount must be positive")
	}
	c, err := s.loadMember(userID, companyID)
	if err != nil {
		return 0, err
	}
	if err := s.requireSpecial(c.MapID, domain.SpecialTemple, "no temple on this map"); err != nil {
		return 0, err
	}

	var cashAfter int64
	err = database.WithTransaction(s.gameDB, func(tx *sql.Tx) error {
		cur, err := s.companies.GetByIDTx(tx, c.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.MapID != c.MapID {
			return domain.E(domain.KindPreconditionFailed, "company left the map")
		}
		if cur.Cash < amount {
			return domain.E(domain.KindPreconditionFailed, "insufficient cash")
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, -amount); err != nil {
			return err
		}
		cashAfter = cur.Cash - amount
		return s.ledgers.AppendTx(tx, &domain.Transaction{
			ID:        uuid.New().String(),
			Type:      "donation",
			CompanyID: c.ID,
			MapID:     c.MapID,
			Amount:    -amount,
			CreatedAt: time.Now().Unix(),
		})
	})
	if err != nil {
		return 0, err
	}

	d := &Donation{
		ID:        uuid.New().String(),
		CompanyID: c.ID,
		MapID:     c.MapID,
		Amount:    amount,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.repo.InsertDonation(d); err != nil {
		s.log.Error().Err(err).Str("company_id", c.ID).Msg("Donation row write failed")
	}
	return cashAfter, nil
}

// Leaderboard returns the global donation totals, highest first.
func (s *Service) Leaderboard(limit int) ([]DonationTotal, error) {
	return s.repo.DonationLeaderboard(limit)
}

// RouletteSpin plays one settled spin: debit the stake, spin a seeded wheel,
// credit any payout. The company's map must carry a casino.
func (s *Service) RouletteSpin(userID, companyID string, stake int64, bet string, number int) (*RouletteResult, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	if err := validateRouletteBet(bet, number, rs.RoulettePayout); err != nil {
		return nil, err
	}
	c, err := s.casinoMember(userID, companyID, stake)
	if err != nil {
		return nil, err
	}

	seed := s.seedFn()
	spin := &rouletteSpin{
		Version: rouletteSpinVersion,
		Seed:    seed,
		Bet:     bet,
		Number:  number,
		Pocket:  spinPocket(seed),
	}
	var payout int64
	if rouletteWins(bet, number, spin.Pocket) {
		payout = stake * rs.RoulettePayout[bet]
	}

	cashAfter, err := s.moveCasinoCash(c, -stake+payout, stake, payout)
	if err != nil {
		return nil, err
	}

	hand, err := encodeSpin(spin)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	game := &CasinoGame{
		ID:        uuid.New().String(),
		CompanyID: c.ID,
		Game:      "roulette",
		State:     "settled",
		Stake:     stake,
		Payout:    payout,
		Hand:      hand,
		Seed:      seed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCasinoGame(game); err != nil {
		s.log.Error().Err(err).Str("company_id", c.ID).Msg("Roulette row write failed")
	}
	return &RouletteResult{GameID: game.ID, Pocket: spin.Pocket, Payout: payout, Cash: cashAfter}, nil
}

// BlackjackDeal starts a game: debit the stake, deal two cards each. A
// natural 21 settles immediately at the configured premium rate.
func (s *Service) BlackjackDeal(userID, companyID string, stake int64) (*BlackjackView, error) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		return nil, err
	}
	c, err := s.casinoMember(userID, companyID, stake)
	if err != nil {
		return nil, err
	}

	h := &blackjackHand{Version: blackjackHandVersion, Seed: s.seedFn()}
	h.Player = append(h.Player, h.draw())
	h.Dealer = append(h.Dealer, h.draw())
	h.Player = append(h.Player, h.draw())
	h.Dealer = append(h.Dealer, h.draw())

	state := blackjackStateDealt
	var payout int64
	if isNatural(h.Player) {
		state = blackjackStateBlackjack
		if isNatural(h.Dealer) {
			payout = stake // push
		} else {
			payout = naturalPayout(stake, rs.BlackjackPayoutNum, rs.BlackjackPayoutDen)
		}
	}

	cashAfter, err := s.moveCasinoCash(c, -stake+payout, stake, payout)
	if err != nil {
		return nil, err
	}

	hand, err := encodeHand(h)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	game := &CasinoGame{
		ID:        uuid.New().String(),
		CompanyID: c.ID,
		Game:      "blackjack",
		State:     state,
		Stake:     stake,
		Payout:    payout,
		Hand:      hand,
		Seed:      h.Seed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCasinoGame(game); err != nil {
		return nil, err
	}
	return s.blackjackView(game, h, cashAfter), nil
}

// BlackjackHit draws one player card. Going over 21 busts and settles at
// zero.
func (s *Service) BlackjackHit(userID, gameID string) (*BlackjackView, error) {
	c, game, h, err := s.loadLiveBlackjack(userID, gameID)
	if err != nil {
		return nil, err
	}

	h.Player = append(h.Player, h.draw())
	if handValue(h.Player) > 21 {
		game.State = blackjackStateBust
	}
	return s.storeBlackjack(c, game, h, 0)
}

// BlackjackStand ends the player's turn: the dealer draws to 17 and the game
// settles.
func (s *Service) BlackjackStand(userID, gameID string) (*BlackjackView, error) {
	c, game, h, err := s.loadLiveBlackjack(userID, gameID)
	if err != nil {
		return nil, err
	}

	h.dealerPlay()
	game.State = blackjackStateStand
	return s.storeBlackjack(c, game, h, settle(h, game.Stake))
}

// BlackjackDouble doubles the stake on the first decision, draws exactly one
// card and settles.
func (s *Service) BlackjackDouble(userID, gameID string) (*BlackjackView, error) {
	c, game, h, err := s.loadLiveBlackjack(userID, gameID)
	if err != nil {
		return nil, err
	}
	if len(h.Player) != 2 {
		return nil, domain.E(domain.KindPreconditionFailed, "double is only available on the first decision")
	}
	if c.Cash < game.Stake {
		return nil, domain.E(domain.KindPreconditionFailed, "insufficient cash to double")
	}

	if _, err := s.moveCasinoCash(c, -game.Stake, game.Stake, 0); err != nil {
		return nil, err
	}
	game.Stake *= 2

	h.Player = append(h.Player, h.draw())
	if handValue(h.Player) > 21 {
		game.State = blackjackStateBust
		return s.storeBlackjack(c, game, h, 0)
	}
	h.dealerPlay()
	game.State = blackjackStateDouble
	return s.storeBlackjack(c, game, h, settle(h, game.Stake))
}

// BlackjackState returns the current view of a game.
func (s *Service) BlackjackState(userID, gameID string) (*BlackjackView, error) {
	game, err := s.repo.GetCasinoGame(gameID)
	if err != nil {
		return nil, err
	}
	if game == nil || game.Game != "blackjack" {
		return nil, domain.E(domain.KindNotFound, "game not found")
	}
	c, err := s.companies.GetByID(game.CompanyID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, domain.E(domain.KindForbidden, "game belongs to another user")
	}
	h, err := decodeHand(game.Hand)
	if err != nil {
		return nil, err
	}
	return s.blackjackView(game, h, c.Cash), nil
}

func (s *Service) loadLiveBlackjack(userID, gameID string) (*domain.GameCompany, *CasinoGame, *blackjackHand, error) {
	game, err := s.repo.GetCasinoGame(gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	if game == nil || game.Game != "blackjack" {
		return nil, nil, nil, domain.E(domain.KindNotFound, "game not found")
	}
	if game.State != blackjackStateDealt {
		return nil, nil, nil, domain.E(domain.KindPreconditionFailed, "game already settled")
	}
	c, err := s.companies.GetByID(game.CompanyID)
	if err != nil {
		return nil, nil, nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, nil, nil, domain.E(domain.KindForbidden, "game belongs to another user")
	}
	h, err := decodeHand(game.Hand)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, game, h, nil
}

// storeBlackjack persists the updated hand, pays out when terminal, and
// returns the fresh view.
func (s *Service) storeBlackjack(c *domain.GameCompany, game *CasinoGame, h *blackjackHand, payout int64) (*BlackjackView, error) {
	cashAfter := c.Cash
	if game.State != blackjackStateDealt && payout > 0 {
		after, err := s.moveCasinoCash(c, payout, 0, payout)
		if err != nil {
			return nil, err
		}
		cashAfter = after
	}
	game.Payout = payout
	game.UpdatedAt = time.Now().Unix()

	hand, err := encodeHand(h)
	if err != nil {
		return nil, err
	}
	game.Hand = hand
	if err := s.repo.UpdateCasinoGame(game); err != nil {
		return nil, err
	}
	return s.blackjackView(game, h, cashAfter), nil
}

// casinoMember validates a stake and that the company's map has a casino.
func (s *Service) casinoMember(userID, companyID string, stake int64) (*domain.GameCompany, error) {
	if stake <= 0 {
		return nil, domain.E(domain.KindInvalidRequest, "stake must be positive")
	}
	c, err := s.loadMember(userID, companyID)
	if err != nil {
		return nil, err
	}
	if c.InPrison {
		return nil, domain.E(domain.KindPreconditionFailed, "in prison")
	}
	if err := s.requireSpecial(c.MapID, domain.SpecialCasino, "no casino on this map"); err != nil {
		return nil, err
	}
	if c.Cash < stake {
		return nil, domain.E(domain.KindPreconditionFailed, "insufficient cash")
	}
	return c, nil
}

// moveCasinoCash applies a net cash delta in the game database and appends
// the ledger rows for the stake and payout legs.
func (s *Service) moveCasinoCash(c *domain.GameCompany, delta, stake, payout int64) (int64, error) {
	var cashAfter int64
	err := database.WithTransaction(s.gameDB, func(tx *sql.Tx) error {
		cur, err := s.companies.GetByIDTx(tx, c.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.E(domain.KindNotFound, "company not found")
		}
		if cur.Cash+delta < 0 {
			return domain.E(domain.KindPreconditionFailed, "insufficient cash")
		}
		if err := s.companies.AdjustCashTx(tx, c.ID, delta); err != nil {
			return err
		}
		cashAfter = cur.Cash + delta
		now := time.Now().Unix()
		if stake > 0 {
			if err := s.ledgers.AppendTx(tx, &domain.Transaction{
				ID:        uuid.New().String(),
				Type:      "casino_stake",
				CompanyID: c.ID,
				MapID:     c.MapID,
				Amount:    -stake,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		if payout > 0 {
			if err := s.ledgers.AppendTx(tx, &domain.Transaction{
				ID:        uuid.New().String(),
				Type:      "casino_payout",
				CompanyID: c.ID,
				MapID:     c.MapID,
				Amount:    payout,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.Cash = cashAfter
	return cashAfter, nil
}

// requireSpecial checks that a map carries one special building.
func (s *Service) requireSpecial(mapID string, sb domain.SpecialBuilding, msg string) error {
	tiles, err := s.worldRepo.GetTiles(mapID)
	if err != nil {
		return err
	}
	for i := range tiles {
		if tiles[i].SpecialBuilding == sb {
			return nil
		}
	}
	return domain.E(domain.KindPreconditionFailed, msg)
}

func (s *Service) blackjackView(game *CasinoGame, h *blackjackHand, cash int64) *BlackjackView {
	v := &BlackjackView{
		GameID:      game.ID,
		State:       game.State,
		Stake:       game.Stake,
		Payout:      game.Payout,
		Player:      renderCards(h.Player),
		PlayerValue: handValue(h.Player),
		Cash:        cash,
	}
	if game.State == blackjackStateDealt {
		// Hole card stays hidden while the player still acts.
		v.Dealer = renderCards(h.Dealer[:1])
	} else {
		v.Dealer = renderCards(h.Dealer)
		v.DealerValue = handValue(h.Dealer)
	}
	return v
}

var rankNames = map[int]string{1: "A", 11: "J", 12: "Q", 13: "K"}
var suitNames = [4]string{"spades", "hearts", "diamonds", "clubs"}

func renderCards(cards []card) []CardView {
	out := make([]CardView, 0, len(cards))
	for _, c := range cards {
		rank, ok := rankNames[c.Rank]
		if !ok {
			rank = fmt.Sprintf("%d", c.Rank)
		}
		out = append(out, CardView{Rank: rank, Suit: suitNames[c.Suit]})
	}
	return out
}

func (s *Service) broadcastChat(m *ChatMessage) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(m.MapID, m)
}
