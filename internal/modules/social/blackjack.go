package social

import (
	"fmt"
	"math/rand"

	"github.com/vmihailenco/msgpack/v5"
)

// Blackjack game states. A game starts in dealt, stays there through hits,
// and ends in one of the terminal states.
const (
	blackjackStateDealt     = "dealt"
	blackjackStateStand     = "stand"
	blackjackStateDouble    = "double"
	blackjackStateBust      = "bust"
	blackjackStateBlackjack = "blackjack"
)

// card is one playing card. Rank runs 1 (ace) to 13 (king), suit 0 to 3.
type card struct {
	Rank int `msgpack:"r"`
	Suit int `msgpack:"s"`
}

// blackjackHand is the persisted hand state. The deck is never stored: it is
// rebuilt from the recorded seed and cards are drawn by position, so replays
// of the same game are deterministic.
type blackjackHand struct {
	Version int    `msgpack:"v"`
	Seed    int64  `msgpack:"seed"`
	Player  []card `msgpack:"p"`
	Dealer  []card `msgpack:"d"`
	Drawn   int    `msgpack:"n"`
}

const blackjackHandVersion = 1

func encodeHand(h *blackjackHand) ([]byte, error) {
	b, err := msgpack.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hand: %w", err)
	}
	return b, nil
}

func decodeHand(b []byte) (*blackjackHand, error) {
	var h blackjackHand
	if err := msgpack.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("failed to decode hand: %w", err)
	}
	return &h, nil
}

// shuffledDeck rebuilds the single 52-card deck for a seed.
func shuffledDeck(seed int64) []card {
	deck := make([]card, 0, 52)
	for suit := 0; suit < 4; suit++ {
		for rank := 1; rank <= 13; rank++ {
			deck = append(deck, card{Rank: rank, Suit: suit})
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// draw takes the next card off the seeded deck.
func (h *blackjackHand) draw() card {
	deck := shuffledDeck(h.Seed)
	c := deck[h.Drawn]
	h.Drawn++
	return c
}

// handValue scores a hand. Aces count 11 while that does not bust.
func handValue(cards []card) int {
	total, aces := 0, 0
	for _, c := range cards {
		switch {
		case c.Rank == 1:
			aces++
			total += 11
		case c.Rank >= 10:
			total += 10
		default:
			total += c.Rank
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

func isNatural(cards []card) bool {
	return len(cards) == 2 && handValue(cards) == 21
}

// dealerPlay draws dealer cards up to a hard 17.
func (h *blackjackHand) dealerPlay() {
	for handValue(h.Dealer) < 17 {
		h.Dealer = append(h.Dealer, h.draw())
	}
}

// settle compares a finished player hand against the dealer and returns the
// total credit for the given stake. Stake is included in winning payouts.
func settle(h *blackjackHand, stake int64) int64 {
	player := handValue(h.Player)
	dealer := handValue(h.Dealer)
	switch {
	case player > 21:
		return 0
	case dealer > 21 || player > dealer:
		return stake * 2
	case player == dealer:
		return stake
	default:
		return 0
	}
}

// naturalPayout returns stake plus winnings at the configured natural rate.
func naturalPayout(stake, num, den int64) int64 {
	if den == 0 {
		den = 1
	}
	return stake + stake*num/den
}
