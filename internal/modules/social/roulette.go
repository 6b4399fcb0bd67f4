package social

import (
	"fmt"
	"math/rand"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/skourtis/boomtown/internal/domain"
)

// Roulette is single-zero: pockets 0 to 36.
const roulettePockets = 37

// redPockets holds the red numbers of a European wheel.
var redPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// rouletteSpin is the persisted outcome of one spin.
type rouletteSpin struct {
	Version int    `msgpack:"v"`
	Seed    int64  `msgpack:"seed"`
	Bet     string `msgpack:"bet"`
	Number  int    `msgpack:"num"`
	Pocket  int    `msgpack:"pocket"`
}

const rouletteSpinVersion = 1

func encodeSpin(s *rouletteSpin) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spin: %w", err)
	}
	return b, nil
}

func decodeSpin(b []byte) (*rouletteSpin, error) {
	var s rouletteSpin
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode spin: %w", err)
	}
	return &s, nil
}

// spinPocket resolves the winning pocket for a seed.
func spinPocket(seed int64) int {
	return rand.New(rand.NewSource(seed)).Intn(roulettePockets)
}

// validateRouletteBet checks the bet kind and, for straight bets, the number.
func validateRouletteBet(bet string, number int, payouts map[string]int64) error {
	if _, ok := payouts[bet]; !ok {
		return domain.E(domain.KindInvalidRequest, "unknown roulette bet")
	}
	if bet == "straight" && (number < 0 || number >= roulettePockets) {
		return domain.E(domain.KindInvalidRequest, "straight bet number must be between 0 and 36")
	}
	return nil
}

// rouletteWins reports whether a bet covers the pocket. Zero loses every
// outside bet.
func rouletteWins(bet string, number, pocket int) bool {
	switch bet {
	case "straight":
		return pocket == number
	case "red":
		return redPockets[pocket]
	case "black":
		return pocket != 0 && !redPockets[pocket]
	case "even":
		return pocket != 0 && pocket%2 == 0
	case "odd":
		return pocket%2 == 1
	default:
		return false
	}
}
