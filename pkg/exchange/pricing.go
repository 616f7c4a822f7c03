package exchange

import (
	"math/rand"
	"sync"
)

// Quote is the reference-price context handed to a PriceStrategy before a
// new order is admitted. When a side is empty its best price falls back to
// the last-trade price shifted 5% in the side's favor.
type Quote struct {
	BestBid     int64
	BestAsk     int64
	Mid         int64
	MarketPrice int64
	HasResting  bool // true if either side holds at least one order
}

// PriceStrategy picks the price a new order is admitted at. The production
// strategy draws at random; tests pin deterministic ones.
type PriceStrategy interface {
	Select(q Quote) int64
}

// StrategyFunc adapts a function to the PriceStrategy interface.
type StrategyFunc func(Quote) int64

func (f StrategyFunc) Select(q Quote) int64 { return f(q) }

// RandomStrategy reproduces the exchange's stock pricing policy: on a book
// with resting orders, a uniform draw from {best bid, best ask, mid}; on an
// empty book, the market price shifted ±5%. Seeded for reproducible runs.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Select(q Quote) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !q.HasResting {
		if s.rng.Intn(2) == 0 {
			return q.MarketPrice * 105 / 100
		}
		return q.MarketPrice * 95 / 100
	}

	switch s.rng.Intn(3) {
	case 0:
		return q.BestBid
	case 1:
		return q.BestAsk
	default:
		return q.Mid
	}
}
