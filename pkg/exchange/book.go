package exchange

import (
	"fmt"
	"sort"
)

// Book holds the resting orders for one symbol. Both sides stay sorted by
// price-time priority at all times: bids by (price desc, seq asc), asks by
// (price asc, seq asc). Each side is capped at maxDepth orders; inserting
// past the cap drops the worst-priority order on that side.
//
// Book is not safe for concurrent use; the owning Market serializes access.
type Book struct {
	symbol   string
	maxDepth int
	bids     []*Order
	asks     []*Order
}

func NewBook(symbol string, maxDepth int) *Book {
	return &Book{symbol: symbol, maxDepth: maxDepth}
}

func (b *Book) Symbol() string { return b.symbol }

// bidBefore reports whether x has strictly better bid priority than y.
func bidBefore(x, y *Order) bool {
	if x.Price != y.Price {
		return x.Price > y.Price
	}
	return x.Seq < y.Seq
}

// askBefore reports whether x has strictly better ask priority than y.
func askBefore(x, y *Order) bool {
	if x.Price != y.Price {
		return x.Price < y.Price
	}
	return x.Seq < y.Seq
}

// Insert places o in priority position on its side. If the side then
// exceeds the depth cap, the worst order (possibly o itself) is removed and
// returned; otherwise Insert returns nil. O(depth) sorted insert.
func (b *Book) Insert(o *Order) *Order {
	if o.Symbol != b.symbol {
		panic(fmt.Sprintf("book %s: insert for symbol %s", b.symbol, o.Symbol))
	}

	if o.Side == Buy {
		b.bids = insertSorted(b.bids, o, bidBefore)
		if b.maxDepth > 0 && len(b.bids) > b.maxDepth {
			worst := b.bids[len(b.bids)-1]
			b.bids = b.bids[:len(b.bids)-1]
			return worst
		}
		return nil
	}

	b.asks = insertSorted(b.asks, o, askBefore)
	if b.maxDepth > 0 && len(b.asks) > b.maxDepth {
		worst := b.asks[len(b.asks)-1]
		b.asks = b.asks[:len(b.asks)-1]
		return worst
	}
	return nil
}

func insertSorted(side []*Order, o *Order, before func(x, y *Order) bool) []*Order {
	i := sort.Search(len(side), func(i int) bool {
		return before(o, side[i])
	})
	side = append(side, nil)
	copy(side[i+1:], side[i:])
	side[i] = o
	return side
}

// BestBid returns the highest-priority bid, or nil if the side is empty.
func (b *Book) BestBid() *Order {
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

// BestAsk returns the highest-priority ask, or nil if the side is empty.
func (b *Book) BestAsk() *Order {
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

// RemoveBest pops the top order from both sides after a match.
func (b *Book) RemoveBest() {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		panic("book: remove best on one-sided book")
	}
	b.bids = b.bids[1:]
	b.asks = b.asks[1:]
}

// CancelAll empties both sides and returns the removed orders, bids first,
// each side in priority order.
func (b *Book) CancelAll() []*Order {
	out := make([]*Order, 0, len(b.bids)+len(b.asks))
	out = append(out, b.bids...)
	out = append(out, b.asks...)
	b.bids = nil
	b.asks = nil
	return out
}

func (b *Book) BidCount() int { return len(b.bids) }
func (b *Book) AskCount() int { return len(b.asks) }

// Bids returns a copy of the bid side in priority order.
func (b *Book) Bids() []Order {
	out := make([]Order, len(b.bids))
	for i, o := range b.bids {
		out[i] = *o
	}
	return out
}

// Asks returns a copy of the ask side in priority order.
func (b *Book) Asks() []Order {
	out := make([]Order, len(b.asks))
	for i, o := range b.asks {
		out[i] = *o
	}
	return out
}

// Quote builds the reference-price context for admitting a new order.
// Empty sides fall back to the market price shifted 5% in the side's favor.
func (b *Book) Quote(marketPrice int64) Quote {
	q := Quote{MarketPrice: marketPrice}
	if bid := b.BestBid(); bid != nil {
		q.BestBid = bid.Price
		q.HasResting = true
	} else {
		q.BestBid = marketPrice * 95 / 100
	}
	if ask := b.BestAsk(); ask != nil {
		q.BestAsk = ask.Price
		q.HasResting = true
	} else {
		q.BestAsk = marketPrice * 105 / 100
	}
	q.Mid = (q.BestBid + q.BestAsk) / 2
	return q
}

// checkSorted asserts both sides honor their comparator. A violation is a
// maintenance bug, not a user-facing condition.
func (b *Book) checkSorted() {
	for i := 1; i < len(b.bids); i++ {
		if !bidBefore(b.bids[i-1], b.bids[i]) {
			panic(fmt.Sprintf("book %s: bid side out of order at %d", b.symbol, i))
		}
	}
	for i := 1; i < len(b.asks); i++ {
		if !askBefore(b.asks[i-1], b.asks[i]) {
			panic(fmt.Sprintf("book %s: ask side out of order at %d", b.symbol, i))
		}
	}
}
