package exchange

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Order is a resting limit order for one whole lot.
// Immutable once admitted; the engine assigns ID and Seq.
type Order struct {
	ID       uint64
	TraderID string
	Symbol   string
	Side     Side
	Price    int64  // cents per share
	Qty      int64  // shares, always one full lot
	Seq      uint64 // admission order, breaks price ties
}

// Notional returns the cash value of the order at its limit price.
func (o Order) Notional() int64 { return o.Price * o.Qty }

// Trade is an executed cross. Appended to the journal, never mutated.
type Trade struct {
	Seq          uint64
	Symbol       string
	Price        int64 // cents per share
	Qty          int64 // shares
	BuyOrderID   uint64
	SellOrderID  uint64
	BuyTraderID  string
	SellTraderID string
	ExecutedAt   int64 // unix milliseconds
}

// Notional returns the cash that changed hands.
func (t Trade) Notional() int64 { return t.Price * t.Qty }
