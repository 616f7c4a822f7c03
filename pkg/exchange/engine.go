package exchange

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type RejectReason uint8

const (
	MarketClosed RejectReason = iota
	InsufficientCash
	InsufficientPosition
	InvalidOrder
)

func (r RejectReason) String() string {
	switch r {
	case MarketClosed:
		return "market_closed"
	case InsufficientCash:
		return "insufficient_cash"
	case InsufficientPosition:
		return "insufficient_position"
	case InvalidOrder:
		return "invalid_order"
	default:
		return "unknown"
	}
}

// Result is the outcome of an admission attempt. Rejections are expected
// values, never errors that unwind past the engine.
type Result struct {
	Admitted bool
	OrderID  uint64
	Reason   RejectReason // valid only when !Admitted
}

// Ledger is the trader-account capability the engine calls into. The engine
// never re-derives solvency and is the sole caller of Settle.
type Ledger interface {
	// CanCover reports whether the trader can fund one lot at the given
	// price (buy: cash, sell: position).
	CanCover(traderID string, side Side, symbol string, price, qty int64) bool

	// Settle applies one executed trade to both accounts atomically:
	// buyer cash -price*qty, position +qty; seller the exact opposite.
	Settle(buyTraderID, sellTraderID, symbol string, price, qty int64)
}

// TradeLog receives every executed trade, in sequence order.
type TradeLog interface {
	Append(Trade)
}

// Market owns one symbol's book and last-trade price. Its mutex is the
// single-writer discipline for the symbol: admission, matching and
// cancellation all hold it.
type Market struct {
	Symbol string

	mu        sync.Mutex
	book      *Book
	lastPrice int64
}

// LastPrice returns the symbol's last-trade price.
func (m *Market) LastPrice() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrice
}

// Depth returns the current resting order counts (bids, asks).
func (m *Market) Depth() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.BidCount(), m.book.AskCount()
}

// Snapshot copies both sides of the book in priority order.
func (m *Market) Snapshot() (bids, asks []Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Bids(), m.book.Asks()
}

// Config carries the static market setup for an Engine.
type Config struct {
	// InitialPrices maps each traded symbol to its starting last-trade
	// price in cents. The set of keys fixes the symbol universe.
	InitialPrices map[string]int64
	MaxDepth      int
	LotSize       int64
}

// Engine admits orders, matches crosses and settles trades across a set of
// markets. Cross-symbol operations run in parallel; everything touching one
// symbol serializes on that Market's mutex.
type Engine struct {
	markets map[string]*Market
	symbols []string // sorted, for deterministic sweeps

	gate     *SessionGate
	ledger   Ledger
	trades   TradeLog
	strategy PriceStrategy
	sink     Sink
	lot      int64

	orderSeq atomic.Uint64
	tradeSeq atomic.Uint64

	now func() time.Time
}

func NewEngine(cfg Config, ledger Ledger, trades TradeLog, strategy PriceStrategy, sink Sink) (*Engine, error) {
	if len(cfg.InitialPrices) == 0 {
		return nil, fmt.Errorf("engine: no symbols configured")
	}
	if cfg.LotSize <= 0 {
		return nil, fmt.Errorf("engine: lot size must be positive, got %d", cfg.LotSize)
	}
	if ledger == nil || strategy == nil {
		return nil, fmt.Errorf("engine: ledger and strategy are required")
	}
	if trades == nil {
		trades = nopTradeLog{}
	}
	if sink == nil {
		sink = NopSink{}
	}

	e := &Engine{
		markets:  make(map[string]*Market, len(cfg.InitialPrices)),
		gate:     NewSessionGate(),
		ledger:   ledger,
		trades:   trades,
		strategy: strategy,
		sink:     sink,
		lot:      cfg.LotSize,
		now:      time.Now,
	}
	for sym, price := range cfg.InitialPrices {
		if price <= 0 {
			return nil, fmt.Errorf("engine: non-positive initial price for %s", sym)
		}
		e.markets[sym] = &Market{
			Symbol:    sym,
			book:      NewBook(sym, cfg.MaxDepth),
			lastPrice: price,
		}
		e.symbols = append(e.symbols, sym)
	}
	sort.Strings(e.symbols)
	return e, nil
}

type nopTradeLog struct{}

func (nopTradeLog) Append(Trade) {}

// Symbols returns the traded symbols in sorted order.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Market returns the aggregate for a symbol, or nil if unknown.
func (e *Engine) Market(symbol string) *Market {
	return e.markets[symbol]
}

// LastPrice returns the last-trade price for a symbol.
func (e *Engine) LastPrice(symbol string) (int64, bool) {
	m, ok := e.markets[symbol]
	if !ok {
		return 0, false
	}
	return m.LastPrice(), true
}

// LotSize returns the fixed whole-lot quantity.
func (e *Engine) LotSize() int64 { return e.lot }

// SessionState reports the gate's current state.
func (e *Engine) SessionState() SessionState { return e.gate.State() }

// OpenSession permits admissions. Returns false if already open.
func (e *Engine) OpenSession() bool { return e.gate.Open() }

// CloseSession denies further admissions and cancels every resting order on
// every book, emitting one OrderCanceled per order. Returns false if the
// session was already closed.
func (e *Engine) CloseSession() bool {
	if !e.gate.Close() {
		return false
	}
	for _, sym := range e.symbols {
		m := e.markets[sym]
		m.mu.Lock()
		canceled := m.book.CancelAll()
		for _, o := range canceled {
			e.sink.Publish(OrderCanceled{Order: *o, Reason: SessionClosed})
		}
		m.mu.Unlock()
	}
	return true
}

// Admit runs the full admission pipeline for one lot: session gate, symbol
// lookup, reference price, solvency, insertion with depth-cap enforcement,
// then the match loop. The gate is checked first so a closed session rejects
// before any order validation, and re-checked under the market lock so a
// concurrent CloseSession cannot strand a resting order.
func (e *Engine) Admit(traderID string, side Side, symbol string) Result {
	if !e.gate.IsOpen() {
		return e.reject(traderID, side, symbol, MarketClosed)
	}
	if side != Buy && side != Sell {
		return e.reject(traderID, side, symbol, InvalidOrder)
	}
	m, ok := e.markets[symbol]
	if !ok {
		return e.reject(traderID, side, symbol, InvalidOrder)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !e.gate.IsOpen() {
		return e.reject(traderID, side, symbol, MarketClosed)
	}

	price := e.strategy.Select(m.book.Quote(m.lastPrice))
	if price <= 0 {
		return e.reject(traderID, side, symbol, InvalidOrder)
	}

	if !e.ledger.CanCover(traderID, side, symbol, price, e.lot) {
		reason := InsufficientCash
		if side == Sell {
			reason = InsufficientPosition
		}
		return e.reject(traderID, side, symbol, reason)
	}

	seq := e.orderSeq.Add(1)
	o := &Order{
		ID:       seq,
		TraderID: traderID,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Qty:      e.lot,
		Seq:      seq,
	}

	evicted := m.book.Insert(o)
	e.sink.Publish(OrderAdmitted{Order: *o})
	if evicted != nil {
		e.sink.Publish(OrderEvicted{Order: *evicted, Reason: DepthExceeded})
	}

	e.matchLocked(m)

	return Result{Admitted: true, OrderID: o.ID}
}

func (e *Engine) reject(traderID string, side Side, symbol string, reason RejectReason) Result {
	e.sink.Publish(AdmissionRejected{TraderID: traderID, Symbol: symbol, Side: side, Reason: reason})
	return Result{Reason: reason}
}

// RunMatchPass resolves any crosses on a symbol's book. Idempotent: a
// redundant call on a non-crossed book is a no-op. Returns the number of
// trades executed.
func (e *Engine) RunMatchPass(symbol string) int {
	m, ok := e.markets[symbol]
	if !ok {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.matchLocked(m)
}

// matchLocked drains crosses from m's book. Caller holds m.mu. Each trade
// executes at the bid/ask midpoint for the full lot, settles both accounts
// in one Ledger call, moves the last-trade price and appends to the journal.
func (e *Engine) matchLocked(m *Market) int {
	n := 0
	for {
		bid, ask := m.book.BestBid(), m.book.BestAsk()
		if bid == nil || ask == nil || bid.Price < ask.Price {
			return n
		}

		price := (bid.Price + ask.Price) / 2
		qty := bid.Qty

		e.ledger.Settle(bid.TraderID, ask.TraderID, m.Symbol, price, qty)
		m.book.RemoveBest()
		m.lastPrice = price

		t := Trade{
			Seq:          e.tradeSeq.Add(1),
			Symbol:       m.Symbol,
			Price:        price,
			Qty:          qty,
			BuyOrderID:   bid.ID,
			SellOrderID:  ask.ID,
			BuyTraderID:  bid.TraderID,
			SellTraderID: ask.TraderID,
			ExecutedAt:   e.now().UnixMilli(),
		}
		e.trades.Append(t)
		e.sink.Publish(TradeExecuted{Trade: t})
		n++
	}
}
