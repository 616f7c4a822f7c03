package exchange_test

import (
	"sync"
	"testing"

	"bourse/pkg/exchange"
	"bourse/pkg/exchange/account"
	"bourse/pkg/exchange/journal"
)

// scriptStrategy replays a fixed price sequence, one entry per admission.
type scriptStrategy struct {
	prices []int64
	i      int
}

func (s *scriptStrategy) Select(exchange.Quote) int64 {
	if s.i >= len(s.prices) {
		panic("script strategy exhausted")
	}
	p := s.prices[s.i]
	s.i++
	return p
}

// collectSink records every published event for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []exchange.Event
}

func (c *collectSink) Publish(e exchange.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collectSink) byType() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for _, e := range c.events {
		switch e.(type) {
		case exchange.OrderAdmitted:
			out["admitted"]++
		case exchange.AdmissionRejected:
			out["rejected"]++
		case exchange.OrderEvicted:
			out["evicted"]++
		case exchange.OrderCanceled:
			out["canceled"]++
		case exchange.TradeExecuted:
			out["trade"]++
		}
	}
	return out
}

type fixture struct {
	engine   *exchange.Engine
	accounts *account.Manager
	trades   *journal.Memory
	sink     *collectSink
}

func newFixture(t *testing.T, strategy exchange.PriceStrategy, prices map[string]int64) *fixture {
	t.Helper()
	accounts := account.NewManager(nil, nil)
	trades := journal.NewMemory()
	sink := &collectSink{}
	engine, err := exchange.NewEngine(exchange.Config{
		InitialPrices: prices,
		MaxDepth:      5,
		LotSize:       1000,
	}, accounts, trades, strategy, sink)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &fixture{engine: engine, accounts: accounts, trades: trades, sink: sink}
}

func fund(t *testing.T, m *account.Manager, traderID string, cash int64, positions map[string]int64) {
	t.Helper()
	if err := m.Create(traderID, cash, positions); err != nil {
		t.Fatalf("create %s: %v", traderID, err)
	}
}

func TestCrossExecutesAtMidpoint(t *testing.T) {
	// bid 126.00, ask 114.00 around a 120.00 market: trade at 120.00
	strat := &scriptStrategy{prices: []int64{126_00, 114_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "buyer", 1_000_000_00, nil)
	fund(t, f.accounts, "seller", 0, map[string]int64{"AAPL": 5000})
	f.engine.OpenSession()

	if r := f.engine.Admit("buyer", exchange.Buy, "AAPL"); !r.Admitted {
		t.Fatalf("buy rejected: %s", r.Reason)
	}
	if r := f.engine.Admit("seller", exchange.Sell, "AAPL"); !r.Admitted {
		t.Fatalf("sell rejected: %s", r.Reason)
	}

	all := f.trades.All()
	if len(all) != 1 {
		t.Fatalf("got %d trades, want 1", len(all))
	}
	tr := all[0]
	if tr.Price != 120_00 {
		t.Errorf("trade price = %d, want 12000", tr.Price)
	}
	if tr.Qty != 1000 {
		t.Errorf("trade qty = %d, want 1000", tr.Qty)
	}
	if tr.BuyTraderID != "buyer" || tr.SellTraderID != "seller" {
		t.Errorf("counterparties = %s/%s", tr.BuyTraderID, tr.SellTraderID)
	}

	// settlement: buyer pays 120.00 * 1000, seller delivers 1000 shares
	if got := f.accounts.Cash("buyer"); got != 1_000_000_00-120_00*1000 {
		t.Errorf("buyer cash = %d", got)
	}
	if got := f.accounts.Position("buyer", "AAPL"); got != 1000 {
		t.Errorf("buyer position = %d, want 1000", got)
	}
	if got := f.accounts.Cash("seller"); got != 120_00*1000 {
		t.Errorf("seller cash = %d", got)
	}
	if got := f.accounts.Position("seller", "AAPL"); got != 4000 {
		t.Errorf("seller position = %d, want 4000", got)
	}

	// last-trade price moved to the execution price
	if p, _ := f.engine.LastPrice("AAPL"); p != 120_00 {
		t.Errorf("last price = %d, want 12000", p)
	}

	// both tops consumed
	if bids, asks := f.engine.Market("AAPL").Depth(); bids != 0 || asks != 0 {
		t.Errorf("book not empty after match: %d bids, %d asks", bids, asks)
	}
}

func TestNoCrossLeavesBookResting(t *testing.T) {
	strat := &scriptStrategy{prices: []int64{114_00, 126_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "buyer", 1_000_000_00, nil)
	fund(t, f.accounts, "seller", 0, map[string]int64{"AAPL": 5000})
	f.engine.OpenSession()

	f.engine.Admit("buyer", exchange.Buy, "AAPL")
	f.engine.Admit("seller", exchange.Sell, "AAPL")

	if n := f.trades.Len(); n != 0 {
		t.Fatalf("got %d trades, want 0", n)
	}
	if bids, asks := f.engine.Market("AAPL").Depth(); bids != 1 || asks != 1 {
		t.Errorf("depth = %d/%d, want 1/1", bids, asks)
	}
	if n := f.engine.RunMatchPass("AAPL"); n != 0 {
		t.Errorf("match pass on uncrossed book executed %d trades", n)
	}
}

func TestRejectionReasons(t *testing.T) {
	strat := &scriptStrategy{prices: []int64{126_00, 126_00, 126_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "rich", 1_000_000_00, map[string]int64{"AAPL": 5000})
	fund(t, f.accounts, "broke", 100, nil)

	// session closed
	if r := f.engine.Admit("rich", exchange.Buy, "AAPL"); r.Admitted || r.Reason != exchange.MarketClosed {
		t.Errorf("closed session: got %+v, want MarketClosed", r)
	}

	// a closed session wins over symbol validation
	if r := f.engine.Admit("rich", exchange.Buy, "TSLA"); r.Admitted || r.Reason != exchange.MarketClosed {
		t.Errorf("closed session, unknown symbol: got %+v, want MarketClosed", r)
	}

	f.engine.OpenSession()

	// unknown symbol
	if r := f.engine.Admit("rich", exchange.Buy, "TSLA"); r.Admitted || r.Reason != exchange.InvalidOrder {
		t.Errorf("unknown symbol: got %+v, want InvalidOrder", r)
	}

	// buy without cash for one lot
	if r := f.engine.Admit("broke", exchange.Buy, "AAPL"); r.Admitted || r.Reason != exchange.InsufficientCash {
		t.Errorf("broke buy: got %+v, want InsufficientCash", r)
	}

	// sell without shares
	if r := f.engine.Admit("broke", exchange.Sell, "AAPL"); r.Admitted || r.Reason != exchange.InsufficientPosition {
		t.Errorf("broke sell: got %+v, want InsufficientPosition", r)
	}

	// unknown trader is never solvent
	if r := f.engine.Admit("ghost", exchange.Buy, "AAPL"); r.Admitted || r.Reason != exchange.InsufficientCash {
		t.Errorf("unknown trader: got %+v, want InsufficientCash", r)
	}

	counts := f.sink.byType()
	if counts["rejected"] != 6 {
		t.Errorf("rejection events = %d, want 6", counts["rejected"])
	}
	if counts["admitted"] != 0 {
		t.Errorf("admitted events = %d, want 0", counts["admitted"])
	}
}

func TestDepthCapEmitsSingleEviction(t *testing.T) {
	// 6 buys at strictly increasing prices, no sells: one eviction, depth 5
	strat := &scriptStrategy{prices: []int64{110_00, 111_00, 112_00, 113_00, 114_00, 115_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "rich", 100_000_000_00, nil)
	f.engine.OpenSession()

	for i := 0; i < 6; i++ {
		if r := f.engine.Admit("rich", exchange.Buy, "AAPL"); !r.Admitted {
			t.Fatalf("admission %d rejected: %s", i, r.Reason)
		}
	}

	counts := f.sink.byType()
	if counts["admitted"] != 6 {
		t.Errorf("admitted events = %d, want 6", counts["admitted"])
	}
	if counts["evicted"] != 1 {
		t.Errorf("evicted events = %d, want 1", counts["evicted"])
	}
	if bids, _ := f.engine.Market("AAPL").Depth(); bids != 5 {
		t.Errorf("bid depth = %d, want 5", bids)
	}

	// the lowest-priced bid is the one that went
	for _, e := range f.sink.events {
		if ev, ok := e.(exchange.OrderEvicted); ok {
			if ev.Order.Price != 110_00 {
				t.Errorf("evicted price = %d, want 11000", ev.Order.Price)
			}
			if ev.Reason != exchange.DepthExceeded {
				t.Errorf("evict reason = %s", ev.Reason)
			}
		}
	}
}

func TestTieBreakBySequence(t *testing.T) {
	// two bids at the same price, then a crossing ask: the earlier bid fills
	strat := &scriptStrategy{prices: []int64{126_00, 126_00, 110_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "first", 1_000_000_00, nil)
	fund(t, f.accounts, "second", 1_000_000_00, nil)
	fund(t, f.accounts, "seller", 0, map[string]int64{"AAPL": 5000})
	f.engine.OpenSession()

	f.engine.Admit("first", exchange.Buy, "AAPL")
	f.engine.Admit("second", exchange.Buy, "AAPL")
	f.engine.Admit("seller", exchange.Sell, "AAPL")

	all := f.trades.All()
	if len(all) != 1 {
		t.Fatalf("got %d trades, want 1", len(all))
	}
	if all[0].BuyTraderID != "first" {
		t.Errorf("filled buyer = %s, want first", all[0].BuyTraderID)
	}
	if all[0].Price != (126_00+110_00)/2 {
		t.Errorf("trade price = %d, want %d", all[0].Price, (126_00+110_00)/2)
	}
}

func TestMatchDrainsMultipleCrosses(t *testing.T) {
	// two resting asks, then one bid priced over both: only the top pair
	// crosses per admission since each admission adds a single lot, so set
	// up two bids first and let one deep ask cross only the best bid.
	strat := &scriptStrategy{prices: []int64{120_00, 122_00, 118_00, 119_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "b1", 1_000_000_00, nil)
	fund(t, f.accounts, "b2", 1_000_000_00, nil)
	fund(t, f.accounts, "s1", 0, map[string]int64{"AAPL": 5000})
	fund(t, f.accounts, "s2", 0, map[string]int64{"AAPL": 5000})
	f.engine.OpenSession()

	f.engine.Admit("b1", exchange.Buy, "AAPL")  // bid 120.00
	f.engine.Admit("b2", exchange.Buy, "AAPL")  // bid 122.00
	f.engine.Admit("s1", exchange.Sell, "AAPL") // ask 118.00, crosses 122.00
	// first cross resolved immediately at (122+118)/2 = 120.00
	if n := f.trades.Len(); n != 1 {
		t.Fatalf("after first cross: %d trades, want 1", n)
	}
	f.engine.Admit("s2", exchange.Sell, "AAPL") // ask 119.00, crosses 120.00

	all := f.trades.All()
	if len(all) != 2 {
		t.Fatalf("got %d trades, want 2", len(all))
	}
	if all[0].Price != 120_00 {
		t.Errorf("first trade price = %d, want 12000", all[0].Price)
	}
	if all[1].Price != (120_00+119_00)/2 {
		t.Errorf("second trade price = %d, want %d", all[1].Price, (120_00+119_00)/2)
	}
	if all[1].Seq != all[0].Seq+1 {
		t.Errorf("trade seqs not consecutive: %d then %d", all[0].Seq, all[1].Seq)
	}

	// no cross remains
	if n := f.engine.RunMatchPass("AAPL"); n != 0 {
		t.Errorf("redundant match pass executed %d trades", n)
	}
}

func TestConservationAcrossSession(t *testing.T) {
	strat := exchange.NewRandomStrategy(11)
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00, "GOOG": 140_00})
	fund(t, f.accounts, "a", 500_000_00, map[string]int64{"AAPL": 10_000, "GOOG": 10_000})
	fund(t, f.accounts, "b", 500_000_00, map[string]int64{"AAPL": 10_000, "GOOG": 10_000})
	fund(t, f.accounts, "c", 500_000_00, map[string]int64{"AAPL": 10_000, "GOOG": 10_000})

	cashBefore := f.accounts.TotalCash()
	sharesBefore := map[string]int64{
		"AAPL": f.accounts.TotalShares("AAPL"),
		"GOOG": f.accounts.TotalShares("GOOG"),
	}

	f.engine.OpenSession()
	traders := []string{"a", "b", "c"}
	symbols := []string{"AAPL", "GOOG"}
	for i := 0; i < 200; i++ {
		side := exchange.Buy
		if i%2 == 1 {
			side = exchange.Sell
		}
		f.engine.Admit(traders[i%3], side, symbols[i%2])
	}
	f.engine.CloseSession()

	if got := f.accounts.TotalCash(); got != cashBefore {
		t.Errorf("total cash drifted: %d -> %d", cashBefore, got)
	}
	for sym, want := range sharesBefore {
		if got := f.accounts.TotalShares(sym); got != want {
			t.Errorf("total %s shares drifted: %d -> %d", sym, want, got)
		}
	}
	if f.trades.Len() == 0 {
		t.Error("expected some trades from 200 admissions")
	}
}

func TestCloseSessionCancelsAllResting(t *testing.T) {
	// park non-crossing orders on two symbols, then close
	strat := &scriptStrategy{prices: []int64{110_00, 130_00, 130_00, 150_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00, "GOOG": 140_00})
	fund(t, f.accounts, "a", 10_000_000_00, map[string]int64{"AAPL": 5000, "GOOG": 5000})
	f.engine.OpenSession()

	f.engine.Admit("a", exchange.Buy, "AAPL")
	f.engine.Admit("a", exchange.Sell, "AAPL")
	f.engine.Admit("a", exchange.Buy, "GOOG")
	f.engine.Admit("a", exchange.Sell, "GOOG")

	if !f.engine.CloseSession() {
		t.Fatal("CloseSession returned false on open session")
	}
	if f.engine.CloseSession() {
		t.Error("second CloseSession returned true")
	}

	counts := f.sink.byType()
	if counts["canceled"] != 4 {
		t.Errorf("canceled events = %d, want 4", counts["canceled"])
	}
	for _, sym := range f.engine.Symbols() {
		if bids, asks := f.engine.Market(sym).Depth(); bids != 0 || asks != 0 {
			t.Errorf("%s book not empty: %d/%d", sym, bids, asks)
		}
	}
	for _, e := range f.sink.events {
		if ev, ok := e.(exchange.OrderCanceled); ok && ev.Reason != exchange.SessionClosed {
			t.Errorf("cancel reason = %s, want session_closed", ev.Reason)
		}
	}

	// gate is repeatable: a new session admits again
	f.engine.OpenSession()
	strat.prices = append(strat.prices, 110_00)
	if r := f.engine.Admit("a", exchange.Buy, "AAPL"); !r.Admitted {
		t.Errorf("admission after reopen rejected: %s", r.Reason)
	}
}

func TestOrderIDsAndSeqsIncrease(t *testing.T) {
	strat := &scriptStrategy{prices: []int64{110_00, 111_00, 112_00}}
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
	fund(t, f.accounts, "a", 10_000_000_00, nil)
	f.engine.OpenSession()

	var ids []uint64
	for i := 0; i < 3; i++ {
		r := f.engine.Admit("a", exchange.Buy, "AAPL")
		if !r.Admitted {
			t.Fatalf("admission %d rejected: %s", i, r.Reason)
		}
		ids = append(ids, r.OrderID)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("order IDs not increasing: %v", ids)
		}
	}
}

func TestConcurrentAdmissionsAndSessionCycles(t *testing.T) {
	strat := exchange.NewRandomStrategy(17)
	f := newFixture(t, strat, map[string]int64{"AAPL": 120_00, "GOOG": 140_00})
	traders := []string{"a", "b", "c", "d"}
	for _, id := range traders {
		fund(t, f.accounts, id, 500_000_00, map[string]int64{"AAPL": 10_000, "GOOG": 10_000})
	}

	cashBefore := f.accounts.TotalCash()
	sharesBefore := map[string]int64{
		"AAPL": f.accounts.TotalShares("AAPL"),
		"GOOG": f.accounts.TotalShares("GOOG"),
	}

	f.engine.OpenSession()

	symbols := []string{"AAPL", "GOOG"}
	var wg sync.WaitGroup

	// admitters hammer both symbols with shared traders
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				side := exchange.Buy
				if (g+i)%2 == 1 {
					side = exchange.Sell
				}
				f.engine.Admit(traders[(g+i)%len(traders)], side, symbols[i%2])
			}
		}(g)
	}

	// meanwhile the session gate cycles under them
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			f.engine.CloseSession()
			f.engine.OpenSession()
		}
	}()

	wg.Wait()
	f.engine.CloseSession()

	// no order rests on a closed book
	for _, sym := range symbols {
		if bids, asks := f.engine.Market(sym).Depth(); bids != 0 || asks != 0 {
			t.Errorf("%s book not empty after final close: %d/%d", sym, bids, asks)
		}
	}

	// trades and cancellations conserve cash and shares
	if got := f.accounts.TotalCash(); got != cashBefore {
		t.Errorf("total cash drifted: %d -> %d", cashBefore, got)
	}
	for sym, want := range sharesBefore {
		if got := f.accounts.TotalShares(sym); got != want {
			t.Errorf("total %s shares drifted: %d -> %d", sym, want, got)
		}
	}
}

func TestDeterministicWithFixedSeed(t *testing.T) {
	run := func() []exchange.Trade {
		strat := exchange.NewRandomStrategy(42)
		f := newFixture(t, strat, map[string]int64{"AAPL": 120_00})
		fund(t, f.accounts, "a", 500_000_00, map[string]int64{"AAPL": 10_000})
		fund(t, f.accounts, "b", 500_000_00, map[string]int64{"AAPL": 10_000})
		f.engine.OpenSession()
		for i := 0; i < 100; i++ {
			side := exchange.Buy
			if i%2 == 1 {
				side = exchange.Sell
			}
			trader := "a"
			if i%4 >= 2 {
				trader = "b"
			}
			f.engine.Admit(trader, side, "AAPL")
		}
		return f.trades.All()
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("trade counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Price != b.Price || a.Qty != b.Qty || a.BuyTraderID != b.BuyTraderID || a.SellTraderID != b.SellTraderID {
			t.Errorf("trade %d differs: %+v vs %+v", i, a, b)
		}
	}
}
