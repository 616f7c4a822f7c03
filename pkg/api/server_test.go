package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bourse/pkg/exchange"
	"bourse/pkg/exchange/account"
	"bourse/pkg/exchange/journal"
)

func newTestServer(t *testing.T) (*Server, *account.Manager, *journal.Memory) {
	t.Helper()
	accounts := account.NewManager(nil, nil)
	trades := journal.NewMemory()
	engine, err := exchange.NewEngine(exchange.Config{
		InitialPrices: map[string]int64{"AAPL": 120_00, "GOOG": 140_00},
		MaxDepth:      5,
		LotSize:       1000,
	}, accounts, trades, exchange.StrategyFunc(func(q exchange.Quote) int64 {
		return q.Mid
	}), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewServer(engine, accounts, trades, nil), accounts, trades
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetMarkets(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, "GET", "/api/v1/markets")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var markets []MarketInfo
	decode(t, rec, &markets)
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}
	// sorted symbol order
	if markets[0].Symbol != "AAPL" || markets[1].Symbol != "GOOG" {
		t.Errorf("symbols = %s, %s", markets[0].Symbol, markets[1].Symbol)
	}
	if markets[0].LastPrice != 120_00 {
		t.Errorf("AAPL last price = %d", markets[0].LastPrice)
	}
}

func TestGetMarketNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/markets/MSFT",
		"/api/v1/markets/MSFT/book",
		"/api/v1/markets/MSFT/trades",
		"/api/v1/accounts/ghost",
	} {
		rec := doRequest(t, s, "GET", path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
		var e ErrorResponse
		decode(t, rec, &e)
		if e.Error == "" {
			t.Errorf("%s: empty error field", path)
		}
	}
}

func TestGetBook(t *testing.T) {
	s, accounts, _ := newTestServer(t)
	if err := accounts.Create("t1", 10_000_000_00, nil); err != nil {
		t.Fatal(err)
	}
	s.engine.OpenSession()
	if r := s.engine.Admit("t1", exchange.Buy, "AAPL"); !r.Admitted {
		t.Fatalf("admission rejected: %s", r.Reason)
	}

	rec := doRequest(t, s, "GET", "/api/v1/markets/AAPL/book")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var book BookSnapshot
	decode(t, rec, &book)
	if book.Symbol != "AAPL" {
		t.Errorf("symbol = %s", book.Symbol)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 0 {
		t.Fatalf("book depth = %d/%d, want 1/0", len(book.Bids), len(book.Asks))
	}
	if book.Bids[0].Trader != "t1" || book.Bids[0].Side != "buy" || book.Bids[0].Qty != 1000 {
		t.Errorf("bid = %+v", book.Bids[0])
	}
}

func TestGetTradesLimit(t *testing.T) {
	s, _, trades := newTestServer(t)
	for i := 1; i <= 10; i++ {
		trades.Append(exchange.Trade{Seq: uint64(i), Symbol: "AAPL", Price: 120_00, Qty: 1000})
	}

	rec := doRequest(t, s, "GET", "/api/v1/markets/AAPL/trades?limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out []TradeInfo
	decode(t, rec, &out)
	if len(out) != 3 {
		t.Fatalf("got %d trades, want 3", len(out))
	}
	// oldest first within the window
	if out[0].Seq != 8 || out[2].Seq != 10 {
		t.Errorf("window = %d..%d, want 8..10", out[0].Seq, out[2].Seq)
	}
}

func TestGetAccount(t *testing.T) {
	s, accounts, _ := newTestServer(t)
	if err := accounts.Create("t1", 500_00, map[string]int64{"AAPL": 2000}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, "GET", "/api/v1/accounts/t1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var acc AccountInfo
	decode(t, rec, &acc)
	if acc.TraderID != "t1" || acc.Cash != 500_00 || acc.Positions["AAPL"] != 2000 {
		t.Errorf("account = %+v", acc)
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	var info SessionInfo
	decode(t, doRequest(t, s, "GET", "/api/v1/session"), &info)
	if info.State != "closed" {
		t.Errorf("initial state = %s, want closed", info.State)
	}

	decode(t, doRequest(t, s, "POST", "/api/v1/session/open"), &info)
	if info.State != "open" {
		t.Errorf("state after open = %s", info.State)
	}

	decode(t, doRequest(t, s, "POST", "/api/v1/session/close"), &info)
	if info.State != "closed" {
		t.Errorf("state after close = %s", info.State)
	}

	// GET on a POST-only route is not allowed
	if rec := doRequest(t, s, "GET", "/api/v1/session/open"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /session/open status = %d, want 405", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, "GET", "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}
