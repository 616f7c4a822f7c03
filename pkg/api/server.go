// Package api exposes the exchange over REST and WebSocket. It is a pure
// read/control surface: orders enter through the simulation driver, not
// through HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"bourse/pkg/exchange"
	"bourse/pkg/exchange/account"
	"bourse/pkg/exchange/journal"
)

// Server handles REST API and WebSocket connections. It also implements
// exchange.Sink, relaying engine events to channel subscribers.
type Server struct {
	engine   *exchange.Engine
	accounts *account.Manager
	trades   journal.Journal
	router   *mux.Router
	hub      *Hub
	sugar    *zap.SugaredLogger
}

func NewServer(engine *exchange.Engine, accounts *account.Manager, trades journal.Journal, sugar *zap.SugaredLogger) *Server {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	s := &Server{
		engine:   engine,
		accounts: accounts,
		trades:   trades,
		router:   mux.NewRouter(),
		hub:      NewHub(sugar),
		sugar:    sugar,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/accounts/{trader}", s.handleGetAccount).Methods("GET")

	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session/open", s.handleOpenSession).Methods("POST")
	api.HandleFunc("/session/close", s.handleCloseSession).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.sugar.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	symbols := s.engine.Symbols()
	response := make([]MarketInfo, 0, len(symbols))
	for _, sym := range symbols {
		response = append(response, s.marketInfo(sym))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if s.engine.Market(symbol) == nil {
		respondError(w, http.StatusNotFound, "market not found", symbol)
		return
	}
	respondJSON(w, s.marketInfo(symbol))
}

func (s *Server) marketInfo(symbol string) MarketInfo {
	m := s.engine.Market(symbol)
	bids, asks := m.Depth()
	return MarketInfo{
		Symbol:    symbol,
		LastPrice: m.LastPrice(),
		BidDepth:  bids,
		AskDepth:  asks,
	}
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m := s.engine.Market(symbol)
	if m == nil {
		respondError(w, http.StatusNotFound, "market not found", symbol)
		return
	}

	bids, asks := m.Snapshot()
	respondJSON(w, BookSnapshot{
		Symbol:    symbol,
		Bids:      ordersToInfo(bids),
		Asks:      ordersToInfo(asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if s.engine.Market(symbol) == nil {
		respondError(w, http.StatusNotFound, "market not found", symbol)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	recent := s.trades.Recent(symbol, limit)
	response := make([]TradeInfo, 0, len(recent))
	for _, t := range recent {
		response = append(response, tradeToInfo(t))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	trader := mux.Vars(r)["trader"]
	acc := s.accounts.Get(trader)
	if acc == nil {
		respondError(w, http.StatusNotFound, "account not found", trader)
		return
	}
	respondJSON(w, AccountInfo{
		TraderID:  acc.TraderID,
		Cash:      acc.Cash,
		Positions: acc.Positions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, SessionInfo{State: s.engine.SessionState().String()})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	changed := s.engine.OpenSession()
	s.sugar.Infow("session_open_requested", "changed", changed)
	respondJSON(w, SessionInfo{State: s.engine.SessionState().String()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	changed := s.engine.CloseSession()
	s.sugar.Infow("session_close_requested", "changed", changed)
	respondJSON(w, SessionInfo{State: s.engine.SessionState().String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Event sink
// ==============================

// Publish implements exchange.Sink: engine events fan out to WebSocket
// channels "trades:{symbol}" and "orders:{symbol}". Called with the
// symbol's market lock held, so it must not call back into the engine;
// hub broadcast is a non-blocking buffered send.
func (s *Server) Publish(e exchange.Event) {
	switch ev := e.(type) {
	case exchange.TradeExecuted:
		s.hub.BroadcastToChannel("trades:"+ev.Trade.Symbol, TradeUpdate{
			Type:  "trade",
			Trade: tradeToInfo(ev.Trade),
		})
	case exchange.OrderAdmitted:
		s.broadcastOrder("admitted", ev.Order, "")
	case exchange.OrderEvicted:
		s.broadcastOrder("evicted", ev.Order, ev.Reason.String())
	case exchange.OrderCanceled:
		s.broadcastOrder("canceled", ev.Order, ev.Reason.String())
	case exchange.AdmissionRejected:
		s.hub.BroadcastToChannel("orders:"+ev.Symbol, OrderUpdate{
			Type:   "rejected",
			Symbol: ev.Symbol,
			Trader: ev.TraderID,
			Reason: ev.Reason.String(),
		})
	}
}

func (s *Server) broadcastOrder(typ string, o exchange.Order, reason string) {
	info := orderToInfo(o)
	s.hub.BroadcastToChannel("orders:"+o.Symbol, OrderUpdate{
		Type:   typ,
		Symbol: o.Symbol,
		Order:  &info,
		Trader: o.TraderID,
		Reason: reason,
	})
}

// ==============================
// Helpers
// ==============================

func orderToInfo(o exchange.Order) OrderInfo {
	return OrderInfo{
		ID:     o.ID,
		Trader: o.TraderID,
		Side:   o.Side.String(),
		Price:  o.Price,
		Qty:    o.Qty,
	}
}

func ordersToInfo(orders []exchange.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderToInfo(o)
	}
	return out
}

func tradeToInfo(t exchange.Trade) TradeInfo {
	return TradeInfo{
		Seq:       t.Seq,
		Symbol:    t.Symbol,
		Price:     t.Price,
		Qty:       t.Qty,
		Buyer:     t.BuyTraderID,
		Seller:    t.SellTraderID,
		Timestamp: t.ExecutedAt,
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
