package api

// API response types for REST endpoints and WebSocket messages

// MarketInfo summarizes one symbol's market.
type MarketInfo struct {
	Symbol    string `json:"symbol"`
	LastPrice int64  `json:"lastPrice"` // cents
	BidDepth  int    `json:"bidDepth"`
	AskDepth  int    `json:"askDepth"`
}

// OrderInfo is a resting order as exposed over the API.
type OrderInfo struct {
	ID     uint64 `json:"id"`
	Trader string `json:"trader"`
	Side   string `json:"side"`
	Price  int64  `json:"price"` // cents
	Qty    int64  `json:"qty"`
}

// BookSnapshot is both sides of a book in priority order.
type BookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Bids      []OrderInfo `json:"bids"`
	Asks      []OrderInfo `json:"asks"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
}

// TradeInfo is an executed trade.
type TradeInfo struct {
	Seq       uint64 `json:"seq"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"` // cents
	Qty       int64  `json:"qty"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// AccountInfo is a trader's ledger state.
type AccountInfo struct {
	TraderID  string           `json:"traderId"`
	Cash      int64            `json:"cash"` // cents
	Positions map[string]int64 `json:"positions"`
}

// SessionInfo reports the session gate state.
type SessionInfo struct {
	State string `json:"state"` // "open" or "closed"
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed on channel "trades:{symbol}".
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// OrderUpdate is pushed on channel "orders:{symbol}" for admissions,
// rejections, evictions and cancellations.
type OrderUpdate struct {
	Type   string     `json:"type"` // "admitted", "rejected", "evicted", "canceled"
	Symbol string     `json:"symbol"`
	Order  *OrderInfo `json:"order,omitempty"`
	Trader string     `json:"trader,omitempty"`
	Reason string     `json:"reason,omitempty"`
}
