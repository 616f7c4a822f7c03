package exchange

import "go.uber.org/zap"

// Event is the structured fact stream the engine emits. Rendering is a
// collaborator concern; the engine never formats strings.
type Event interface {
	isEvent()
}

type EvictReason uint8

const (
	DepthExceeded EvictReason = iota
)

func (r EvictReason) String() string {
	if r == DepthExceeded {
		return "depth_exceeded"
	}
	return "unknown"
}

type CancelReason uint8

const (
	SessionClosed CancelReason = iota
)

func (r CancelReason) String() string {
	if r == SessionClosed {
		return "session_closed"
	}
	return "unknown"
}

type OrderAdmitted struct {
	Order Order
}

type AdmissionRejected struct {
	TraderID string
	Symbol   string
	Side     Side
	Reason   RejectReason
}

// OrderEvicted is emitted when a side exceeds its depth cap and the
// worst-priority order is dropped. Not an error.
type OrderEvicted struct {
	Order  Order
	Reason EvictReason
}

type OrderCanceled struct {
	Order  Order
	Reason CancelReason
}

type TradeExecuted struct {
	Trade Trade
}

func (OrderAdmitted) isEvent()     {}
func (AdmissionRejected) isEvent() {}
func (OrderEvicted) isEvent()      {}
func (OrderCanceled) isEvent()     {}
func (TradeExecuted) isEvent()     {}

// Sink receives engine events. Publish is called with the originating
// symbol's lock held, so implementations must not call back into the engine.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans events out to every registered sink in order.
type MultiSink []Sink

func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// LogSink renders events as structured log lines. It is the default
// narration collaborator wired in cmd/bourse.
type LogSink struct {
	Sugar *zap.SugaredLogger
}

func (l LogSink) Publish(e Event) {
	switch ev := e.(type) {
	case OrderAdmitted:
		l.Sugar.Infow("order_admitted",
			"order_id", ev.Order.ID,
			"trader", ev.Order.TraderID,
			"symbol", ev.Order.Symbol,
			"side", ev.Order.Side.String(),
			"price_cents", ev.Order.Price,
			"qty", ev.Order.Qty)
	case AdmissionRejected:
		l.Sugar.Infow("admission_rejected",
			"trader", ev.TraderID,
			"symbol", ev.Symbol,
			"side", ev.Side.String(),
			"reason", ev.Reason.String())
	case OrderEvicted:
		l.Sugar.Infow("order_evicted",
			"order_id", ev.Order.ID,
			"trader", ev.Order.TraderID,
			"symbol", ev.Order.Symbol,
			"reason", ev.Reason.String())
	case OrderCanceled:
		l.Sugar.Infow("order_canceled",
			"order_id", ev.Order.ID,
			"trader", ev.Order.TraderID,
			"symbol", ev.Order.Symbol,
			"reason", ev.Reason.String())
	case TradeExecuted:
		l.Sugar.Infow("trade_executed",
			"trade_seq", ev.Trade.Seq,
			"symbol", ev.Trade.Symbol,
			"price_cents", ev.Trade.Price,
			"qty", ev.Trade.Qty,
			"buyer", ev.Trade.BuyTraderID,
			"seller", ev.Trade.SellTraderID)
	}
}
