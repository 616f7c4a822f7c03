// Package journal provides the append-only trade log the engine writes and
// reporting reads. Two implementations: in-memory for tests and single-run
// reporting, Pebble-backed when the session's audit trail should outlive
// the process.
package journal

import (
	"sync"

	"bourse/pkg/exchange"
)

// Journal records executed trades in sequence order. Append must be safe
// for concurrent use; the engine calls it from per-symbol match loops.
type Journal interface {
	exchange.TradeLog

	// All returns every recorded trade in append order.
	All() []exchange.Trade

	// Recent returns up to n most recent trades for a symbol, oldest first.
	Recent(symbol string, n int) []exchange.Trade

	Len() int
}

// Memory is an in-process journal.
type Memory struct {
	mu     sync.RWMutex
	trades []exchange.Trade
}

func NewMemory() *Memory {
	return &Memory{}
}

func (j *Memory) Append(t exchange.Trade) {
	j.mu.Lock()
	j.trades = append(j.trades, t)
	j.mu.Unlock()
}

func (j *Memory) All() []exchange.Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]exchange.Trade, len(j.trades))
	copy(out, j.trades)
	return out
}

func (j *Memory) Recent(symbol string, n int) []exchange.Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []exchange.Trade
	for i := len(j.trades) - 1; i >= 0 && len(out) < n; i-- {
		if j.trades[i].Symbol == symbol {
			out = append(out, j.trades[i])
		}
	}
	// reverse to oldest-first
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out
}

func (j *Memory) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.trades)
}
