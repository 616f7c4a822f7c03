package journal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"bourse/pkg/exchange"
)

const prefixTrade = "trade:"

// tradeKey returns the key for a trade.
// Format: "trade:{seq}" with the sequence zero-padded so lexicographic
// order is append order.
func tradeKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTrade, seq))
}

func tradePrefix() []byte {
	return []byte(prefixTrade)
}

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Pebble is a durable journal. Writes are synced; a write failure is logged
// and the trade is still kept in memory so in-session reporting never loses
// a fact the books already reflect.
type Pebble struct {
	mu     sync.RWMutex
	db     *pebble.DB
	trades []exchange.Trade
	sugar  *zap.SugaredLogger
}

func NewPebble(dbPath string, sugar *zap.SugaredLogger) (*Pebble, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	opts := &pebble.Options{
		Cache:                 pebble.NewCache(32 << 20), // 32MB cache
		MemTableSize:          16 << 20,                  // 16MB memtable
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Pebble{db: db, sugar: sugar}, nil
}

func (j *Pebble) Close() error {
	return j.db.Close()
}

func (j *Pebble) Append(t exchange.Trade) {
	j.mu.Lock()
	j.trades = append(j.trades, t)
	j.mu.Unlock()

	data, err := json.Marshal(t)
	if err != nil {
		j.sugar.Errorw("trade_marshal_failed", "trade_seq", t.Seq, "err", err)
		return
	}
	if err := j.db.Set(tradeKey(t.Seq), data, pebble.Sync); err != nil {
		j.sugar.Errorw("trade_persist_failed", "trade_seq", t.Seq, "err", err)
	}
}

func (j *Pebble) All() []exchange.Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]exchange.Trade, len(j.trades))
	copy(out, j.trades)
	return out
}

func (j *Pebble) Recent(symbol string, n int) []exchange.Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []exchange.Trade
	for i := len(j.trades) - 1; i >= 0 && len(out) < n; i-- {
		if j.trades[i].Symbol == symbol {
			out = append(out, j.trades[i])
		}
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out
}

func (j *Pebble) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.trades)
}

// Replay loads every persisted trade in sequence order, for inspecting a
// previous session's audit trail.
func (j *Pebble) Replay() ([]exchange.Trade, error) {
	prefix := tradePrefix()
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var trades []exchange.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var t exchange.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue // skip invalid entries
		}
		trades = append(trades, t)
	}
	return trades, nil
}
