package account

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bourse/pkg/exchange"
)

// Manager owns all trader accounts behind a single mutex: a settlement
// touches buyer and seller in one critical section, so the engine never
// needs to order per-account locks. Uses in-memory state plus optional
// Pebble persistence for end-of-session inspection.
//
// Manager implements exchange.Ledger.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	store    *Store // optional
	sugar    *zap.SugaredLogger
}

func NewManager(store *Store, sugar *zap.SugaredLogger) *Manager {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return &Manager{
		accounts: make(map[string]*Account),
		store:    store,
		sugar:    sugar,
	}
}

// Close closes the underlying store if one is configured.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Create registers a trader with starting cash and holdings. Returns an
// error if the trader already exists.
func (m *Manager) Create(traderID string, cash int64, positions map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[traderID]; exists {
		return fmt.Errorf("account %s already exists", traderID)
	}

	acc := NewAccount(traderID)
	acc.Cash = cash
	for sym, shares := range positions {
		acc.Positions[sym] = shares
	}
	m.accounts[traderID] = acc
	m.persistLocked(acc)
	return nil
}

// Deposit adds cash to an account.
func (m *Manager) Deposit(traderID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[traderID]
	if !exists {
		return fmt.Errorf("account not found: %s", traderID)
	}
	acc.Cash += amount
	m.persistLocked(acc)
	return nil
}

// CanCover implements the solvency capability: a buy needs cash for one lot
// at the quoted price, a sell needs the shares.
func (m *Manager) CanCover(traderID string, side exchange.Side, symbol string, price, qty int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, exists := m.accounts[traderID]
	if !exists {
		return false
	}
	if side == exchange.Buy {
		return acc.Cash >= price*qty
	}
	return acc.Positions[symbol] >= qty
}

// Settle applies one executed trade to both parties. The cash legs sum to
// zero and the position legs sum to zero, by construction. Self-trades
// (buyer == seller) net out to no change.
func (m *Manager) Settle(buyTraderID, sellTraderID, symbol string, price, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buyer := m.getLocked(buyTraderID)
	seller := m.getLocked(sellTraderID)

	notional := price * qty
	buyer.Cash -= notional
	buyer.Positions[symbol] += qty
	seller.Cash += notional
	seller.Positions[symbol] -= qty

	m.persistLocked(buyer)
	if seller != buyer {
		m.persistLocked(seller)
	}
}

// getLocked returns the account, creating an empty one for an unknown
// trader. Settlement against an unregistered trader indicates a driver bug
// but must not corrupt the books; the empty account keeps conservation.
func (m *Manager) getLocked(traderID string) *Account {
	acc, exists := m.accounts[traderID]
	if exists {
		return acc
	}
	m.sugar.Warnw("settle_unknown_trader", "trader", traderID)
	acc = NewAccount(traderID)
	m.accounts[traderID] = acc
	return acc
}

// persistLocked writes the account through to the store. Persistence
// failures are logged and swallowed: the in-memory ledger stays
// authoritative for the session.
func (m *Manager) persistLocked(acc *Account) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveAccount(acc); err != nil {
		m.sugar.Errorw("account_persist_failed", "trader", acc.TraderID, "err", err)
	}
}

// Cash returns a trader's cash balance.
func (m *Manager) Cash(traderID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, exists := m.accounts[traderID]; exists {
		return acc.Cash
	}
	return 0
}

// Position returns a trader's share count for a symbol.
func (m *Manager) Position(traderID, symbol string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, exists := m.accounts[traderID]; exists {
		return acc.Positions[symbol]
	}
	return 0
}

// Positions returns a copy of a trader's holdings.
func (m *Manager) Positions(traderID string) map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, exists := m.accounts[traderID]
	if !exists {
		return nil
	}
	out := make(map[string]int64, len(acc.Positions))
	for sym, shares := range acc.Positions {
		out[sym] = shares
	}
	return out
}

// Get returns a copy of the account, or nil if unknown.
func (m *Manager) Get(traderID string) *Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, exists := m.accounts[traderID]
	if !exists {
		return nil
	}
	cp := &Account{TraderID: acc.TraderID, Cash: acc.Cash, Positions: make(map[string]int64, len(acc.Positions))}
	for sym, shares := range acc.Positions {
		cp.Positions[sym] = shares
	}
	return cp
}

// Count returns the number of registered accounts.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// TotalCash sums cash across all accounts. Constant across trades
// (conservation); moves only on deposits.
func (m *Manager) TotalCash() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := int64(0)
	for _, acc := range m.accounts {
		total += acc.Cash
	}
	return total
}

// TotalShares sums holdings of one symbol across all accounts. Constant
// across trades.
func (m *Manager) TotalShares(symbol string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := int64(0)
	for _, acc := range m.accounts {
		total += acc.Positions[symbol]
	}
	return total
}
