package account

import "fmt"

// Account holds one trader's cash and share positions. All cash values are
// cents. The matching engine, through Manager.Settle, is the sole mutator of
// these fields once trading starts; trader lifecycle (creation, deposits)
// is collaborator policy.
type Account struct {
	TraderID  string
	Cash      int64
	Positions map[string]int64 // symbol -> shares
}

func NewAccount(traderID string) *Account {
	return &Account{
		TraderID:  traderID,
		Positions: make(map[string]int64),
	}
}

// Position returns the share count for a symbol, zero if none.
func (a *Account) Position(symbol string) int64 {
	return a.Positions[symbol]
}

// PortfolioValue prices every position at the given last-trade prices and
// adds cash. Symbols without a price contribute nothing.
func (a *Account) PortfolioValue(lastPrices map[string]int64) int64 {
	total := a.Cash
	for sym, shares := range a.Positions {
		total += shares * lastPrices[sym]
	}
	return total
}

// Validate checks structural invariants. Cash and positions may run
// negative mid-session: solvency is checked per admission, and several
// resting orders can draw on the same balance before they match.
func (a *Account) Validate() error {
	if a.TraderID == "" {
		return fmt.Errorf("account missing trader id")
	}
	if a.Positions == nil {
		return fmt.Errorf("account %s has nil positions map", a.TraderID)
	}
	return nil
}
