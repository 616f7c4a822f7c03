// Package sim drives a simulated trading day against the exchange core:
// a seeded trader population places one random order per round, brokers who
// run dry either deposit fresh cash or leave the market. The engine never
// sees any of this policy; it only receives already-chosen (trader, side,
// symbol) admissions.
package sim

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"bourse/pkg/exchange"
	"bourse/pkg/exchange/account"
	"bourse/pkg/util"
)

// A trader below this cash floor with no sellable lot anywhere is "broke"
// and hits the deposit-or-exit coin flip.
const brokeCashFloor = 1000_00

type Config struct {
	Traders int
	Seed    int64

	MinInitialCash   int64 // cents
	MaxInitialCash   int64
	MinInitialShares int64 // shares per symbol
	MaxInitialShares int64
	MinDeposit       int64 // cents
	MaxDeposit       int64

	Rounds        int
	RoundInterval time.Duration
}

type trader struct {
	id     string
	active bool
}

// Driver owns the trader population and the session pacing. All randomness
// flows from one seeded source, so a fixed seed replays the same day.
type Driver struct {
	engine   *exchange.Engine
	accounts *account.Manager
	cfg      Config
	rng      *rand.Rand
	clock    util.Clock
	sugar    *zap.SugaredLogger
	traders  []*trader
}

func NewDriver(engine *exchange.Engine, accounts *account.Manager, cfg Config, clock util.Clock, sugar *zap.SugaredLogger) *Driver {
	if clock == nil {
		clock = util.RealClock{}
	}
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return &Driver{
		engine:   engine,
		accounts: accounts,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		clock:    clock,
		sugar:    sugar,
	}
}

// SeedTraders registers the population with seeded random cash and
// holdings. Call once before Run.
func (d *Driver) SeedTraders() error {
	symbols := d.engine.Symbols()
	for i := 1; i <= d.cfg.Traders; i++ {
		id := traderID(i)
		cash := d.randRange(d.cfg.MinInitialCash, d.cfg.MaxInitialCash)
		positions := make(map[string]int64, len(symbols))
		for _, sym := range symbols {
			positions[sym] = d.randRange(d.cfg.MinInitialShares, d.cfg.MaxInitialShares)
		}
		if err := d.accounts.Create(id, cash, positions); err != nil {
			return err
		}
		d.traders = append(d.traders, &trader{id: id, active: true})
	}
	return nil
}

func traderID(i int) string {
	return "trader-" + strconv.Itoa(i)
}

// Run opens the session, plays the configured rounds with clock pacing,
// closes the session and logs the end-of-day report. Respects ctx
// cancellation between rounds.
func (d *Driver) Run(ctx context.Context) {
	d.engine.OpenSession()
	d.sugar.Infow("session_opened", "traders", len(d.traders), "rounds", d.cfg.Rounds)

	for round := 1; round <= d.cfg.Rounds; round++ {
		select {
		case <-ctx.Done():
			d.sugar.Infow("session_interrupted", "round", round)
			d.finish()
			return
		default:
		}

		d.playRound()

		if round < d.cfg.Rounds && d.cfg.RoundInterval > 0 {
			select {
			case <-ctx.Done():
				d.finish()
				return
			case <-d.clock.After(d.cfg.RoundInterval):
			}
		}
	}

	d.finish()
}

func (d *Driver) finish() {
	d.engine.CloseSession()
	d.sugar.Infow("session_closed")
	d.report()
}

// playRound lets every active trader place one random order, then applies
// the deposit-or-exit policy to anyone who ran dry.
func (d *Driver) playRound() {
	symbols := d.engine.Symbols()
	for _, t := range d.traders {
		if !t.active {
			continue
		}

		symbol := symbols[d.rng.Intn(len(symbols))]
		side := exchange.Sell
		if d.rng.Float64() > 0.5 {
			side = exchange.Buy
		}
		d.engine.Admit(t.id, side, symbol)

		d.checkBroke(t, symbols)
	}
}

// checkBroke applies the deposit-or-exit rule: a trader with less
// than the cash floor and no whole lot to sell in any symbol flips a coin,
// deposits and resumes, or goes inactive for the rest of the session.
func (d *Driver) checkBroke(t *trader, symbols []string) {
	if d.accounts.Cash(t.id) >= brokeCashFloor {
		return
	}
	lot := d.engine.LotSize()
	for _, sym := range symbols {
		if d.accounts.Position(t.id, sym) >= lot {
			return
		}
	}

	if d.rng.Float64() < 0.5 {
		amount := d.randRange(d.cfg.MinDeposit, d.cfg.MaxDeposit)
		if err := d.accounts.Deposit(t.id, amount); err != nil {
			d.sugar.Errorw("deposit_failed", "trader", t.id, "err", err)
			return
		}
		d.sugar.Infow("trader_deposited", "trader", t.id, "amount_cents", amount)
	} else {
		t.active = false
		d.sugar.Infow("trader_stopped", "trader", t.id)
	}
}

// report logs each trader's final portfolio value at last-trade prices.
func (d *Driver) report() {
	prices := make(map[string]int64)
	for _, sym := range d.engine.Symbols() {
		if p, ok := d.engine.LastPrice(sym); ok {
			prices[sym] = p
		}
	}

	for _, t := range d.traders {
		acc := d.accounts.Get(t.id)
		if acc == nil {
			continue
		}
		d.sugar.Infow("final_portfolio",
			"trader", t.id,
			"value_cents", acc.PortfolioValue(prices),
			"cash_cents", acc.Cash,
			"active", t.active)
	}
}

// ActiveTraders reports how many traders are still in the market.
func (d *Driver) ActiveTraders() int {
	n := 0
	for _, t := range d.traders {
		if t.active {
			n++
		}
	}
	return n
}

func (d *Driver) randRange(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + d.rng.Int63n(max-min+1)
}
