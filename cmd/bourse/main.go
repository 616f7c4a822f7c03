package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bourse/params"
	"bourse/pkg/api"
	"bourse/pkg/exchange"
	"bourse/pkg/exchange/account"
	"bourse/pkg/exchange/journal"
	"bourse/pkg/sim"
	"bourse/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sugar.Infow("starting", "symbols", cfg.Exchange.Symbols, "seed", seed)

	// Exogenous initial prices, one seeded draw per symbol
	priceRng := rand.New(rand.NewSource(seed))
	initialPrices := make(map[string]int64, len(cfg.Exchange.Symbols))
	for _, sym := range cfg.Exchange.Symbols {
		span := cfg.Exchange.MaxInitialPrice - cfg.Exchange.MinInitialPrice
		initialPrices[sym] = cfg.Exchange.MinInitialPrice + priceRng.Int63n(span+1)
	}

	// ---- Persistence ----
	accountStore, err := account.NewStore(filepath.Join(cfg.DataDir, "accounts"))
	if err != nil {
		sugar.Fatalw("account_store_open_failed", "err", err)
	}
	accounts := account.NewManager(accountStore, sugar)
	defer accounts.Close()

	trades, err := journal.NewPebble(filepath.Join(cfg.DataDir, "trades"), sugar)
	if err != nil {
		sugar.Fatalw("trade_journal_open_failed", "err", err)
	}
	defer trades.Close()

	// ---- Engine ----
	strategy := exchange.NewRandomStrategy(seed + 1)

	var apiServer *api.Server
	sink := exchange.MultiSink{
		exchange.LogSink{Sugar: sugar},
		exchange.SinkFunc(func(e exchange.Event) {
			if apiServer != nil {
				apiServer.Publish(e)
			}
		}),
	}

	engine, err := exchange.NewEngine(exchange.Config{
		InitialPrices: initialPrices,
		MaxDepth:      cfg.Exchange.MaxDepth,
		LotSize:       cfg.Exchange.LotSize,
	}, accounts, trades, strategy, sink)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	// ---- API Server ----
	apiServer = api.NewServer(engine, accounts, trades, sugar)
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Trading day ----
	driver := sim.NewDriver(engine, accounts, sim.Config{
		Traders:          cfg.Sim.Traders,
		Seed:             seed + 2,
		MinInitialCash:   cfg.Sim.MinInitialCash,
		MaxInitialCash:   cfg.Sim.MaxInitialCash,
		MinInitialShares: cfg.Sim.MinInitialShares,
		MaxInitialShares: cfg.Sim.MaxInitialShares,
		MinDeposit:       cfg.Sim.MinDeposit,
		MaxDeposit:       cfg.Sim.MaxDeposit,
		Rounds:           cfg.Sim.Rounds,
		RoundInterval:    cfg.Sim.RoundInterval,
	}, util.RealClock{}, sugar)

	if err := driver.SeedTraders(); err != nil {
		sugar.Fatalw("trader_seed_failed", "err", err)
	}

	driver.Run(ctx)

	sugar.Infow("trading_day_complete",
		"trades", trades.Len(),
		"active_traders", driver.ActiveTraders())
}
