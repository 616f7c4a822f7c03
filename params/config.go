package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Exchange struct {
	Symbols  []string
	MaxDepth int   // resting orders kept per book side
	LotSize  int64 // shares per order, whole-lot matching only

	// Initial last-trade price range, in cents
	MinInitialPrice int64
	MaxInitialPrice int64
}

type Sim struct {
	Traders int
	Seed    int64

	// Starting cash range, in cents
	MinInitialCash int64
	MaxInitialCash int64

	// Starting holdings range per symbol, in shares
	MinInitialShares int64
	MaxInitialShares int64

	// Deposit range when a broke trader tops up, in cents
	MinDeposit int64
	MaxDeposit int64

	Rounds        int
	RoundInterval time.Duration
}

type Config struct {
	Exchange Exchange
	Sim      Sim
	APIAddr  string
	DataDir  string
	LogFile  string
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Symbols:         []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"},
			MaxDepth:        5,
			LotSize:         1000,
			MinInitialPrice: 100_00,
			MaxInitialPrice: 150_00,
		},
		Sim: Sim{
			Traders:          5,
			Seed:             0, // 0 = derive from wall clock
			MinInitialCash:   50_000_00,
			MaxInitialCash:   500_000_00,
			MinInitialShares: 10_000,
			MaxInitialShares: 50_000,
			MinDeposit:       10_000_00,
			MaxDeposit:       30_000_00,
			Rounds:           30,
			RoundInterval:    500 * time.Millisecond,
		},
		APIAddr: ":8080",
		DataDir: "data",
		LogFile: "data/bourse.log",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if syms := os.Getenv("EXCHANGE_SYMBOLS"); syms != "" {
		// Example: "AAPL,GOOGL,MSFT"
		parts := strings.Split(syms, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			cfg.Exchange.Symbols = out
		}
	}

	cfg.Exchange.MaxDepth = envInt("EXCHANGE_MAX_DEPTH", cfg.Exchange.MaxDepth)
	cfg.Exchange.LotSize = envInt64("EXCHANGE_LOT_SIZE", cfg.Exchange.LotSize)
	cfg.Sim.Traders = envInt("SIM_TRADERS", cfg.Sim.Traders)
	cfg.Sim.Seed = envInt64("SIM_SEED", cfg.Sim.Seed)
	cfg.Sim.Rounds = envInt("SIM_ROUNDS", cfg.Sim.Rounds)

	if ms := os.Getenv("SIM_ROUND_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Sim.RoundInterval = time.Duration(n) * time.Millisecond
		}
	}

	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
