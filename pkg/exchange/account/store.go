package account

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store persists account snapshots in Pebble so a finished session can be
// inspected offline. The order book itself is never persisted; only the
// ledger survives the process.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
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

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists an account snapshot.
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := s.db.Set(accountKey(acc.TraderID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount loads an account snapshot.
// Returns nil if the account doesn't exist.
func (s *Store) LoadAccount(traderID string) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(traderID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	// JSON unmarshal may leave the map nil
	if acc.Positions == nil {
		acc.Positions = make(map[string]int64)
	}

	return &acc, nil
}

// LoadAll returns every persisted account.
func (s *Store) LoadAll() ([]*Account, error) {
	prefix := accountPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var accounts []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue // skip invalid entries
		}
		if acc.Positions == nil {
			acc.Positions = make(map[string]int64)
		}
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}
