package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/unvoidf/sigscan/pkg/core"
)

// BuntCooldownStore implements core.CooldownStore using BuntDB. The store
// keeps the last published signal per symbol so the scanner can suppress
// repeats inside the cooldown window.
type BuntCooldownStore struct {
	db *buntdb.DB
}

// CooldownFromMemory creates an in-memory cooldown store.
func CooldownFromMemory() (*BuntCooldownStore, error) {
	return NewBuntCooldownStore(":memory:")
}

// CooldownFromFile creates a file-backed cooldown store.
func CooldownFromFile(file string) (*BuntCooldownStore, error) {
	return NewBuntCooldownStore(file)
}

// NewBuntCooldownStore opens the BuntDB file and creates the update-time
// index used by the age-based cleanup.
func NewBuntCooldownStore(sourceFile string) (*BuntCooldownStore, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex("update_index", "*", buntdb.IndexJSON("updated_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntCooldownStore{db: db}, nil
}

func cooldownKey(symbol string) string {
	return strings.ToUpper(symbol)
}

// Get returns the cached entry for a symbol, or nil when none exists.
func (b *BuntCooldownStore) Get(symbol string) (*core.CooldownEntry, error) {
	var entry core.CooldownEntry
	err := b.db.View(func(tx *buntdb.Tx) error {
		content, err := tx.Get(cooldownKey(symbol))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(content), &entry)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cooldown entry: %w", err)
	}
	return &entry, nil
}

// Put stores or replaces the entry for its symbol.
func (b *BuntCooldownStore) Put(entry core.CooldownEntry) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cooldown entry: %w", err)
		}

		_, _, err = tx.Set(cooldownKey(entry.Symbol), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store cooldown entry: %w", err)
		}
		return nil
	})
}

// All returns every cached entry ordered by update time.
func (b *BuntCooldownStore) All() ([]core.CooldownEntry, error) {
	var entries []core.CooldownEntry
	err := b.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		tx.Ascend("update_index", func(key, value string) bool {
			var entry core.CooldownEntry
			if innerErr = json.Unmarshal([]byte(value), &entry); innerErr != nil {
				return false
			}
			entries = append(entries, entry)
			return true
		})
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cooldown entries: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan drops entries last updated before the cutoff and
// returns how many were removed.
func (b *BuntCooldownStore) DeleteOlderThan(cutoff int64) (int, error) {
	var stale []string
	err := b.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		tx.Ascend("update_index", func(key, value string) bool {
			var entry core.CooldownEntry
			if innerErr = json.Unmarshal([]byte(value), &entry); innerErr != nil {
				return false
			}
			if entry.UpdatedAt < cutoff {
				stale = append(stale, key)
			}
			return true
		})
		return innerErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan cooldown entries: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	err = b.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale cooldown entries: %w", err)
	}
	return len(stale), nil
}

func (b *BuntCooldownStore) Close() error {
	return b.db.Close()
}
