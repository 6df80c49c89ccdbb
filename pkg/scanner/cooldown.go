package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Entries untouched this long are dropped during cleanup.
const cooldownRetention = 24 * time.Hour

// CooldownManager suppresses repeat signals for a symbol inside the
// cooldown window. A direction flip overrides the cooldown since it is
// a meaningful market change. State lives in the cooldown store with the
// signal database as fallback, so restarts do not re-alert.
type CooldownManager struct {
	log    logger.Logger
	store  core.CooldownStore
	repo   core.SignalRepository
	window time.Duration
}

// CooldownStats describes the cache content for status reports.
type CooldownStats struct {
	Size      int
	OldestAge time.Duration
	NewestAge time.Duration
}

func NewCooldownManager(log logger.Logger, store core.CooldownStore,
	repo core.SignalRepository, window time.Duration) *CooldownManager {
	return &CooldownManager{
		log:    log,
		store:  store,
		repo:   repo,
		window: window,
	}
}

// Warmup seeds the store from the most recent signals in the database.
func (c *CooldownManager) Warmup(ctx context.Context) {
	if c.repo == nil {
		return
	}

	signals, err := c.repo.RecentSignals(ctx, 100)
	if err != nil {
		c.log.WithError(err).Error("cooldown warmup failed")
		return
	}

	loaded := 0
	for _, sig := range signals {
		if sig.Symbol == "" {
			continue
		}

		cached, err := c.store.Get(sig.Symbol)
		if err != nil {
			c.log.WithError(err).Errorf("cooldown warmup read failed for %s", sig.Symbol)
			continue
		}
		if cached != nil && cached.SignalAt >= sig.CreatedAt {
			continue
		}

		entry := core.CooldownEntry{
			Symbol:     sig.Symbol,
			Direction:  sig.Direction,
			Confidence: sig.Confidence,
			SignalAt:   sig.CreatedAt,
			UpdatedAt:  time.Now().Unix(),
		}
		if err := c.store.Put(entry); err != nil {
			c.log.WithError(err).Errorf("cooldown warmup write failed for %s", sig.Symbol)
			continue
		}
		loaded++
	}

	c.log.Infof("cooldown warmup: %d symbols loaded", loaded)
}

// ShouldSend reports whether a new signal for the symbol may be
// published right now.
func (c *CooldownManager) ShouldSend(ctx context.Context, symbol string,
	direction core.Direction, now time.Time) bool {
	entry, err := c.store.Get(symbol)
	if err != nil {
		c.log.WithError(err).Errorf("cooldown lookup failed for %s", symbol)
		return true
	}
	if entry == nil {
		entry = c.loadFromDB(ctx, symbol)
		if entry == nil {
			return true
		}
	}

	elapsed := now.Sub(time.Unix(entry.SignalAt, 0))
	if elapsed >= c.window {
		return true
	}

	if entry.Direction == direction {
		remaining := c.window - elapsed
		c.log.Infof("%s inside cooldown (same direction %s), %.1f minutes left",
			symbol, direction, remaining.Minutes())
		return false
	}

	c.log.Infof("%s direction flipped (%s -> %s), cooldown override",
		symbol, entry.Direction, direction)
	return true
}

// Update records a freshly published signal so later scans respect the
// cooldown.
func (c *CooldownManager) Update(symbol string, direction core.Direction,
	confidence float64, now time.Time) {
	entry := core.CooldownEntry{
		Symbol:     symbol,
		Direction:  direction,
		Confidence: confidence,
		SignalAt:   now.Unix(),
		UpdatedAt:  now.Unix(),
	}
	if err := c.store.Put(entry); err != nil {
		c.log.WithError(err).Errorf("cooldown update failed for %s", symbol)
	}
}

// Cleanup drops entries that have not been refreshed within the
// retention window.
func (c *CooldownManager) Cleanup(now time.Time) {
	removed, err := c.store.DeleteOlderThan(now.Add(-cooldownRetention).Unix())
	if err != nil {
		c.log.WithError(err).Error("cooldown cleanup failed")
		return
	}
	if removed > 0 {
		c.log.Infof("cooldown cleanup: %d stale entries removed", removed)
	}
}

// Stats summarizes the cached entries.
func (c *CooldownManager) Stats(now time.Time) CooldownStats {
	entries, err := c.store.All()
	if err != nil {
		c.log.WithError(err).Error("cooldown stats failed")
		return CooldownStats{}
	}
	if len(entries) == 0 {
		return CooldownStats{}
	}

	stats := CooldownStats{Size: len(entries)}
	for i, entry := range entries {
		age := now.Sub(time.Unix(entry.SignalAt, 0))
		if i == 0 || age > stats.OldestAge {
			stats.OldestAge = age
		}
		if i == 0 || age < stats.NewestAge {
			stats.NewestAge = age
		}
	}
	return stats
}

// loadFromDB resolves a store miss against the signal database and
// backfills the store on a hit.
func (c *CooldownManager) loadFromDB(ctx context.Context, symbol string) *core.CooldownEntry {
	if c.repo == nil {
		return nil
	}

	sig, err := c.repo.LatestSignalForSymbol(ctx, symbol)
	if errors.Is(err, core.ErrSignalNotFound) {
		return nil
	}
	if err != nil {
		c.log.WithError(err).Errorf("cooldown database fallback failed for %s", symbol)
		return nil
	}

	entry := &core.CooldownEntry{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Confidence: sig.Confidence,
		SignalAt:   sig.CreatedAt,
		UpdatedAt:  time.Now().Unix(),
	}
	if err := c.store.Put(*entry); err != nil {
		c.log.WithError(err).Errorf("cooldown backfill failed for %s", symbol)
	}
	return entry
}
