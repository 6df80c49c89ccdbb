package core

import "context"

// SignalRepository persists published signals and their tracking state.
type SignalRepository interface {
	// SaveSignal stores a newly published signal.
	SaveSignal(ctx context.Context, s *Signal) error

	// Signal returns a signal by its identifier.
	Signal(ctx context.Context, id string) (*Signal, error)

	// ActiveSignals returns signals still being tracked: no terminal state,
	// message not deleted, and younger than the active window.
	ActiveSignals(ctx context.Context, maxAgeHours int) ([]*Signal, error)

	// LatestSignalForSymbol returns the most recent signal for a symbol.
	LatestSignalForSymbol(ctx context.Context, symbol string) (*Signal, error)

	// RecentSignals returns the newest signals across all symbols.
	RecentSignals(ctx context.Context, limit int) ([]*Signal, error)

	// RecordTPHit marks a take-profit level as reached. The first recorded
	// touch wins; later calls for the same level are no-ops.
	RecordTPHit(ctx context.Context, id string, level int, at int64) error

	// RecordSLHit marks the stop-loss as hit, idempotently.
	RecordSLHit(ctx context.Context, id string, at int64) error

	// RecordEntryHit marks an alternative entry (optimal/conservative)
	// as filled, idempotently.
	RecordEntryHit(ctx context.Context, id, kind string, at int64) error

	// UpdateExcursions stores new MFE/MAE extremes.
	UpdateExcursions(ctx context.Context, id string, mfePrice float64, mfeAt int64, maePrice float64, maeAt int64) error

	// MarkMessageDeleted flags the Telegram message as gone so the tracker
	// stops editing it.
	MarkMessageDeleted(ctx context.Context, id string) error

	// FinalizeSignal records the terminal outcome and last price.
	FinalizeSignal(ctx context.Context, id, outcome string, finalPrice float64) error

	// SaveSnapshot appends a price observation for a tracked signal.
	SaveSnapshot(ctx context.Context, snap PriceSnapshot) error

	// Snapshots returns the recorded price observations for a signal.
	Snapshots(ctx context.Context, signalID string) ([]PriceSnapshot, error)

	// SaveRejected records a filtered-out candidate and the reason.
	SaveRejected(ctx context.Context, r *RejectedSignal) error

	// SignalsBetween returns signals created inside [start, end].
	SignalsBetween(ctx context.Context, start, end int64) ([]*Signal, error)

	// RejectedCountBetween counts rejected candidates in a period,
	// optionally restricted to one direction.
	RejectedCountBetween(ctx context.Context, start, end int64, direction Direction) (int, error)

	// SaveMetricsSummary stores an aggregated period report.
	SaveMetricsSummary(ctx context.Context, m *MetricsSummary) error

	// LatestMetricsSummary returns the most recent stored report.
	LatestMetricsSummary(ctx context.Context) (*MetricsSummary, error)

	// Close releases the underlying database handle.
	Close() error
}

// CooldownEntry is the cached last-signal state for one symbol.
type CooldownEntry struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"last_direction"`
	Confidence float64   `json:"confidence"`
	SignalAt   int64     `json:"last_signal_time"`
	UpdatedAt  int64     `json:"updated_at"`
}

// CooldownStore caches recent per-symbol signal state for cooldown checks.
type CooldownStore interface {
	Get(symbol string) (*CooldownEntry, error)
	Put(entry CooldownEntry) error
	All() ([]CooldownEntry, error)
	DeleteOlderThan(cutoff int64) (int, error)
	Close() error
}
