package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	signal_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	signal_price REAL NOT NULL,
	confidence REAL NOT NULL,
	atr REAL,
	timeframe TEXT,
	telegram_message_id INTEGER DEFAULT 0,
	telegram_channel_id TEXT DEFAULT '',
	created_at INTEGER NOT NULL,
	tp1_price REAL, tp1_hit INTEGER DEFAULT 0, tp1_hit_at INTEGER,
	tp2_price REAL, tp2_hit INTEGER DEFAULT 0, tp2_hit_at INTEGER,
	sl_price REAL, sl_hit INTEGER DEFAULT 0, sl_hit_at INTEGER,
	tp1_distance_r REAL, tp2_distance_r REAL, sl_distance_r REAL,
	optimal_entry_price REAL,
	optimal_entry_hit INTEGER DEFAULT 0,
	optimal_entry_hit_at INTEGER,
	conservative_entry_price REAL,
	conservative_entry_hit INTEGER DEFAULT 0,
	conservative_entry_hit_at INTEGER,
	mfe_price REAL, mfe_at INTEGER,
	mae_price REAL, mae_at INTEGER,
	final_price REAL,
	final_outcome TEXT DEFAULT '',
	message_deleted INTEGER DEFAULT 0,
	entry_levels TEXT,
	signal_score_breakdown TEXT,
	market_context TEXT,
	signal_data TEXT
);

CREATE TABLE IF NOT EXISTS signal_price_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	price REAL NOT NULL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rejected_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id TEXT,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	confidence REAL,
	signal_price REAL,
	created_at INTEGER NOT NULL,
	rejection_reason TEXT NOT NULL,
	rejected_reason TEXT,
	market_context TEXT
);

CREATE TABLE IF NOT EXISTS signal_metrics_summary (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	period_start INTEGER NOT NULL,
	period_end INTEGER NOT NULL,
	total_signals INTEGER,
	long_signals INTEGER,
	short_signals INTEGER,
	neutral_filtered INTEGER,
	avg_confidence REAL,
	tp1_hit_rate REAL,
	tp2_hit_rate REAL,
	sl_hit_rate REAL,
	avg_mfe_percent REAL,
	avg_mae_percent REAL,
	avg_time_to_first_target_hours REAL,
	market_regime TEXT
);

CREATE INDEX IF NOT EXISTS idx_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_created_at ON signals(created_at);
CREATE INDEX IF NOT EXISTS idx_telegram_message_id ON signals(telegram_message_id);
CREATE INDEX IF NOT EXISTS idx_active_signals ON signals(tp1_hit, tp2_hit, sl_hit);
CREATE INDEX IF NOT EXISTS idx_snapshots_signal_id ON signal_price_snapshots(signal_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON signal_price_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_rejected_symbol ON rejected_signals(symbol);
CREATE INDEX IF NOT EXISTS idx_rejected_created_at ON rejected_signals(created_at);
CREATE INDEX IF NOT EXISTS idx_summary_period ON signal_metrics_summary(period_start, period_end);
`

// signalColumns is the select list shared by every signal query.
const signalColumns = `signal_id, symbol, direction, signal_price, confidence,
	COALESCE(atr, 0), COALESCE(timeframe, ''),
	telegram_message_id, telegram_channel_id, created_at,
	COALESCE(tp1_price, 0), tp1_hit, COALESCE(tp1_hit_at, 0),
	COALESCE(tp2_price, 0), tp2_hit, COALESCE(tp2_hit_at, 0),
	COALESCE(sl_price, 0), sl_hit, COALESCE(sl_hit_at, 0),
	COALESCE(tp1_distance_r, 0), COALESCE(tp2_distance_r, 0), COALESCE(sl_distance_r, 0),
	COALESCE(optimal_entry_price, 0), optimal_entry_hit, COALESCE(optimal_entry_hit_at, 0),
	COALESCE(conservative_entry_price, 0), conservative_entry_hit, COALESCE(conservative_entry_hit_at, 0),
	COALESCE(mfe_price, 0), COALESCE(mfe_at, 0),
	COALESCE(mae_price, 0), COALESCE(mae_at, 0),
	COALESCE(final_price, 0), final_outcome, message_deleted,
	COALESCE(entry_levels, ''), COALESCE(signal_score_breakdown, ''),
	COALESCE(market_context, ''), COALESCE(signal_data, '')`

// SQLiteRepository implements core.SignalRepository on a local SQLite
// database in WAL mode.
type SQLiteRepository struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteRepository opens (and migrates) the signal database at path.
// Use ":memory:" for an ephemeral database in tests.
func NewSQLiteRepository(path string, log logger.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open signal database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate signal database: %w", err)
	}

	return &SQLiteRepository{db: db, log: log}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// SaveSignal stores a freshly published signal. The structured columns
// hold everything the tracker mutates; the full signal is also kept as a
// JSON document for the auxiliary fields.
func (r *SQLiteRepository) SaveSignal(ctx context.Context, s *core.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", s.ID, err)
	}

	var entryLevels, breakdown string
	if s.EntryLevels != nil {
		entryLevels = marshalOrEmpty(s.EntryLevels)
	}
	if s.ScoreBreakdown != nil {
		breakdown = marshalOrEmpty(s.ScoreBreakdown)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signals (
			signal_id, symbol, direction, signal_price, confidence, atr, timeframe,
			telegram_message_id, telegram_channel_id, created_at,
			tp1_price, tp2_price, sl_price,
			tp1_distance_r, tp2_distance_r, sl_distance_r,
			optimal_entry_price, conservative_entry_price,
			entry_levels, signal_score_breakdown, market_context, signal_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Symbol, string(s.Direction), s.Price, s.Confidence, s.ATR, s.Timeframe,
		s.TelegramMessageID, s.TelegramChannelID, s.CreatedAt,
		s.TP1Price, s.TP2Price, s.SLPrice,
		s.TP1DistanceR, s.TP2DistanceR, s.SLDistanceR,
		s.OptimalEntryPrice, s.ConservativeEntryPrice,
		entryLevels, breakdown, s.MarketContext, string(data),
	)
	if err != nil {
		return fmt.Errorf("save signal %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Signal(ctx context.Context, id string) (*core.Signal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE signal_id = ?`, id)

	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSignalNotFound
	}
	return s, err
}

func (r *SQLiteRepository) ActiveSignals(ctx context.Context, maxAgeHours int) ([]*core.Signal, error) {
	cutoff := int64(0)
	if maxAgeHours > 0 {
		cutoff = nowUnix() - int64(maxAgeHours)*3600
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE sl_hit = 0 AND tp2_hit = 0
		  AND final_outcome = ''
		  AND message_deleted = 0
		  AND created_at >= ?
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query active signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func (r *SQLiteRepository) LatestSignalForSymbol(ctx context.Context, symbol string) (*core.Signal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE symbol = ? ORDER BY created_at DESC LIMIT 1`, symbol)

	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSignalNotFound
	}
	return s, err
}

func (r *SQLiteRepository) RecentSignals(ctx context.Context, limit int) ([]*core.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// RecordTPHit marks a take-profit touch. The guard in the WHERE clause
// makes the first touch win and repeated calls no-ops.
func (r *SQLiteRepository) RecordTPHit(ctx context.Context, id string, level int, at int64) error {
	var query string
	switch level {
	case 1:
		query = `UPDATE signals SET tp1_hit = 1, tp1_hit_at = ? WHERE signal_id = ? AND tp1_hit = 0`
	case 2:
		query = `UPDATE signals SET tp2_hit = 1, tp2_hit_at = ? WHERE signal_id = ? AND tp2_hit = 0`
	default:
		return fmt.Errorf("unknown take-profit level %d", level)
	}

	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record tp%d hit for %s: %w", level, id, err)
	}
	return nil
}

func (r *SQLiteRepository) RecordSLHit(ctx context.Context, id string, at int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signals SET sl_hit = 1, sl_hit_at = ? WHERE signal_id = ? AND sl_hit = 0`, at, id)
	if err != nil {
		return fmt.Errorf("record sl hit for %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RecordEntryHit(ctx context.Context, id, kind string, at int64) error {
	var query string
	switch kind {
	case "optimal":
		query = `UPDATE signals SET optimal_entry_hit = 1, optimal_entry_hit_at = ?
			WHERE signal_id = ? AND optimal_entry_hit = 0`
	case "conservative":
		query = `UPDATE signals SET conservative_entry_hit = 1, conservative_entry_hit_at = ?
			WHERE signal_id = ? AND conservative_entry_hit = 0`
	default:
		return fmt.Errorf("unknown entry kind %q", kind)
	}

	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record %s entry hit for %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateExcursions(ctx context.Context, id string,
	mfePrice float64, mfeAt int64, maePrice float64, maeAt int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signals SET mfe_price = ?, mfe_at = ?, mae_price = ?, mae_at = ?
		WHERE signal_id = ?`, mfePrice, mfeAt, maePrice, maeAt, id)
	if err != nil {
		return fmt.Errorf("update excursions for %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkMessageDeleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signals SET message_deleted = 1 WHERE signal_id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark message deleted for %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) FinalizeSignal(ctx context.Context, id, outcome string, finalPrice float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signals SET final_outcome = ?, final_price = ?
		WHERE signal_id = ? AND final_outcome = ''`, outcome, finalPrice, id)
	if err != nil {
		return fmt.Errorf("finalize signal %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap core.PriceSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signal_price_snapshots (signal_id, timestamp, price, source)
		VALUES (?, ?, ?, ?)`, snap.SignalID, snap.Timestamp, snap.Price, snap.Source)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", snap.SignalID, err)
	}
	return nil
}

func (r *SQLiteRepository) Snapshots(ctx context.Context, signalID string) ([]core.PriceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT signal_id, timestamp, price, source FROM signal_price_snapshots
		WHERE signal_id = ? ORDER BY timestamp ASC`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots for %s: %w", signalID, err)
	}
	defer rows.Close()

	var snaps []core.PriceSnapshot
	for rows.Next() {
		var snap core.PriceSnapshot
		if err := rows.Scan(&snap.SignalID, &snap.Timestamp, &snap.Price, &snap.Source); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (r *SQLiteRepository) SaveRejected(ctx context.Context, rej *core.RejectedSignal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rejected_signals (
			signal_id, symbol, direction, confidence, signal_price,
			created_at, rejection_reason, rejected_reason, market_context
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rej.SignalID, rej.Symbol, string(rej.Direction), rej.Confidence, rej.Price,
		rej.CreatedAt, rej.Reason, rej.Detail, rej.MarketContext)
	if err != nil {
		return fmt.Errorf("save rejected signal for %s: %w", rej.Symbol, err)
	}
	return nil
}

func (r *SQLiteRepository) SignalsBetween(ctx context.Context, start, end int64) ([]*core.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE created_at BETWEEN ? AND ? ORDER BY created_at ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query signals between: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func (r *SQLiteRepository) RejectedCountBetween(ctx context.Context, start, end int64, direction core.Direction) (int, error) {
	query := `SELECT COUNT(*) FROM rejected_signals WHERE created_at BETWEEN ? AND ?`
	args := []any{start, end}
	if direction != "" {
		query += ` AND direction = ?`
		args = append(args, string(direction))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rejected signals: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) SaveMetricsSummary(ctx context.Context, m *core.MetricsSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signal_metrics_summary (
			period_start, period_end, total_signals, long_signals, short_signals,
			neutral_filtered, avg_confidence, tp1_hit_rate, tp2_hit_rate, sl_hit_rate,
			avg_mfe_percent, avg_mae_percent, avg_time_to_first_target_hours, market_regime
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PeriodStart, m.PeriodEnd, m.TotalSignals, m.LongSignals, m.ShortSignals,
		m.NeutralFiltered, m.AvgConfidence, m.TP1HitRate, m.TP2HitRate, m.SLHitRate,
		m.AvgMFEPercent, m.AvgMAEPercent, m.AvgHoursToFirstTarget, m.MarketRegime)
	if err != nil {
		return fmt.Errorf("save metrics summary: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LatestMetricsSummary(ctx context.Context) (*core.MetricsSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT period_start, period_end, total_signals, long_signals, short_signals,
			neutral_filtered, avg_confidence, tp1_hit_rate, tp2_hit_rate, sl_hit_rate,
			avg_mfe_percent, avg_mae_percent, avg_time_to_first_target_hours,
			COALESCE(market_regime, '')
		FROM signal_metrics_summary ORDER BY period_end DESC LIMIT 1`)

	var m core.MetricsSummary
	err := row.Scan(&m.PeriodStart, &m.PeriodEnd, &m.TotalSignals, &m.LongSignals,
		&m.ShortSignals, &m.NeutralFiltered, &m.AvgConfidence, &m.TP1HitRate,
		&m.TP2HitRate, &m.SLHitRate, &m.AvgMFEPercent, &m.AvgMAEPercent,
		&m.AvgHoursToFirstTarget, &m.MarketRegime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest metrics summary: %w", err)
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSignal rebuilds a signal from a row: the JSON document restores the
// auxiliary fields, then the structured columns overwrite the mutable
// tracking state.
func scanSignal(row rowScanner) (*core.Signal, error) {
	var (
		s                                  core.Signal
		direction                          string
		tp1Hit, tp2Hit, slHit              int
		optimalHit, conservativeHit        int
		messageDeleted                     int
		entryLevels, breakdown, signalData string
	)

	err := row.Scan(
		&s.ID, &s.Symbol, &direction, &s.Price, &s.Confidence,
		&s.ATR, &s.Timeframe,
		&s.TelegramMessageID, &s.TelegramChannelID, &s.CreatedAt,
		&s.TP1Price, &tp1Hit, &s.TP1HitAt,
		&s.TP2Price, &tp2Hit, &s.TP2HitAt,
		&s.SLPrice, &slHit, &s.SLHitAt,
		&s.TP1DistanceR, &s.TP2DistanceR, &s.SLDistanceR,
		&s.OptimalEntryPrice, &optimalHit, &s.OptimalEntryHitAt,
		&s.ConservativeEntryPrice, &conservativeHit, &s.ConservativeEntryHitAt,
		&s.MFEPrice, &s.MFEAt,
		&s.MAEPrice, &s.MAEAt,
		&s.FinalPrice, &s.FinalOutcome, &messageDeleted,
		&entryLevels, &breakdown, &s.MarketContext, &signalData,
	)
	if err != nil {
		return nil, err
	}

	if signalData != "" {
		var full core.Signal
		if err := json.Unmarshal([]byte(signalData), &full); err == nil {
			s.Strategy = full.Strategy
			s.CustomTargets = full.CustomTargets
			s.TimeframeSignals = full.TimeframeSignals
			s.LiquidationRiskPct = full.LiquidationRiskPct
		}
	}
	if entryLevels != "" {
		var levels core.EntryLevels
		if err := json.Unmarshal([]byte(entryLevels), &levels); err == nil {
			s.EntryLevels = &levels
		}
	}
	if breakdown != "" {
		var score core.Score
		if err := json.Unmarshal([]byte(breakdown), &score); err == nil {
			s.ScoreBreakdown = &score
		}
	}

	s.Direction = core.Direction(direction)
	s.TP1Hit = tp1Hit == 1
	s.TP2Hit = tp2Hit == 1
	s.SLHit = slHit == 1
	s.OptimalEntryHit = optimalHit == 1
	s.ConservativeEntryHit = conservativeHit == 1
	s.MessageDeleted = messageDeleted == 1

	return &s, nil
}

func scanSignals(rows *sql.Rows) ([]*core.Signal, error) {
	var signals []*core.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func marshalOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
