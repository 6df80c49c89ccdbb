package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
	"github.com/unvoidf/sigscan/pkg/storage"
	"github.com/unvoidf/sigscan/pkg/strategy"
)

func newTargetManager(tpMultipliers []float64, slMultiplier float64) *Manager {
	return NewManager(logger.Nop(), Config{
		TPMultipliers: tpMultipliers,
		SLMultiplier:  slMultiplier,
	}, nil, nil, nil, nil, nil, nil, nil, nil)
}

func TestTargetLevels_TrendLong(t *testing.T) {
	m := newTargetManager([]float64{2, 4}, 1.5)
	result := &analysis.Result{Direction: core.DirectionLong, Strategy: core.StrategyTrend}

	tp1, tp2, sl := m.targetLevels(100, result, 2)
	require.InDelta(t, 104, tp1, 1e-9)
	require.InDelta(t, 108, tp2, 1e-9)
	require.InDelta(t, 97, sl, 1e-9)
}

func TestTargetLevels_TrendShort(t *testing.T) {
	m := newTargetManager([]float64{2, 4}, 1.5)
	result := &analysis.Result{Direction: core.DirectionShort, Strategy: core.StrategyTrend}

	tp1, tp2, sl := m.targetLevels(100, result, 2)
	require.InDelta(t, 96, tp1, 1e-9)
	require.InDelta(t, 92, tp2, 1e-9)
	require.InDelta(t, 103, sl, 1e-9)
}

func TestTargetLevels_NoATRFallback(t *testing.T) {
	m := newTargetManager([]float64{2, 4}, 1.5)
	result := &analysis.Result{Direction: core.DirectionLong, Strategy: core.StrategyTrend}

	// Risk distance falls back to 1% of price, the stop to a percentage.
	tp1, tp2, sl := m.targetLevels(100, result, 0)
	require.InDelta(t, 102, tp1, 1e-9)
	require.InDelta(t, 104, tp2, 1e-9)
	require.InDelta(t, 98.5, sl, 1e-9)
}

func TestTargetLevels_RangingUsesCustomTargets(t *testing.T) {
	m := newTargetManager([]float64{2, 4}, 1.5)
	result := &analysis.Result{
		Direction: core.DirectionLong,
		Strategy:  core.StrategyRanging,
		CustomTargets: &core.CustomTargets{
			TP1:      &core.CustomTarget{Price: 103},
			TP2:      &core.CustomTarget{Price: 106},
			StopLoss: &core.CustomTarget{Price: 98.2},
		},
	}

	tp1, tp2, sl := m.targetLevels(100, result, 2)
	require.Equal(t, 103.0, tp1)
	require.Equal(t, 106.0, tp2)
	require.Equal(t, 98.2, sl)
}

func TestToTimeframeSignals(t *testing.T) {
	require.Nil(t, toTimeframeSignals(nil))

	perTF := map[string]*analysis.TimeframeAnalysis{
		"1h": {
			Timeframe:  "1h",
			Direction:  core.DirectionLong,
			Confidence: 0.7,
			Indicators: core.IndicatorValues{RSI: 28},
			Volume:     core.VolumeInfo{Relative: 1.4},
		},
	}

	out := toTimeframeSignals(perTF)
	require.Len(t, out, 1)
	require.Equal(t, core.DirectionLong, out["1h"].Direction)
	require.Equal(t, 28.0, out["1h"].Indicators.RSI)
}

// scanRepo implements the repository lookups the publish gate uses;
// everything else panics if reached.
type scanRepo struct {
	core.SignalRepository

	latest   *core.Signal
	rejected []*core.RejectedSignal
	saved    []*core.Signal
}

func (r *scanRepo) LatestSignalForSymbol(_ context.Context, symbol string) (*core.Signal, error) {
	if r.latest == nil || r.latest.Symbol != symbol {
		return nil, core.ErrSignalNotFound
	}
	return r.latest, nil
}

func (r *scanRepo) SaveRejected(_ context.Context, rej *core.RejectedSignal) error {
	r.rejected = append(r.rejected, rej)
	return nil
}

func (r *scanRepo) SaveSignal(_ context.Context, s *core.Signal) error {
	r.saved = append(r.saved, s)
	return nil
}

type scanFeeder struct {
	core.Feeder

	quote float64
}

func (f *scanFeeder) LastQuote(context.Context, string) (float64, error) {
	return f.quote, nil
}

func (f *scanFeeder) CandlesByLimit(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, core.ErrInsufficientData
}

type countingAlerter struct {
	published []*core.Signal
}

func (a *countingAlerter) PublishSignal(_ context.Context, s *core.Signal) (int, error) {
	a.published = append(a.published, s)
	return 42, nil
}

func newGateManager(t *testing.T, repo *scanRepo) (*Manager, *countingAlerter, core.CooldownStore) {
	t.Helper()
	store, err := storage.NewBuntCooldownStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	alerter := &countingAlerter{}
	cooldown := NewCooldownManager(logger.Nop(), store, nil, 4*time.Hour)
	entries := strategy.NewEntryCalculator(logger.Nop(), 2.0)
	safety := strategy.NewSafetyFilter(logger.Nop(), 0.004, 0.01,
		[]float64{1, 2}, []int{2, 5})

	m := NewManager(logger.Nop(), Config{
		MinConfidenceLong:  0.5,
		MinConfidenceShort: 0.5,
		RangingADX:         25,
		RangingScore:       0.5,
		ActiveWindow:       72 * time.Hour,
		TPMultipliers:      []float64{3, 5},
		SLMultiplier:       2.0,
		AccountBalance:     1000,
	}, &scanFeeder{quote: 100}, repo, nil, NewRanker(logger.Nop(), 0.35, "4h"),
		entries, safety, cooldown, alerter)
	return m, alerter, store
}

func gateCandidate(symbol string, dir core.Direction) Candidate {
	return Candidate{
		Symbol: symbol,
		Result: &analysis.Result{
			Direction:  dir,
			Confidence: 0.8,
			Context:    &analysis.MarketContext{ADXStrength: 30},
		},
		Score: core.Score{Total: 0.85, Base: 0.85},
	}
}

func TestCheckCandidate_PublishesAndRecordsCooldown(t *testing.T) {
	repo := &scanRepo{}
	m, alerter, store := newGateManager(t, repo)
	stats := &Stats{}

	err := m.checkCandidate(context.Background(), gateCandidate("ETHUSDT", core.DirectionShort), false, stats)
	require.NoError(t, err)

	require.Len(t, alerter.published, 1)
	require.Len(t, repo.saved, 1)
	require.Equal(t, 42, repo.saved[0].TelegramMessageID)
	require.Equal(t, 1, stats.Generated)

	entry, err := store.Get("ETHUSDT")
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestCheckCandidate_ActiveSignalBlocksNewAlert(t *testing.T) {
	now := time.Now()

	// Past the 4h cooldown but still inside the 72h tracking window.
	repo := &scanRepo{latest: &core.Signal{
		ID:                "20260826-000000-ETHUSDT",
		Symbol:            "ETHUSDT",
		Direction:         core.DirectionShort,
		CreatedAt:         now.Add(-5 * time.Hour).Unix(),
		TelegramMessageID: 7,
	}}
	m, alerter, _ := newGateManager(t, repo)
	stats := &Stats{}

	err := m.checkCandidate(context.Background(), gateCandidate("ETHUSDT", core.DirectionShort), false, stats)
	require.NoError(t, err)

	require.Empty(t, alerter.published)
	require.Len(t, repo.rejected, 1)
	require.Equal(t, "active_signal_exists", repo.rejected[0].Reason)
}

func TestCheckCandidate_CooldownRejectionReason(t *testing.T) {
	repo := &scanRepo{}
	m, alerter, store := newGateManager(t, repo)

	require.NoError(t, store.Put(core.CooldownEntry{
		Symbol:    "ETHUSDT",
		Direction: core.DirectionShort,
		SignalAt:  time.Now().Add(-10 * time.Minute).Unix(),
		UpdatedAt: time.Now().Unix(),
	}))
	stats := &Stats{}

	err := m.checkCandidate(context.Background(), gateCandidate("ETHUSDT", core.DirectionShort), false, stats)
	require.NoError(t, err)

	require.Empty(t, alerter.published)
	require.Len(t, repo.rejected, 1)
	require.Equal(t, "cooldown_active", repo.rejected[0].Reason)
}

func TestHasActiveSignal(t *testing.T) {
	now := time.Now()
	base := func() *core.Signal {
		return &core.Signal{
			Symbol:    "BTCUSDT",
			Direction: core.DirectionLong,
			CreatedAt: now.Add(-5 * time.Hour).Unix(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*core.Signal)
		want   bool
	}{
		{"still tracked", func(*core.Signal) {}, true},
		{"finalized", func(s *core.Signal) { s.FinalOutcome = core.OutcomeTP1Reached }, false},
		{"stop hit", func(s *core.Signal) { s.SLHit = true }, false},
		{"message deleted", func(s *core.Signal) { s.MessageDeleted = true }, false},
		{"expired", func(s *core.Signal) { s.CreatedAt = now.Add(-80 * time.Hour).Unix() }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := base()
			tt.mutate(sig)
			m, _, _ := newGateManager(t, &scanRepo{latest: sig})
			require.Equal(t, tt.want, m.hasActiveSignal(context.Background(), "BTCUSDT", now))
		})
	}

	m, _, _ := newGateManager(t, &scanRepo{})
	require.False(t, m.hasActiveSignal(context.Background(), "BTCUSDT", now))
}
