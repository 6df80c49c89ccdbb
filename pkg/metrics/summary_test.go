package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// metricsRepo serves a fixed signal set and records the saved summary.
type metricsRepo struct {
	core.SignalRepository

	signals []*core.Signal
	neutral int
	saved   *core.MetricsSummary
}

func (r *metricsRepo) SignalsBetween(context.Context, int64, int64) ([]*core.Signal, error) {
	return r.signals, nil
}

func (r *metricsRepo) RejectedCountBetween(context.Context, int64, int64, core.Direction) (int, error) {
	return r.neutral, nil
}

func (r *metricsRepo) SaveMetricsSummary(_ context.Context, m *core.MetricsSummary) error {
	r.saved = m
	return nil
}

func TestGenerateSummary(t *testing.T) {
	now := time.Now().Unix()
	repo := &metricsRepo{
		neutral: 3,
		signals: []*core.Signal{
			{
				Symbol: "BTCUSDT", Direction: core.DirectionLong, Price: 100, Confidence: 0.8,
				CreatedAt: now - 7200, TP1Hit: true, TP1HitAt: now - 3600,
				MFEPrice: 105, MAEPrice: 99,
				MarketContext: `{"regime":"trending_up"}`,
			},
			{
				Symbol: "ETHUSDT", Direction: core.DirectionShort, Price: 200, Confidence: 0.6,
				CreatedAt: now - 7200, SLHit: true, SLHitAt: now - 5400,
				MFEPrice: 196, MAEPrice: 204,
				MarketContext: `{"regime":"trending_up"}`,
			},
		},
	}

	m := NewManager(logger.Nop(), repo)
	summary, err := m.GenerateSummary(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.Same(t, summary, repo.saved)

	require.Equal(t, 2, summary.TotalSignals)
	require.Equal(t, 1, summary.LongSignals)
	require.Equal(t, 1, summary.ShortSignals)
	require.Equal(t, 3, summary.NeutralFiltered)
	require.InDelta(t, 0.7, summary.AvgConfidence, 1e-9)
	require.InDelta(t, 0.5, summary.TP1HitRate, 1e-9)
	require.InDelta(t, 0.0, summary.TP2HitRate, 1e-9)
	require.InDelta(t, 0.5, summary.SLHitRate, 1e-9)

	// Long MFE 105 on 100 is +5%; short MFE 196 on 200 is +2%.
	require.InDelta(t, 3.5, summary.AvgMFEPercent, 1e-9)
	// Long MAE 99 is +1% adverse; short MAE 204 is +2% adverse.
	require.InDelta(t, 1.5, summary.AvgMAEPercent, 1e-9)
	// TP1 at 1h, SL at 0.5h.
	require.InDelta(t, 0.75, summary.AvgHoursToFirstTarget, 1e-9)
	require.Equal(t, "trending_up", summary.MarketRegime)
}

func TestGenerateSummary_NoSignals(t *testing.T) {
	m := NewManager(logger.Nop(), &metricsRepo{})

	summary, err := m.GenerateSummary(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Nil(t, summary)
}

func TestExcursionPercent(t *testing.T) {
	long := &core.Signal{Direction: core.DirectionLong, Price: 100}
	require.InDelta(t, 5, excursionPercent(long, 105, true), 1e-9)
	require.InDelta(t, 2, excursionPercent(long, 98, false), 1e-9)

	short := &core.Signal{Direction: core.DirectionShort, Price: 100}
	require.InDelta(t, 5, excursionPercent(short, 95, true), 1e-9)
	require.InDelta(t, 2, excursionPercent(short, 102, false), 1e-9)

	require.Zero(t, excursionPercent(&core.Signal{Direction: core.DirectionLong}, 105, true))
}

func TestFirstHitAt(t *testing.T) {
	require.Equal(t, int64(0), firstHitAt(&core.Signal{}))
	require.Equal(t, int64(10), firstHitAt(&core.Signal{TP1HitAt: 10}))
	require.Equal(t, int64(20), firstHitAt(&core.Signal{SLHitAt: 20}))
	require.Equal(t, int64(10), firstHitAt(&core.Signal{TP1HitAt: 10, SLHitAt: 20}))
	require.Equal(t, int64(5), firstHitAt(&core.Signal{TP1HitAt: 10, SLHitAt: 5}))
}

func TestDominantRegime(t *testing.T) {
	signals := []*core.Signal{
		{MarketContext: `{"regime":"ranging"}`},
		{MarketContext: `{"regime":"ranging"}`},
		{MarketContext: `{"regime":"trending_up"}`},
		{MarketContext: `not json`},
		{},
	}
	require.Equal(t, "ranging", dominantRegime(signals))
	require.Equal(t, "unknown", dominantRegime(nil))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, &core.MetricsSummary{
		PeriodStart: 0, PeriodEnd: 86400,
		TotalSignals: 4, LongSignals: 3, ShortSignals: 1,
		TP1HitRate: 0.5, MarketRegime: "ranging",
	})

	out := buf.String()
	require.Contains(t, out, "Total Signals")
	require.Contains(t, out, "50.0%")
	require.Contains(t, out, "ranging")
}
