package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

func alertSignal(createdAt int64) *core.Signal {
	return &core.Signal{
		ID:         "20250101-120000-BTCUSDT",
		Symbol:     "BTCUSDT",
		Direction:  core.DirectionLong,
		Price:      50000,
		Confidence: 0.72,
		CreatedAt:  createdAt,
		Strategy:   core.StrategyTrend,
		TP1Price:   51000,
		TP2Price:   52000,
		SLPrice:    49000,
	}
}

func TestSignalAlert_InitialHidesCurrentPrice(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	msg := f.SignalAlert(alertSignal(now), 50000, now)
	require.NotContains(t, msg, "Current:")
	require.Contains(t, msg, "Signal:")
	require.Contains(t, msg, "LONG")
	require.Contains(t, msg, "BTCUSDT")
	require.Contains(t, msg, "`$50,000.00`")
}

func TestSignalAlert_TrackedShowsCurrentAndPnL(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	sig := alertSignal(now - 3600)
	msg := f.SignalAlert(sig, 50500, now)

	require.Contains(t, msg, "Current:")
	require.Contains(t, msg, "`$50,500.00`")
	// +1% unrealized.
	require.Contains(t, msg, "+1")
	require.Contains(t, msg, "Profit")
	require.Contains(t, msg, "1 hour")
}

func TestSignalAlert_HitTimeline(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	sig := alertSignal(now - 7200)
	sig.TP1Hit = true
	sig.TP1HitAt = now - 3600

	msg := f.SignalAlert(sig, 51200, now)
	require.Contains(t, msg, "Signal Log:")
	require.Contains(t, msg, "TP1🎯")
	require.Contains(t, msg, "✅")
}

func TestSignalAlert_LiquidationRisk(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	sig := alertSignal(now - 3600)
	sig.LiquidationRiskPct = 55

	msg := f.SignalAlert(sig, 50000, now)
	require.Contains(t, msg, "Liquidation Risk:")
	require.Contains(t, msg, "High")
}

func TestSignalAlert_ContradictingBiasShown(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	sig := alertSignal(now - 3600)
	sig.TimeframeSignals = map[string]core.TimeframeSignal{
		"4h": {Timeframe: "4h", Direction: core.DirectionShort},
	}

	msg := f.SignalAlert(sig, 50000, now)
	require.Contains(t, msg, "4H Confirmation:")
	require.Contains(t, msg, "Bearish")

	// A confirming bias stays silent.
	sig.TimeframeSignals["4h"] = core.TimeframeSignal{Timeframe: "4h", Direction: core.DirectionLong}
	msg = f.SignalAlert(sig, 50000, now)
	require.NotContains(t, msg, "4H Confirmation:")
}

func TestTargetLines_RangingUsesCustomTargets(t *testing.T) {
	f := NewFormatter(time.UTC)
	sig := alertSignal(time.Now().Unix())
	sig.Strategy = core.StrategyRanging
	sig.CustomTargets = &core.CustomTargets{
		TP1:      &core.CustomTarget{Price: 50500, Label: "Middle Band"},
		TP2:      &core.CustomTarget{Price: 51000, Label: "Upper Band"},
		StopLoss: &core.CustomTarget{Price: 49500},
	}

	lines := f.targetLines(sig)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "TP1")
	require.Contains(t, lines[0], "1.00R")
	require.Contains(t, lines[1], "2.00R")
}

func TestStopLossLine(t *testing.T) {
	f := NewFormatter(time.UTC)

	sig := alertSignal(time.Now().Unix())
	line := f.stopLossLine(sig)
	require.Contains(t, line, "SL")
	require.Contains(t, line, "Risk: 2.0%")
	require.Contains(t, line, "⏳")

	sig.SLHit = true
	require.Contains(t, f.stopLossLine(sig), "❌")

	sig.SLPrice = 0
	require.Equal(t, "   -", f.stopLossLine(sig))
}

func TestTargetPercent(t *testing.T) {
	long := &core.Signal{Direction: core.DirectionLong, Price: 100}
	require.InDelta(t, 4, targetPercent(long, 104), 1e-9)
	require.InDelta(t, -3, targetPercent(long, 97), 1e-9)

	short := &core.Signal{Direction: core.DirectionShort, Price: 100}
	require.InDelta(t, 4, targetPercent(short, 96), 1e-9)

	require.Zero(t, targetPercent(&core.Signal{}, 104))
}

func TestFormatElapsed(t *testing.T) {
	require.Equal(t, "-", formatElapsed(0, 100))
	require.Equal(t, "-", formatElapsed(200, 100))
	require.Equal(t, "0 minutes", formatElapsed(100, 100))
	require.Equal(t, "less than 1 minute", formatElapsed(100, 130))
	require.Equal(t, "1 minute", formatElapsed(100, 160))
	require.Equal(t, "2 hours 11 minutes", formatElapsed(1000, 1000+2*3600+11*60))
	require.Equal(t, "1 day 1 hour", formatElapsed(1000, 1000+86400+3600))
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "-", formatPrice(0))
	require.Equal(t, "`$1,234.57`", formatPrice(1234.567))
	require.Equal(t, "`$0.004560`", formatPrice(0.00456))
	require.Equal(t, "`$1,000,000.00`", formatPrice(1e6))
}

func TestGroupThousands(t *testing.T) {
	require.Equal(t, "123", groupThousands("123"))
	require.Equal(t, "1,234", groupThousands("1234"))
	require.Equal(t, "1,234,567.89", groupThousands("1234567.89"))
	require.Equal(t, "-12,345.00", groupThousands("-12345.00"))
}

func TestEscapeMarkdownV2(t *testing.T) {
	// Formatting markers survive, punctuation is escaped.
	require.Equal(t, `*bold* \(note\)`, escapeMarkdownV2("*bold* (note)"))
	// Code spans are left untouched.
	require.Equal(t, "`$1,234.50 (x)`", escapeMarkdownV2("`$1,234.50 (x)`"))
	require.Equal(t, `a\.b`, escapeMarkdownV2("a.b"))
}

func TestFormatSummary(t *testing.T) {
	msg := formatSummary(&core.MetricsSummary{
		PeriodStart: 0, PeriodEnd: 86400,
		TotalSignals: 10, LongSignals: 6, ShortSignals: 4,
		NeutralFiltered: 2, AvgConfidence: 0.65,
		TP1HitRate: 0.5, MarketRegime: "trending_up",
	})

	require.Contains(t, msg, "PERFORMANCE SUMMARY")
	require.Contains(t, msg, "`10` (LONG 6 / SHORT 4)")
	require.Contains(t, msg, "Neutral filtered: `2`")
	require.Contains(t, msg, "TP1 hit rate: `50.0%`")
	require.Contains(t, msg, "Dominant regime: `trending_up`")

	noRegime := formatSummary(&core.MetricsSummary{})
	require.NotContains(t, noRegime, "Dominant regime")
}

func TestLines_SignalStructure(t *testing.T) {
	f := NewFormatter(time.UTC)
	now := time.Now().Unix()

	msg := f.SignalAlert(alertSignal(now-3600), 50500, now)
	lines := strings.Split(msg, "\n")
	require.Greater(t, len(lines), 8)
	// The header carries the direction color.
	require.True(t, strings.HasPrefix(lines[0], "🟢"))
}
