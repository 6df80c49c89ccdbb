package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

func TestLiquidationPrice(t *testing.T) {
	// Long: notional 500, margin 50, qty 5, mmr 0.005.
	liq := liquidationPrice(core.DirectionLong, 100, 5, 50, 0.005)
	require.InDelta(t, 90.452, liq, 0.001)

	// Short liquidation sits above entry.
	liq = liquidationPrice(core.DirectionShort, 100, 5, 50, 0.005)
	require.Greater(t, liq, 100.0)

	require.Zero(t, liquidationPrice(core.DirectionLong, 100, 0, 50, 0.005))
	require.Zero(t, liquidationPrice(core.DirectionLong, 0, 5, 50, 0.005))
}

func TestSafetyFilter_Sweep(t *testing.T) {
	// 2% minimum SL-to-liquidation buffer.
	filter := NewSafetyFilter(logger.Nop(), 0.005, 0.02, []float64{1}, []int{10, 100})

	safe, unsafe := filter.Sweep(100, 98, core.DirectionLong, 1000)

	// 10x keeps liquidation far below the stop, 100x pulls it within the
	// buffer.
	require.Len(t, safe, 1)
	require.Len(t, unsafe, 1)
	require.Equal(t, 10, safe[0].Leverage)
	require.Equal(t, 100, unsafe[0].Leverage)
	require.Greater(t, safe[0].SLLiqDiffPct, unsafe[0].SLLiqDiffPct)
}

func TestSafetyFilter_SweepZeroStopDistance(t *testing.T) {
	filter := NewSafetyFilter(logger.Nop(), 0.005, 0.02, []float64{1}, []int{10})

	safe, unsafe := filter.Sweep(100, 100, core.DirectionLong, 1000)
	require.Nil(t, safe)
	require.Nil(t, unsafe)
}

func TestSafetyFilter_OptimalSafe(t *testing.T) {
	filter := NewSafetyFilter(logger.Nop(), 0.005, 0.02, []float64{1, 2}, []int{5, 10})

	best, ok := filter.OptimalSafe(100, 98, core.DirectionLong, 1000)
	require.True(t, ok)

	// The widest SL-to-liquidation gap comes from the lowest leverage.
	require.Equal(t, 5, best.Leverage)
}

func TestSafetyFilter_RiskPercentage(t *testing.T) {
	filter := NewSafetyFilter(logger.Nop(), 0.005, 0.02, []float64{1}, []int{10, 100})

	risk := filter.RiskPercentage(100, 98, core.DirectionLong, 1000)
	require.InDelta(t, 50.0, risk, 1e-9)
}
