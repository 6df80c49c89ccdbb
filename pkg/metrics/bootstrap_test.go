package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	require.Zero(t, Mean(nil))
	require.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-9)
}

func TestBootstrap(t *testing.T) {
	require.Zero(t, Bootstrap(nil, Mean, 100, 0.95))
	require.Zero(t, Bootstrap([]float64{1, 2}, Mean, 0, 0.95))

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ci := Bootstrap(values, Mean, 2000, 0.95)

	// The resampled interval straddles the sample mean.
	require.Less(t, ci.Lower, 5.5)
	require.Greater(t, ci.Upper, 5.5)
	require.InDelta(t, 5.5, ci.Mean, 0.5)
	require.Greater(t, ci.StdDev, 0.0)
	require.LessOrEqual(t, ci.Lower, ci.Upper)
}

func TestBootstrap_ConstantSample(t *testing.T) {
	ci := Bootstrap([]float64{3, 3, 3, 3}, Mean, 200, 0.9)
	require.Equal(t, 3.0, ci.Lower)
	require.Equal(t, 3.0, ci.Upper)
	require.Equal(t, 3.0, ci.Mean)
	require.Zero(t, ci.StdDev)
}
