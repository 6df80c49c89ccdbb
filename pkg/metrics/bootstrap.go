package metrics

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// ConfidenceInterval is a bootstrap estimate of a summary statistic:
// small signal samples make the raw averages noisy, so resampling puts
// a range around them.
type ConfidenceInterval struct {
	Lower  float64
	Upper  float64
	Mean   float64
	StdDev float64
}

// Mean averages a sample, zero for an empty one.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Bootstrap resamples values with replacement, applies measure to each
// resample and returns the confidence interval of the resulting
// distribution. confidence is the level, e.g. 0.95.
func Bootstrap(values []float64, measure func([]float64) float64, resamples int, confidence float64) ConfidenceInterval {
	if len(values) == 0 || resamples <= 0 {
		return ConfidenceInterval{}
	}

	data := make([]float64, 0, resamples)
	for i := 0; i < resamples; i++ {
		sample := make([]float64, len(values))
		for j := range sample {
			sample[j] = lo.Sample(values)
		}
		data = append(data, measure(sample))
	}
	sort.Float64s(data)

	tail := 1 - confidence
	mean, stdDev := stat.MeanStdDev(data, nil)

	return ConfidenceInterval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, data, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, data, nil),
		Mean:   mean,
		StdDev: stdDev,
	}
}
