package scanner

import (
	"sort"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// defaultPreferredTimeframes is the fallback lookup order when picking
// which timeframe's indicators feed the ranking bonuses.
var defaultPreferredTimeframes = []string{"4h", "1d", "1h"}

// Candidate pairs a symbol with its combined analysis result for ranking.
type Candidate struct {
	Symbol string
	Result *analysis.Result
	Score  core.Score
}

// Ranker scores signals by confidence plus RSI-extremity and
// volume-strength bonuses, then selects the strongest ones.
type Ranker struct {
	log       logger.Logger
	minScore  float64
	preferred []string
}

// NewRanker builds a ranker whose bonuses read the primary timeframe
// first, then fall back to the default preference order.
func NewRanker(log logger.Logger, minScore float64, primary string) *Ranker {
	preferred := make([]string, 0, len(defaultPreferredTimeframes)+1)
	if primary != "" {
		preferred = append(preferred, primary)
	}
	for _, tf := range defaultPreferredTimeframes {
		if tf != primary {
			preferred = append(preferred, tf)
		}
	}
	return &Ranker{log: log, minScore: minScore, preferred: preferred}
}

// Score computes the ranking breakdown for a single result. The second
// return value is false when the base confidence is below the ranker
// threshold and the signal should not be ranked at all.
func (r *Ranker) Score(symbol string, res *analysis.Result) (core.Score, bool) {
	if res.Confidence < r.minScore {
		return core.Score{}, false
	}

	base := res.Confidence * 1.1
	if res.Direction == core.DirectionNeutral {
		base = res.Confidence * 0.8
	}

	rsiBonus := r.rsiExtremityBonus(res)
	volumeBonus := r.volumeStrengthBonus(res)

	score := core.Score{
		Total:       base + rsiBonus*0.3 + volumeBonus*0.2,
		Base:        base,
		RSIBonus:    rsiBonus,
		VolumeBonus: volumeBonus,
	}

	r.log.Debugf("%s: base=%.3f rsi_bonus=%.3f volume_bonus=%.3f total=%.3f",
		symbol, score.Base, score.RSIBonus, score.VolumeBonus, score.Total)
	return score, true
}

// Rank scores every candidate and returns the top N by total score.
// Candidates below the minimum confidence are dropped.
func (r *Ranker) Rank(candidates []Candidate, topCount int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	scored := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		score, ok := r.Score(c.Symbol, c.Result)
		if !ok {
			continue
		}
		c.Score = score
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Total > scored[j].Score.Total
	})

	if topCount > 0 && len(scored) > topCount {
		scored = scored[:topCount]
	}

	if len(scored) > 0 {
		symbols := make([]string, len(scored))
		for i, c := range scored {
			symbols[i] = c.Symbol
		}
		r.log.Infof("top %d signals selected: %v", len(scored), symbols)
	}
	return scored
}

// rsiExtremityBonus rewards signals whose RSI sits at an extreme that
// agrees with the direction: deeply oversold LONGs and deeply overbought
// SHORTs. A LONG at high RSI is a contradiction and earns nothing.
func (r *Ranker) rsiExtremityBonus(res *analysis.Result) float64 {
	rsi, ok := r.preferredIndicators(res)
	if !ok {
		return 0
	}

	switch res.Direction {
	case core.DirectionLong:
		switch {
		case rsi <= 20:
			return 1.0
		case rsi <= 25:
			return 0.7
		case rsi <= 30:
			return 0.4
		case rsi <= 35:
			return 0.15
		}
	case core.DirectionShort:
		switch {
		case rsi >= 80:
			return 1.0
		case rsi >= 75:
			return 0.7
		case rsi >= 70:
			return 0.4
		case rsi >= 65:
			return 0.15
		}
	case core.DirectionNeutral:
		switch {
		case rsi >= 75 || rsi <= 25:
			return 0.5
		case rsi >= 70 || rsi <= 30:
			return 0.3
		case rsi >= 65 || rsi <= 35:
			return 0.15
		}
	}
	return 0
}

// volumeStrengthBonus rewards elevated relative volume on the
// highest-priority timeframe.
func (r *Ranker) volumeStrengthBonus(res *analysis.Result) float64 {
	relative := 0.0
	found := false
	for _, tf := range r.preferred {
		if analysisTF, ok := res.Timeframes[tf]; ok {
			relative = analysisTF.Volume.Relative
			found = true
			break
		}
	}
	if !found {
		return 0
	}

	switch {
	case relative >= 3.0:
		return 1.0
	case relative >= 2.5:
		return 0.8
	case relative >= 2.0:
		return 0.6
	case relative >= 1.5:
		return 0.4
	case relative >= 1.2:
		return 0.2
	default:
		return 0
	}
}

func (r *Ranker) preferredIndicators(res *analysis.Result) (rsi float64, ok bool) {
	for _, tf := range r.preferred {
		if analysisTF, found := res.Timeframes[tf]; found {
			return analysisTF.Indicators.RSI, true
		}
	}
	return 0, false
}
