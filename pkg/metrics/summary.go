package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Manager aggregates signal performance over a period into a stored
// summary: hit rates, excursion averages, time to first target and the
// dominant market regime.
type Manager struct {
	log  logger.Logger
	repo core.SignalRepository
}

func NewManager(log logger.Logger, repo core.SignalRepository) *Manager {
	return &Manager{log: log, repo: repo}
}

// GenerateSummary computes and persists the summary for the trailing
// period. It returns nil without error when the period had no signals.
func (m *Manager) GenerateSummary(ctx context.Context, period time.Duration) (*core.MetricsSummary, error) {
	end := time.Now().Unix()
	start := end - int64(period.Seconds())

	signals, err := m.repo.SignalsBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		m.log.Infof("no signals in the last %s, summary not saved", period)
		return nil, nil
	}

	summary := m.calculate(signals)
	summary.PeriodStart = start
	summary.PeriodEnd = end

	neutral, err := m.repo.RejectedCountBetween(ctx, start, end, core.DirectionNeutral)
	if err != nil {
		m.log.WithError(err).Warn("neutral rejection count unavailable")
	} else {
		summary.NeutralFiltered = neutral
	}

	if err := m.repo.SaveMetricsSummary(ctx, summary); err != nil {
		return nil, err
	}

	m.log.Infof("summary saved: %d signals over %s", summary.TotalSignals, period)
	return summary, nil
}

func (m *Manager) calculate(signals []*core.Signal) *core.MetricsSummary {
	total := len(signals)

	longCount := lo.CountBy(signals, func(s *core.Signal) bool {
		return s.Direction == core.DirectionLong
	})
	shortCount := lo.CountBy(signals, func(s *core.Signal) bool {
		return s.Direction == core.DirectionShort
	})

	sumConfidence := lo.SumBy(signals, func(s *core.Signal) float64 { return s.Confidence })

	tp1Hits := lo.CountBy(signals, func(s *core.Signal) bool { return s.TP1Hit })
	tp2Hits := lo.CountBy(signals, func(s *core.Signal) bool { return s.TP2Hit })
	slHits := lo.CountBy(signals, func(s *core.Signal) bool { return s.SLHit })

	mfeValues := make([]float64, 0, total)
	maeValues := make([]float64, 0, total)
	hoursToFirst := make([]float64, 0, total)

	for _, s := range signals {
		if s.MFEPrice > 0 {
			mfeValues = append(mfeValues, excursionPercent(s, s.MFEPrice, true))
		}
		if s.MAEPrice > 0 {
			maeValues = append(maeValues, excursionPercent(s, s.MAEPrice, false))
		}
		if at := firstHitAt(s); at > 0 {
			hoursToFirst = append(hoursToFirst, float64(at-s.CreatedAt)/3600)
		}
	}

	// Put a resampled range around the MFE average once there is enough
	// data for it to mean something.
	if len(mfeValues) >= 10 {
		ci := Bootstrap(mfeValues, Mean, 1000, 0.95)
		m.log.Infof("avg MFE %.2f%% (95%% CI %.2f%% ~ %.2f%%)", ci.Mean, ci.Lower, ci.Upper)
	}

	return &core.MetricsSummary{
		TotalSignals:          total,
		LongSignals:           longCount,
		ShortSignals:          shortCount,
		AvgConfidence:         sumConfidence / float64(total),
		TP1HitRate:            float64(tp1Hits) / float64(total),
		TP2HitRate:            float64(tp2Hits) / float64(total),
		SLHitRate:             float64(slHits) / float64(total),
		AvgMFEPercent:         Mean(mfeValues),
		AvgMAEPercent:         Mean(maeValues),
		AvgHoursToFirstTarget: Mean(hoursToFirst),
		MarketRegime:          dominantRegime(signals),
	}
}

// excursionPercent expresses an extreme price as a direction-aware
// percentage of the signal price. MFE is the favorable move, MAE the
// adverse one; both come out positive for a real excursion.
func excursionPercent(s *core.Signal, extreme float64, favorable bool) float64 {
	if s.Price == 0 {
		return 0
	}
	diff := (extreme - s.Price) / s.Price * 100
	if (s.Direction == core.DirectionLong) != favorable {
		diff = -diff
	}
	return diff
}

// firstHitAt returns the earliest TP1 or SL touch, or 0 when the signal
// never reached a first target.
func firstHitAt(s *core.Signal) int64 {
	switch {
	case s.TP1HitAt > 0 && s.SLHitAt > 0:
		if s.TP1HitAt < s.SLHitAt {
			return s.TP1HitAt
		}
		return s.SLHitAt
	case s.TP1HitAt > 0:
		return s.TP1HitAt
	case s.SLHitAt > 0:
		return s.SLHitAt
	default:
		return 0
	}
}

// dominantRegime picks the most common market regime recorded with the
// signals in the period.
func dominantRegime(signals []*core.Signal) string {
	counts := map[string]int{}
	for _, s := range signals {
		if s.MarketContext == "" {
			continue
		}
		var ctx struct {
			Regime string `json:"regime"`
		}
		if err := json.Unmarshal([]byte(s.MarketContext), &ctx); err != nil || ctx.Regime == "" {
			continue
		}
		counts[ctx.Regime]++
	}

	dominant, best := "unknown", 0
	for regime, count := range counts {
		if count > best {
			dominant, best = regime, count
		}
	}
	return dominant
}

// RenderTable writes the summary as a console table.
func RenderTable(w io.Writer, m *core.MetricsSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})

	rows := [][]string{
		{"Period Start", time.Unix(m.PeriodStart, 0).UTC().Format("2006-01-02 15:04")},
		{"Period End", time.Unix(m.PeriodEnd, 0).UTC().Format("2006-01-02 15:04")},
		{"Total Signals", fmt.Sprintf("%d", m.TotalSignals)},
		{"Long / Short", fmt.Sprintf("%d / %d", m.LongSignals, m.ShortSignals)},
		{"Neutral Filtered", fmt.Sprintf("%d", m.NeutralFiltered)},
		{"Avg Confidence", fmt.Sprintf("%.1f%%", m.AvgConfidence*100)},
		{"TP1 Hit Rate", fmt.Sprintf("%.1f%%", m.TP1HitRate*100)},
		{"TP2 Hit Rate", fmt.Sprintf("%.1f%%", m.TP2HitRate*100)},
		{"SL Hit Rate", fmt.Sprintf("%.1f%%", m.SLHitRate*100)},
		{"Avg MFE", fmt.Sprintf("%.2f%%", m.AvgMFEPercent)},
		{"Avg MAE", fmt.Sprintf("%.2f%%", m.AvgMAEPercent)},
		{"Avg Time To First Target", fmt.Sprintf("%.1fh", m.AvgHoursToFirstTarget)},
		{"Market Regime", m.MarketRegime},
	}
	table.AppendBulk(rows)
	table.Render()
}
