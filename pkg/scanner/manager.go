package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/indicator"
	"github.com/unvoidf/sigscan/pkg/logger"
	"github.com/unvoidf/sigscan/pkg/strategy"
)

const (
	// Timeframe and lookback used for entry-level ATR math.
	entryTimeframe = "1h"
	entryLookback  = 200

	btcSymbol = "BTCUSDT"

	// Default size of the scan universe when no whitelist is set.
	defaultScanLimit = 50
)

// Rejection reasons stored with filtered-out candidates.
const (
	rejectionNeutral      = "direction_neutral"
	rejectionActiveSignal = "active_signal_exists"
	rejectionCooldown     = "cooldown_active"
	rejectionBTCCrash     = "btc_crash"
)

// Alerter publishes a formatted signal alert and returns the resulting
// channel message id.
type Alerter interface {
	PublishSignal(ctx context.Context, s *core.Signal) (messageID int, err error)
}

// Config carries the scan thresholds and market parameters.
type Config struct {
	Timeframes         []string
	KlineLimit         int
	Symbols            []string
	ScanLimit          int
	TopSignals         int
	MinConfidenceLong  float64
	MinConfidenceShort float64
	MinATRPercent      float64
	RangingADX         float64
	RangingScore       float64
	BTCCrashPercent    float64
	ActiveWindow       time.Duration
	TPMultipliers      []float64
	SLMultiplier       float64
	AccountBalance     float64
	ChannelID          string
}

// Stats counts scan outcomes for the end-of-cycle summary.
type Stats struct {
	TotalScanned       int
	Generated          int
	RejectedTrend      int
	RejectedConfidence int
	RejectedBTC        int
	RejectedLowATR     int
	RankedOut          int
	NoSignal           int
}

// Manager runs the scan pipeline: pick the symbol universe, analyze each
// symbol across timeframes, rank and filter the results, and publish the
// survivors.
type Manager struct {
	log      logger.Logger
	cfg      Config
	feeder   core.Feeder
	repo     core.SignalRepository
	gen      *analysis.Generator
	ranker   *Ranker
	entries  *strategy.EntryCalculator
	safety   *strategy.SafetyFilter
	cooldown *CooldownManager
	alerter  Alerter
}

func NewManager(log logger.Logger, cfg Config, feeder core.Feeder,
	repo core.SignalRepository, gen *analysis.Generator, ranker *Ranker,
	entries *strategy.EntryCalculator, safety *strategy.SafetyFilter,
	cooldown *CooldownManager, alerter Alerter) *Manager {
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaultScanLimit
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 72 * time.Hour
	}
	return &Manager{
		log:      log,
		cfg:      cfg,
		feeder:   feeder,
		repo:     repo,
		gen:      gen,
		ranker:   ranker,
		entries:  entries,
		safety:   safety,
		cooldown: cooldown,
		alerter:  alerter,
	}
}

// Scan runs one full scan cycle and returns the outcome counters.
func (m *Manager) Scan(ctx context.Context) (*Stats, error) {
	m.log.Info("signal scan started")

	btcCrash := m.logMarketPulse(ctx)

	symbols, err := m.feeder.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	universe := filterUniverse(symbols, m.cfg.Symbols, m.cfg.ScanLimit)
	if len(universe) == 0 {
		m.log.Warn("scan universe is empty")
		return &Stats{}, nil
	}

	stats := &Stats{}
	candidates := make([]Candidate, 0, len(universe))
	for _, symbol := range universe {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.TotalScanned++

		result, err := m.analyzeSymbol(ctx, symbol)
		if err != nil {
			m.log.WithError(err).Errorf("%s signal check failed", symbol)
			continue
		}
		if result == nil {
			stats.NoSignal++
			continue
		}
		if result.Confidence < m.ranker.minScore {
			m.logRejectionScorecard(symbol, result.Confidence,
				m.directionThreshold(result.Direction), result, nil)
			stats.RejectedConfidence++
			continue
		}
		candidates = append(candidates, Candidate{Symbol: symbol, Result: result})
	}

	ranked := m.ranker.Rank(candidates, m.cfg.TopSignals)
	stats.RankedOut = len(candidates) - len(ranked)

	for _, c := range ranked {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if err := m.checkCandidate(ctx, c, btcCrash, stats); err != nil {
			m.log.WithError(err).Errorf("%s signal check failed", c.Symbol)
		}
	}

	m.logScanSummary(stats)
	m.log.Info("signal scan finished")
	return stats, nil
}

// analyzeSymbol fetches every configured timeframe and runs the combined
// analysis. A nil result without error means there was not enough data.
func (m *Manager) analyzeSymbol(ctx context.Context, symbol string) (*analysis.Result, error) {
	candlesByTF := make(map[string][]core.Candle, len(m.cfg.Timeframes))
	for _, tf := range m.cfg.Timeframes {
		candles, err := m.feeder.CandlesByLimit(ctx, symbol, tf, m.cfg.KlineLimit)
		if err != nil {
			m.log.Debugf("%s %s candles unavailable: %v", symbol, tf, err)
			continue
		}
		candlesByTF[tf] = candles
	}
	if len(candlesByTF) == 0 {
		return nil, nil
	}

	result, err := m.gen.Generate(candlesByTF)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

func (m *Manager) checkCandidate(ctx context.Context, c Candidate, btcCrash bool, stats *Stats) error {
	symbol, result, score := c.Symbol, c.Result, c.Score
	threshold := m.directionThreshold(result.Direction)

	if score.Total > 1.0 {
		m.log.Warnf("%s total score %.3f > 1.0, confidence capped at %.3f",
			symbol, score.Total, math.Min(score.Total, 1.0))
	}
	result.Confidence = math.Min(score.Total, 1.0)
	if score.Total < threshold {
		m.logRejectionScorecard(symbol, score.Total, threshold, result, &score)
		stats.RejectedConfidence++
		return nil
	}

	price, err := m.feeder.LastQuote(ctx, symbol)
	if err != nil {
		return err
	}

	// Thin markets produce unreliable signals: reject when the ATR is a
	// tiny fraction of price.
	var atr float64
	if result.Context != nil {
		atr = result.Context.ATR14
	}
	if atr > 0 && price > 0 {
		atrPercent := atr / price * 100
		if atrPercent < m.cfg.MinATRPercent {
			m.log.Warnf("%s rejected: ATR too low (%.2f%% < %g%%)",
				symbol, atrPercent, m.cfg.MinATRPercent)
			stats.RejectedLowATR++
			return nil
		}
	}

	// NEUTRAL reads are recorded but never published.
	if result.Direction == core.DirectionNeutral {
		m.log.Debugf("%s signal is NEUTRAL (score=%.3f), channel alert skipped",
			symbol, score.Total)
		m.saveRejected(ctx, symbol, result, price, rejectionNeutral)
		stats.NoSignal++
		return nil
	}

	var regime core.Regime
	var adxStrength float64
	if result.Context != nil {
		regime = result.Context.Regime
		adxStrength = result.Context.ADXStrength
	}

	// A LONG into a falling market or a SHORT into a rising one is a
	// trend mismatch.
	if (regime == core.RegimeTrendingDown && result.Direction == core.DirectionLong) ||
		(regime == core.RegimeTrendingUp && result.Direction == core.DirectionShort) {
		m.log.Infof("%s %s signal rejected: market regime %s (ADX=%.1f), trend mismatch",
			symbol, result.Direction, regime, adxStrength)
		stats.RejectedTrend++
		return nil
	}

	// When BTC is crashing, every altcoin LONG is fighting the tide.
	if btcCrash && result.Direction == core.DirectionLong {
		m.log.Infof("%s LONG rejected: BTC crash guard active", symbol)
		m.saveRejected(ctx, symbol, result, price, rejectionBTCCrash)
		stats.RejectedBTC++
		return nil
	}

	// Ranging or weak-trend markets only pass with a high score.
	if regime == core.RegimeRanging || adxStrength < m.cfg.RangingADX {
		if score.Total < m.cfg.RangingScore {
			m.log.Infof("%s ranging/weak trend (ADX=%.1f), score=%.3f < %g, skipped",
				symbol, adxStrength, score.Total, m.cfg.RangingScore)
			stats.RejectedConfidence++
			return nil
		}
	}

	stats.Generated++

	now := time.Now()

	// One live signal per symbol: a fresh alert would race the tracker
	// edits of the previous message.
	if m.hasActiveSignal(ctx, symbol, now) {
		m.log.Infof("%s skipped: previous signal is still being tracked", symbol)
		m.saveRejected(ctx, symbol, result, price, rejectionActiveSignal)
		return nil
	}

	if !m.cooldown.ShouldSend(ctx, symbol, result.Direction, now) {
		m.saveRejected(ctx, symbol, result, price, rejectionCooldown)
		return nil
	}

	return m.publish(ctx, symbol, result, score, price)
}

// hasActiveSignal reports whether the symbol's most recent signal is
// still inside its tracking lifetime.
func (m *Manager) hasActiveSignal(ctx context.Context, symbol string, now time.Time) bool {
	if m.repo == nil {
		return false
	}

	sig, err := m.repo.LatestSignalForSymbol(ctx, symbol)
	if errors.Is(err, core.ErrSignalNotFound) {
		return false
	}
	if err != nil {
		m.log.WithError(err).Errorf("%s active signal lookup failed", symbol)
		return false
	}

	if sig.IsFinal() || sig.MessageDeleted {
		return false
	}
	return sig.Age(now) < m.cfg.ActiveWindow
}

// publish assembles the full signal, sends the channel alert and persists
// the result. The cooldown is refreshed even when the alert fails, so the
// same signal is not retried every scan.
func (m *Manager) publish(ctx context.Context, symbol string, result *analysis.Result,
	score core.Score, signalPrice float64) error {
	now := time.Now()

	entryATR := m.entryATR(ctx, symbol)
	levels := m.entries.Calculate(symbol, result.Direction, signalPrice, entryATR, entryTimeframe)

	tp1, tp2, sl := m.targetLevels(signalPrice, result, entryATR)

	sig := &core.Signal{
		ID:                     core.NewSignalID(symbol, now),
		Symbol:                 symbol,
		Direction:              result.Direction,
		Price:                  signalPrice,
		Confidence:             result.Confidence,
		ATR:                    entryATR,
		Timeframe:              entryTimeframe,
		CreatedAt:              now.Unix(),
		Strategy:               result.Strategy,
		CustomTargets:          result.CustomTargets,
		TP1Price:               tp1,
		TP2Price:               tp2,
		SLPrice:                sl,
		EntryLevels:            levels,
		OptimalEntryPrice:      levels.Optimal.Price,
		ConservativeEntryPrice: levels.Conservative.Price,
		ScoreBreakdown:         &score,
		TelegramChannelID:      m.cfg.ChannelID,
		TimeframeSignals:       toTimeframeSignals(result.Timeframes),
	}

	if result.Context != nil {
		if raw, err := json.Marshal(result.Context); err == nil {
			sig.MarketContext = string(raw)
		}
	}

	if risk := math.Abs(signalPrice - sl); risk > 0 && sl > 0 {
		sig.TP1DistanceR = strategy.RDistance(signalPrice, tp1, risk, result.Direction)
		sig.TP2DistanceR = strategy.RDistance(signalPrice, tp2, risk, result.Direction)
		sig.SLDistanceR = strategy.RDistance(signalPrice, sl, risk, result.Direction)
	}

	if sl > 0 {
		sig.LiquidationRiskPct = m.safety.RiskPercentage(signalPrice, sl,
			result.Direction, m.cfg.AccountBalance)
		m.log.Infof("signal %s carries %.2f%% liquidation risk (%s)",
			sig.ID, sig.LiquidationRiskPct, symbol)
	}

	messageID, err := m.alerter.PublishSignal(ctx, sig)
	if err != nil {
		m.log.WithError(err).Errorf("%s alert publish failed (signal %s)", symbol, sig.ID)
		m.cooldown.Update(symbol, result.Direction, result.Confidence, now)
		return nil
	}
	sig.TelegramMessageID = messageID

	if m.repo != nil {
		if err := m.repo.SaveSignal(ctx, sig); err != nil {
			m.log.WithError(err).Errorf("%s signal could not be persisted (signal %s, message %d)",
				symbol, sig.ID, messageID)
		} else {
			m.log.Infof("signal persisted: %s - %s", sig.ID, symbol)
		}
	}

	m.cooldown.Update(symbol, result.Direction, result.Confidence, now)
	m.log.Infof("%s alert published (dir=%s score=%.3f) message=%d signal=%s",
		symbol, result.Direction, result.Confidence, messageID, sig.ID)
	return nil
}

// targetLevels derives the tracked TP/SL prices. Mean-reversion signals
// use their band targets; trend signals use the ATR ladder with a
// 1%-of-price fallback when no ATR is known.
func (m *Manager) targetLevels(signalPrice float64, result *analysis.Result,
	atr float64) (tp1, tp2, sl float64) {
	if result.Strategy == core.StrategyRanging && result.CustomTargets != nil {
		ct := result.CustomTargets
		if ct.TP1 != nil {
			tp1 = ct.TP1.Price
		}
		if ct.TP2 != nil {
			tp2 = ct.TP2.Price
		}
		if ct.StopLoss != nil {
			sl = ct.StopLoss.Price
		}
		return tp1, tp2, sl
	}

	riskDist := atr
	if riskDist <= 0 {
		riskDist = signalPrice * 0.01
	}

	sign := 1.0
	if result.Direction == core.DirectionShort {
		sign = -1.0
	}

	if len(m.cfg.TPMultipliers) > 0 {
		tp1 = signalPrice + sign*riskDist*m.cfg.TPMultipliers[0]
	}
	if len(m.cfg.TPMultipliers) > 1 {
		tp2 = signalPrice + sign*riskDist*m.cfg.TPMultipliers[1]
	}

	if atr > 0 {
		sl = signalPrice - sign*atr*m.cfg.SLMultiplier
	} else {
		sl = signalPrice * (1 - sign*m.cfg.SLMultiplier/100)
	}
	return tp1, tp2, sl
}

// entryATR computes the ATR used for the entry ladder from the primary
// timeframe series.
func (m *Manager) entryATR(ctx context.Context, symbol string) float64 {
	candles, err := m.feeder.CandlesByLimit(ctx, symbol, entryTimeframe, entryLookback)
	if err != nil {
		m.log.Warnf("%s entry ATR unavailable: %v", symbol, err)
		return 0
	}
	if len(candles) < indicator.MinCandles {
		return 0
	}
	iv, err := indicator.Snapshot(candles)
	if err != nil {
		m.log.Warnf("%s entry ATR snapshot failed: %v", symbol, err)
		return 0
	}
	return iv.ATR
}

func (m *Manager) directionThreshold(direction core.Direction) float64 {
	if direction == core.DirectionLong {
		return m.cfg.MinConfidenceLong
	}
	return m.cfg.MinConfidenceShort
}

func (m *Manager) saveRejected(ctx context.Context, symbol string,
	result *analysis.Result, price float64, reason string) {
	if m.repo == nil {
		return
	}

	rejected := &core.RejectedSignal{
		Symbol:     symbol,
		Direction:  result.Direction,
		Confidence: result.Confidence,
		Price:      price,
		CreatedAt:  time.Now().Unix(),
		Reason:     reason,
	}
	if result.Context != nil {
		if raw, err := json.Marshal(result.Context); err == nil {
			rejected.MarketContext = string(raw)
		}
	}

	if err := m.repo.SaveRejected(ctx, rejected); err != nil {
		m.log.WithError(err).Errorf("%s rejected signal could not be persisted", symbol)
	}
}

// logRejectionScorecard emits a compact rejection line plus a detailed
// breakdown at debug level.
func (m *Manager) logRejectionScorecard(symbol string, total, threshold float64,
	result *analysis.Result, score *core.Score) {
	regime := core.Regime("unknown")
	if result.Context != nil {
		regime = result.Context.Regime
	}
	m.log.Infof("%s rejected: score=%.2f < %.2f (dir=%s, regime=%s)",
		symbol, total, threshold, result.Direction, regime)

	if result.Breakdown == nil {
		return
	}
	base, rsiBonus, volumeBonus := total, 0.0, 0.0
	if score != nil {
		base, rsiBonus, volumeBonus = score.Base, score.RSIBonus, score.VolumeBonus
	}
	m.log.Debugf("%s rejection details: base=%.3f, rsi_bonus=%+.3f, vol_bonus=%+.3f, RSI=%.1f/%s, ADX=%.1f, vol=%.2fx",
		symbol, base, rsiBonus, volumeBonus,
		result.Breakdown.RSIValue, result.Breakdown.RSISignal,
		result.Breakdown.ADXValue, result.Breakdown.VolumeRelative)
}

// logMarketPulse summarizes overall market state from BTC and reports
// whether the crash guard should be active for this cycle.
func (m *Manager) logMarketPulse(ctx context.Context) bool {
	candles, err := m.feeder.CandlesByLimit(ctx, btcSymbol, entryTimeframe, entryLookback)
	if err != nil || len(candles) < indicator.MinCandles {
		m.log.Debugf("market pulse unavailable: %v", err)
		return false
	}

	iv, err := indicator.Snapshot(candles)
	if err != nil {
		m.log.Debugf("market pulse snapshot failed: %v", err)
		return false
	}

	change24h := 0.0
	if len(candles) > 24 {
		prev := candles[len(candles)-25].Close
		if prev > 0 {
			change24h = (iv.Close - prev) / prev * 100
		}
	}

	status := "steady"
	switch {
	case change24h < -3.0 || iv.RSI < 30:
		status = "crash risk"
	case change24h < -1.0:
		status = "falling"
	case change24h > 3.0:
		status = "strong rally"
	case change24h > 1.0:
		status = "rising"
	}

	m.log.Infof("market pulse: BTC %s (24h: %+.2f%%, RSI: %.1f)", status, change24h, iv.RSI)

	return change24h <= -m.cfg.BTCCrashPercent
}

func (m *Manager) logScanSummary(stats *Stats) {
	m.log.Infof("scan summary (%d coins): generated=%d, rejected trend=%d confidence=%d btc=%d low_atr=%d, ranked out=%d, no signal=%d",
		stats.TotalScanned, stats.Generated, stats.RejectedTrend,
		stats.RejectedConfidence, stats.RejectedBTC, stats.RejectedLowATR,
		stats.RankedOut, stats.NoSignal)

	result := "market is flat, waiting for opportunities"
	switch {
	case stats.Generated > 0:
		result = "opportunity found"
	case stats.RejectedBTC > 0:
		result = "BTC-driven risk, no positions opened"
	}
	m.log.Infof("scan result: %s", result)
}

func toTimeframeSignals(perTF map[string]*analysis.TimeframeAnalysis) map[string]core.TimeframeSignal {
	if len(perTF) == 0 {
		return nil
	}
	out := make(map[string]core.TimeframeSignal, len(perTF))
	for tf, a := range perTF {
		out[tf] = core.TimeframeSignal{
			Timeframe:  tf,
			Direction:  a.Direction,
			Confidence: a.Confidence,
			Indicators: a.Indicators,
			Volume:     a.Volume,
		}
	}
	return out
}
