// Package sigscan wires the futures signal scanner together: Binance
// market data, multi-timeframe analysis, Telegram publication and the
// lifetime tracking of every published signal.
package sigscan

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unvoidf/sigscan/pkg/analysis"
	"github.com/unvoidf/sigscan/pkg/config"
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/exchange/binance"
	"github.com/unvoidf/sigscan/pkg/logger"
	"github.com/unvoidf/sigscan/pkg/logger/zerolog"
	"github.com/unvoidf/sigscan/pkg/metrics"
	"github.com/unvoidf/sigscan/pkg/notification"
	"github.com/unvoidf/sigscan/pkg/scanner"
	"github.com/unvoidf/sigscan/pkg/storage"
	"github.com/unvoidf/sigscan/pkg/strategy"
	"github.com/unvoidf/sigscan/pkg/tracker"
)

// How often stale cooldown cache entries are swept.
const cooldownCleanupInterval = time.Hour

// App is the assembled scanner service.
type App struct {
	log logger.Logger
	cfg *config.Config

	feeder        core.Feeder
	repo          core.SignalRepository
	cooldownStore core.CooldownStore

	scanner   *scanner.Manager
	tracker   *tracker.Tracker
	cooldown  *scanner.CooldownManager
	summaries *metrics.Manager
	bot       *notification.Bot
	channel   *notification.Channel

	gen       *analysis.Generator
	positions *strategy.PositionCalculator
	risk      *strategy.RiskManager

	paused atomic.Bool
}

// New builds the application from configuration. Options may inject
// alternative market data or storage implementations.
func New(ctx context.Context, cfg *config.Config, options ...Option) (*App, error) {
	app := &App{cfg: cfg, log: DefaultLog}

	for _, option := range options {
		option(app)
	}

	if app.log == DefaultLog {
		log, err := zerolog.New(cfg.LogLevel, cfg.LogTimeFormat, cfg.LogColored, cfg.LogJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to configure logger: %w", err)
		}
		app.log = zerolog.NewAdapter(log.Logger)
	}

	if err := app.initMarketData(ctx); err != nil {
		return nil, err
	}
	if err := app.initStorage(); err != nil {
		return nil, err
	}
	if err := app.initPipeline(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) initMarketData(ctx context.Context) error {
	if a.feeder != nil {
		return nil
	}
	feeder, err := binance.NewFutures(ctx, a.log, binance.WithCacheTTL(a.cfg.KlineCacheTTL))
	if err != nil {
		return fmt.Errorf("failed to connect market data: %w", err)
	}
	a.feeder = feeder
	return nil
}

func (a *App) initStorage() error {
	if a.repo == nil {
		repo, err := storage.NewSQLiteRepository(a.cfg.DatabasePath, a.log)
		if err != nil {
			return fmt.Errorf("failed to open signal database: %w", err)
		}
		a.repo = repo
	}
	if a.cooldownStore == nil {
		store, err := storage.NewBuntCooldownStore(":memory:")
		if err != nil {
			return fmt.Errorf("failed to open cooldown cache: %w", err)
		}
		a.cooldownStore = store
	}
	return nil
}

// initPipeline assembles analysis, scanning, tracking and notification
// around the storage and market data layers.
func (a *App) initPipeline() error {
	cfg := a.cfg

	thresholds := analysis.NewThresholdManager(a.log)
	ranging := analysis.NewRangingAnalyzer(a.log, cfg.RangingMinSLPct)
	gen := analysis.NewGenerator(a.log, cfg.TimeframeWeights, thresholds, ranging)

	a.gen = gen
	a.positions = strategy.NewPositionCalculator(a.log, analysis.NewFibCalculator(), cfg.SLMultiplier)
	a.risk = strategy.NewRiskManager(a.log, int(cfg.MaxLeverage))

	ranker := scanner.NewRanker(a.log, cfg.RankerMinScore, cfg.PrimaryTimeframe)
	entries := strategy.NewEntryCalculator(a.log, cfg.SLMultiplier)
	safety := strategy.NewSafetyFilter(a.log, cfg.MMR, cfg.MinSLLiqBuffer, cfg.RiskRanges, cfg.LeverageRanges)

	a.cooldown = scanner.NewCooldownManager(a.log, a.cooldownStore, a.repo, cfg.Cooldown)
	a.summaries = metrics.NewManager(a.log, a.repo)

	var (
		alerter scanner.Alerter
		editor  tracker.Editor
	)

	if cfg.TelegramEnabled {
		settings := &core.Settings{
			Symbols: cfg.Symbols,
			Telegram: core.TelegramSettings{
				Enabled:   true,
				Token:     cfg.TelegramToken,
				ChannelID: cfg.TelegramChannel,
				Admins:    cfg.TelegramAdmins,
			},
		}
		formatter := notification.NewFormatter(time.Local)

		bot, err := notification.NewBot(a.log, settings,
			notification.WithRepository(a.repo),
			notification.WithFeeder(a.feeder),
			notification.WithSwitch(a),
			notification.WithAnalyzer(a),
			notification.WithBotFormatter(formatter),
		)
		if err != nil {
			return err
		}

		channel, err := notification.NewChannel(a.log, bot.Client(), cfg.TelegramChannel, formatter)
		if err != nil {
			return err
		}

		a.bot, a.channel = bot, channel
		alerter, editor = channel, channel
	} else {
		quiet := logAlerter{log: a.log}
		alerter, editor = quiet, quiet
	}

	a.scanner = scanner.NewManager(a.log, scanner.Config{
		Timeframes:         cfg.Timeframes,
		KlineLimit:         cfg.KlineLimit,
		Symbols:            cfg.Symbols,
		TopSignals:         cfg.TopSignals,
		ActiveWindow:       cfg.ActiveWindow,
		MinConfidenceLong:  cfg.MinConfidenceLong,
		MinConfidenceShort: cfg.MinConfidenceShort,
		MinATRPercent:      cfg.MinATRPercent,
		RangingADX:         cfg.RangingADX,
		RangingScore:       cfg.RangingScore,
		BTCCrashPercent:    cfg.BTCCrashPercent,
		TPMultipliers:      cfg.TPMultipliers,
		SLMultiplier:       cfg.SLMultiplier,
		AccountBalance:     cfg.AccountBalance,
		ChannelID:          cfg.TelegramChannel,
	}, a.feeder, a.repo, gen, ranker, entries, safety, a.cooldown, alerter)

	a.tracker = tracker.NewTracker(a.log, tracker.Config{
		ActiveWindow:   cfg.ActiveWindow,
		HitEditTimeout: cfg.HitEditTimeout,
		MFEEditPercent: cfg.MFEEditPercent,
		EditPacing:     cfg.EditPacing,
	}, a.repo, a.feeder, editor)

	if a.bot != nil {
		a.bot.SetRefresher(a.tracker)
	}

	return nil
}

// Run starts the scan, track and summary loops and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.cooldown.Warmup(ctx)

	if a.bot != nil {
		a.bot.Start()
		defer a.bot.Stop()
	}
	if a.channel != nil {
		if _, err := a.channel.Publish(ctx, "✅ Signal scanner started"); err != nil {
			a.log.WithError(err).Warn("startup channel message failed")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := a.channel.Publish(shutdownCtx, "🛑 Signal scanner stopped"); err != nil {
				a.log.WithError(err).Debug("shutdown channel message failed")
			}
		}()
	}

	a.runScan(ctx)

	scanTicker := time.NewTicker(a.cfg.ScanInterval)
	trackTicker := time.NewTicker(a.cfg.TrackerInterval)
	summaryTicker := time.NewTicker(a.cfg.SummaryInterval)
	cleanupTicker := time.NewTicker(cooldownCleanupInterval)
	defer scanTicker.Stop()
	defer trackTicker.Stop()
	defer summaryTicker.Stop()
	defer cleanupTicker.Stop()

	a.log.Infof("scanner running: scan every %s, track every %s, summary every %s",
		a.cfg.ScanInterval, a.cfg.TrackerInterval, a.cfg.SummaryInterval)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil

		case <-scanTicker.C:
			a.runScan(ctx)

		case <-trackTicker.C:
			if err := a.tracker.CheckAll(ctx); err != nil {
				a.log.WithError(err).Error("tracking pass failed")
			}

		case <-summaryTicker.C:
			if _, err := a.summaries.GenerateSummary(ctx, a.cfg.SummaryInterval); err != nil {
				a.log.WithError(err).Error("summary generation failed")
			}

		case <-cleanupTicker.C:
			a.cooldown.Cleanup(time.Now())
		}
	}
}

func (a *App) runScan(ctx context.Context) {
	if a.paused.Load() {
		a.log.Debug("scan skipped, scanner is paused")
		return
	}
	if _, err := a.scanner.Scan(ctx); err != nil {
		a.log.WithError(err).Error("scan cycle failed")
		if a.bot != nil {
			a.bot.OnError(err)
		}
	}
}

func (a *App) close() {
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close signal database")
	}
	if err := a.cooldownStore.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close cooldown cache")
	}
}

// Analyze runs the full multi-timeframe analysis for one symbol on
// demand, backing the bot's /analyze command. For directional outcomes
// it also derives a position plan and sizing advice.
func (a *App) Analyze(ctx context.Context, symbol string) (*notification.SymbolAnalysis, error) {
	cfg := a.cfg

	candlesByTF := make(map[string][]core.Candle, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		candles, err := a.feeder.CandlesByLimit(ctx, symbol, tf, cfg.KlineLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s candles: %w", symbol, tf, err)
		}
		candlesByTF[tf] = candles
	}

	result, err := a.gen.Generate(candlesByTF)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", symbol, err)
	}

	out := &notification.SymbolAnalysis{
		Symbol:     symbol,
		Direction:  result.Direction,
		Confidence: result.Confidence,
		Timeframes: make(map[string]notification.TimeframeVote, len(result.Timeframes)),
	}
	for tf, ta := range result.Timeframes {
		if ta == nil {
			continue
		}
		out.Timeframes[tf] = notification.TimeframeVote{
			Direction:  ta.Direction,
			Confidence: ta.Confidence,
		}
	}

	if price, err := a.feeder.LastQuote(ctx, symbol); err == nil {
		out.CurrentPrice = price
	} else {
		a.log.WithError(err).Debugf("no live quote for %s", symbol)
	}

	if result.Direction == core.DirectionNeutral || len(cfg.Timeframes) == 0 {
		return out, nil
	}

	// The position plan is derived from the primary timeframe when it
	// produced an analysis, otherwise from the first configured one.
	planTF := cfg.PrimaryTimeframe
	if result.Timeframes[planTF] == nil {
		planTF = cfg.Timeframes[0]
	}
	ta := result.Timeframes[planTF]
	if ta == nil {
		return out, nil
	}

	position := a.positions.Calculate(candlesByTF[planTF], result.Direction,
		result.Strategy, result.CustomTargets, ta.Indicators.ATR)
	if position == nil {
		return out, nil
	}
	out.Position = position

	advice := a.risk.Advise(result.Confidence, position.RiskPercent)
	out.Advice = &advice

	return out, nil
}

// Pause suspends new scans. Tracking of published signals continues.
func (a *App) Pause() { a.paused.Store(true) }

// Resume re-enables scanning.
func (a *App) Resume() { a.paused.Store(false) }

// Paused reports whether scanning is suspended.
func (a *App) Paused() bool { return a.paused.Load() }

// logAlerter stands in for the Telegram channel when publishing is
// disabled: alerts land in the log and tracking edits are no-ops.
type logAlerter struct {
	log logger.Logger
}

func (l logAlerter) PublishSignal(_ context.Context, s *core.Signal) (int, error) {
	l.log.Infof("signal %s: %s %s at %.6g (confidence %.2f)",
		s.ID, s.Direction, s.Symbol, s.Price, s.Confidence)
	return 0, nil
}

func (l logAlerter) EditSignal(_ context.Context, s *core.Signal, price float64, _ int64) error {
	l.log.Debugf("signal %s update: price %.6g pnl %+.2f%%", s.ID, price, s.PnLPercent(price))
	return nil
}
