package tracker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Timeframe used to recover intrabar extremes between tracker ticks.
const intrabarTimeframe = "15m"

// Editor re-renders and edits the channel message of a tracked signal.
// It returns core.ErrMessageNotFound when the message has been deleted.
type Editor interface {
	EditSignal(ctx context.Context, sig *core.Signal, currentPrice float64, priceAt int64) error
}

// Config carries the tracking windows and edit thresholds.
type Config struct {
	// ActiveWindow is how long a signal is tracked before it expires.
	ActiveWindow time.Duration
	// HitEditTimeout refreshes hit signals at least this often.
	HitEditTimeout time.Duration
	// MFEEditPercent is the MFE/MAE move (as % of signal price) that
	// justifies a message edit on its own.
	MFEEditPercent float64
	// EditPacing is the minimum delay between two message edits,
	// protecting against Telegram flood control.
	EditPacing time.Duration
}

// Tracker walks the active signals every tick: records price snapshots,
// detects TP/SL and alternative-entry touches, maintains MFE/MAE
// excursions, expires stale signals and edits the channel messages when
// something worth showing happened.
type Tracker struct {
	log    logger.Logger
	cfg    Config
	repo   core.SignalRepository
	feeder core.Feeder
	editor Editor

	lastEdit time.Time
}

func NewTracker(log logger.Logger, cfg Config, repo core.SignalRepository,
	feeder core.Feeder, editor Editor) *Tracker {
	return &Tracker{
		log:    log,
		cfg:    cfg,
		repo:   repo,
		feeder: feeder,
		editor: editor,
	}
}

// CheckAll runs one tracking pass over every active signal.
func (t *Tracker) CheckAll(ctx context.Context) error {
	signals, err := t.repo.ActiveSignals(ctx, 0)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		t.log.Debug("no active signals")
		return nil
	}

	t.log.Infof("checking %d active signals", len(signals))
	now := time.Now()

	for _, sig := range signals {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.CheckSignal(ctx, sig, now); err != nil {
			t.log.WithError(err).Errorf("signal check failed (%s)", sig.ID)
		}
	}
	return nil
}

// CheckSignal processes a single signal: price observation, hit
// detection, excursion bookkeeping and the message-edit decision.
func (t *Tracker) CheckSignal(ctx context.Context, sig *core.Signal, now time.Time) error {
	if sig.Age(now) > t.cfg.ActiveWindow {
		return t.expire(ctx, sig, now)
	}

	price, high, low, err := t.observePrice(ctx, sig)
	if err != nil {
		t.log.Warnf("%s current price unavailable: %v", sig.Symbol, err)
		return nil
	}

	t.log.Debugf("tracking %s: symbol=%s direction=%s signal_price=%.6f current=%.6f",
		sig.ID, sig.Symbol, sig.Direction, sig.Price, price)

	if err := t.repo.SaveSnapshot(ctx, core.PriceSnapshot{
		SignalID:  sig.ID,
		Timestamp: now.Unix(),
		Price:     price,
		Source:    core.SnapshotSourceTrackerTick,
	}); err != nil {
		t.log.WithError(err).Errorf("snapshot save failed (%s)", sig.ID)
	}

	mfeMoved, maeMoved, oldMFE, oldMAE := t.updateExcursions(ctx, sig, high, low, now)
	t.checkEntryHits(ctx, sig, low, high, now)

	newTPHit := t.checkTPLevels(ctx, sig, high, low, now)
	newSLHit := t.checkSLLevel(ctx, sig, high, low, now)

	reasons := t.editReasons(sig, newTPHit, newSLHit, mfeMoved, maeMoved, oldMFE, oldMAE, now)
	if len(reasons) == 0 {
		t.log.Debugf("%s edit not required", sig.Symbol)
		return nil
	}

	t.log.Debugf("%s message edit required: %v", sig.Symbol, reasons)
	return t.editMessage(ctx, sig, price, now)
}

// ManualRefresh re-renders the message regardless of edit thresholds,
// used by the operator refresh button.
func (t *Tracker) ManualRefresh(ctx context.Context, sig *core.Signal) error {
	now := time.Now()
	price, high, low, err := t.observePrice(ctx, sig)
	if err != nil {
		return err
	}

	if err := t.repo.SaveSnapshot(ctx, core.PriceSnapshot{
		SignalID:  sig.ID,
		Timestamp: now.Unix(),
		Price:     price,
		Source:    core.SnapshotSourceManualUpdate,
	}); err != nil {
		t.log.WithError(err).Errorf("snapshot save failed (%s)", sig.ID)
	}

	t.checkTPLevels(ctx, sig, high, low, now)
	t.checkSLLevel(ctx, sig, high, low, now)
	return t.editMessage(ctx, sig, price, now)
}

// observePrice returns the last quote plus the intrabar high/low seen
// since the previous tick, so touches between ticks are not missed.
func (t *Tracker) observePrice(ctx context.Context, sig *core.Signal) (price, high, low float64, err error) {
	price, err = t.feeder.LastQuote(ctx, sig.Symbol)
	if err != nil {
		return 0, 0, 0, err
	}
	high, low = price, price

	candles, cerr := t.feeder.CandlesByLimit(ctx, sig.Symbol, intrabarTimeframe, 3)
	if cerr != nil {
		t.log.Debugf("%s intrabar candles unavailable: %v", sig.Symbol, cerr)
		return price, high, low, nil
	}

	created := time.Unix(sig.CreatedAt, 0)
	for _, c := range candles {
		// Extremes from before the signal existed must not count as touches.
		if c.Time.Before(created) {
			continue
		}
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return price, high, low, nil
}

// checkTPLevels tests both take-profit levels against the observed
// extremes. Already-hit levels stay hit; the repository write is
// idempotent as well.
func (t *Tracker) checkTPLevels(ctx context.Context, sig *core.Signal, high, low float64, now time.Time) bool {
	newHit := false
	levels := []struct {
		level int
		price float64
		hit   *bool
		hitAt *int64
	}{
		{1, sig.TP1Price, &sig.TP1Hit, &sig.TP1HitAt},
		{2, sig.TP2Price, &sig.TP2Hit, &sig.TP2HitAt},
	}

	for _, tp := range levels {
		if tp.price == 0 || *tp.hit {
			continue
		}

		hit := false
		if sig.Direction == core.DirectionLong {
			hit = high >= tp.price
		} else if sig.Direction == core.DirectionShort {
			hit = low <= tp.price
		}
		if !hit {
			continue
		}

		if err := t.repo.RecordTPHit(ctx, sig.ID, tp.level, now.Unix()); err != nil {
			t.log.WithError(err).Errorf("TP%d hit record failed (%s)", tp.level, sig.ID)
			continue
		}
		*tp.hit = true
		*tp.hitAt = now.Unix()
		newHit = true
		t.log.Infof("TP%d hit: %s @ %.6f", tp.level, sig.Symbol, tp.price)
	}
	return newHit
}

func (t *Tracker) checkSLLevel(ctx context.Context, sig *core.Signal, high, low float64, now time.Time) bool {
	if sig.SLPrice == 0 || sig.SLHit {
		return false
	}

	hit := false
	if sig.Direction == core.DirectionLong {
		hit = low <= sig.SLPrice
	} else if sig.Direction == core.DirectionShort {
		hit = high >= sig.SLPrice
	}
	if !hit {
		return false
	}

	if err := t.repo.RecordSLHit(ctx, sig.ID, now.Unix()); err != nil {
		t.log.WithError(err).Errorf("SL hit record failed (%s)", sig.ID)
		return false
	}
	sig.SLHit = true
	sig.SLHitAt = now.Unix()
	t.log.Infof("SL hit: %s @ %.6f", sig.Symbol, sig.SLPrice)
	return true
}

// checkEntryHits records when the price pulled back to the optimal or
// conservative entry. A LONG entry fills on the low side, a SHORT on
// the high side.
func (t *Tracker) checkEntryHits(ctx context.Context, sig *core.Signal, low, high float64, now time.Time) {
	entryTouched := func(entry float64) bool {
		if sig.Direction == core.DirectionLong {
			return low <= entry
		}
		return high >= entry
	}

	if sig.OptimalEntryPrice > 0 && !sig.OptimalEntryHit && entryTouched(sig.OptimalEntryPrice) {
		if err := t.repo.RecordEntryHit(ctx, sig.ID, "optimal", now.Unix()); err != nil {
			t.log.WithError(err).Errorf("optimal entry record failed (%s)", sig.ID)
		} else {
			sig.OptimalEntryHit = true
			sig.OptimalEntryHitAt = now.Unix()
			t.log.Infof("optimal entry hit: %s @ %.6f", sig.ID, sig.OptimalEntryPrice)
		}
	}

	if sig.ConservativeEntryPrice > 0 && !sig.ConservativeEntryHit && entryTouched(sig.ConservativeEntryPrice) {
		if err := t.repo.RecordEntryHit(ctx, sig.ID, "conservative", now.Unix()); err != nil {
			t.log.WithError(err).Errorf("conservative entry record failed (%s)", sig.ID)
		} else {
			sig.ConservativeEntryHit = true
			sig.ConservativeEntryHitAt = now.Unix()
			t.log.Infof("conservative entry hit: %s @ %.6f", sig.ID, sig.ConservativeEntryPrice)
		}
	}
}

// updateExcursions maintains the best and worst prices seen. MFE is the
// favorable extreme (high for LONG, low for SHORT), MAE the adverse one.
func (t *Tracker) updateExcursions(ctx context.Context, sig *core.Signal,
	high, low float64, now time.Time) (mfeMoved, maeMoved bool, oldMFE, oldMAE float64) {
	oldMFE, oldMAE = sig.MFEPrice, sig.MAEPrice

	favorable, adverse := high, low
	if sig.Direction == core.DirectionShort {
		favorable, adverse = low, high
	}

	better := func(newPrice, oldPrice float64, wantHigher bool) bool {
		if oldPrice == 0 {
			return true
		}
		if wantHigher {
			return newPrice > oldPrice
		}
		return newPrice < oldPrice
	}

	long := sig.Direction == core.DirectionLong
	if better(favorable, sig.MFEPrice, long) {
		sig.MFEPrice = favorable
		sig.MFEAt = now.Unix()
		mfeMoved = true
	}
	if better(adverse, sig.MAEPrice, !long) {
		sig.MAEPrice = adverse
		sig.MAEAt = now.Unix()
		maeMoved = true
	}

	if mfeMoved || maeMoved {
		if err := t.repo.UpdateExcursions(ctx, sig.ID, sig.MFEPrice, sig.MFEAt,
			sig.MAEPrice, sig.MAEAt); err != nil {
			t.log.WithError(err).Errorf("excursion update failed (%s)", sig.ID)
		} else {
			t.log.Debugf("MFE/MAE updated: %s - MFE %.6f, MAE %.6f",
				sig.ID, sig.MFEPrice, sig.MAEPrice)
		}
	}
	return mfeMoved, maeMoved, oldMFE, oldMAE
}

// editReasons implements the hybrid edit policy: a new hit always edits,
// a large MFE/MAE move edits, and already-hit signals are refreshed at
// least every timeout period.
func (t *Tracker) editReasons(sig *core.Signal, newTPHit, newSLHit, mfeMoved, maeMoved bool,
	oldMFE, oldMAE float64, now time.Time) []string {
	var reasons []string

	if newTPHit || newSLHit {
		reasons = append(reasons, "new hit")
	}
	if t.excursionThresholdCrossed(sig, mfeMoved, maeMoved, oldMFE, oldMAE) {
		reasons = append(reasons, "MFE/MAE threshold")
	}
	if t.hitSignalTimeoutReached(sig, now) {
		reasons = append(reasons, "hit signal timeout")
	}
	return reasons
}

// excursionThresholdCrossed reports whether MFE or MAE moved more than
// the edit threshold relative to the signal price. The very first
// excursion value is not significant on its own.
func (t *Tracker) excursionThresholdCrossed(sig *core.Signal,
	mfeMoved, maeMoved bool, oldMFE, oldMAE float64) bool {
	if !(mfeMoved || maeMoved) || sig.Price == 0 {
		return false
	}
	if (mfeMoved && oldMFE == 0) || (maeMoved && oldMAE == 0) {
		return false
	}

	if mfeMoved && oldMFE != 0 {
		changePct := math.Abs((sig.MFEPrice-oldMFE)/sig.Price) * 100
		if changePct >= t.cfg.MFEEditPercent {
			return true
		}
	}
	if maeMoved && oldMAE != 0 {
		changePct := math.Abs((sig.MAEPrice-oldMAE)/sig.Price) * 100
		if changePct >= t.cfg.MFEEditPercent {
			return true
		}
	}
	return false
}

// hitSignalTimeoutReached keeps messages of hit signals fresh: once a
// level was touched the message is refreshed at least every timeout
// period, measured from the latest hit.
func (t *Tracker) hitSignalTimeoutReached(sig *core.Signal, now time.Time) bool {
	if !(sig.TP1Hit || sig.TP2Hit || sig.SLHit) {
		return false
	}

	lastHit := sig.CreatedAt
	for _, at := range []int64{sig.TP1HitAt, sig.TP2HitAt, sig.SLHitAt} {
		if at > lastHit {
			lastHit = at
		}
	}
	return now.Sub(time.Unix(lastHit, 0)) >= t.cfg.HitEditTimeout
}

// editMessage paces and performs the channel message edit. A missing
// message takes the signal out of active tracking.
func (t *Tracker) editMessage(ctx context.Context, sig *core.Signal, price float64, now time.Time) error {
	if t.editor == nil || sig.TelegramMessageID == 0 {
		return nil
	}

	// Reload hit state so the rendered message reflects every touch
	// recorded in this pass and by other writers.
	stored, err := t.repo.Signal(ctx, sig.ID)
	if err == nil {
		sig = stored
	}

	if wait := t.cfg.EditPacing - time.Since(t.lastEdit); wait > 0 {
		t.log.Debugf("edit pacing: waiting %s", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err = t.editor.EditSignal(ctx, sig, price, now.Unix())
	t.lastEdit = time.Now()

	if errors.Is(err, core.ErrMessageNotFound) {
		t.log.Warnf("channel message gone, removing signal from tracking: %s", sig.ID)
		if merr := t.repo.MarkMessageDeleted(ctx, sig.ID); merr != nil {
			t.log.WithError(merr).Errorf("mark message deleted failed (%s)", sig.ID)
		}
		return nil
	}
	if err != nil {
		t.log.WithError(err).Warnf("channel message edit failed: %s", sig.ID)
		return nil
	}

	t.log.Infof("channel message updated: %s", sig.ID)
	return nil
}

// expire finalizes a signal that outlived the tracking window.
func (t *Tracker) expire(ctx context.Context, sig *core.Signal, now time.Time) error {
	price, err := t.feeder.LastQuote(ctx, sig.Symbol)
	if err != nil {
		t.log.Warnf("%s final price unavailable, using signal price: %v", sig.Symbol, err)
		price = sig.Price
	}

	if err := t.repo.SaveSnapshot(ctx, core.PriceSnapshot{
		SignalID:  sig.ID,
		Timestamp: now.Unix(),
		Price:     price,
		Source:    core.SnapshotSourceFinalize,
	}); err != nil {
		t.log.WithError(err).Errorf("final snapshot save failed (%s)", sig.ID)
	}

	outcome := finalOutcome(sig)
	if err := t.repo.FinalizeSignal(ctx, sig.ID, outcome, price); err != nil {
		return err
	}

	t.log.Infof("signal expired after %s: %s outcome=%s final=%.6f",
		t.cfg.ActiveWindow, sig.ID, outcome, price)
	return nil
}

// finalOutcome ranks the terminal states: a full target beats a partial
// one, a stop beats nothing.
func finalOutcome(sig *core.Signal) string {
	switch {
	case sig.TP2Hit:
		return core.OutcomeTP2Reached
	case sig.TP1Hit:
		return core.OutcomeTP1Reached
	case sig.SLHit:
		return core.OutcomeSLHit
	default:
		return core.OutcomeExpiredNoHit
	}
}
