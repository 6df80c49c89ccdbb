package notification

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/strategy"
)

// Per-user debounce for /analyze; each request costs several candle
// fetches against the exchange.
const analyzeCooldown = 5 * time.Second

// SymbolAnalysis is an on-demand analysis of one symbol: the combined
// signal plus the position plan and sizing advice derived from it. The
// plan and advice are nil for NEUTRAL outcomes.
type SymbolAnalysis struct {
	Symbol       string
	Direction    core.Direction
	Confidence   float64
	CurrentPrice float64
	Position     *strategy.Position
	Advice       *strategy.RiskAdvice

	// Per-timeframe direction and confidence, keyed by timeframe.
	Timeframes map[string]TimeframeVote
}

// TimeframeVote is one timeframe's contribution to a symbol analysis.
type TimeframeVote struct {
	Direction  core.Direction
	Confidence float64
}

// Analyzer runs the full multi-timeframe analysis for a single symbol
// on demand.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*SymbolAnalysis, error)
}

// WithAnalyzer wires on-demand symbol analysis for the /analyze command.
func WithAnalyzer(a Analyzer) Option {
	return func(b *Bot) { b.analyzer = a }
}

// AnalyzeHandle runs a full analysis for one symbol:
// `/analyze BTC` or `/analyze BTCUSDT`.
func (b *Bot) AnalyzeHandle(m *tb.Message) {
	if b.analyzer == nil {
		b.sendMessage(m.Sender, "Analysis is not available.")
		return
	}

	symbol := normalizeSymbol(m.Payload)
	if symbol == "" {
		b.sendMessage(m.Sender, "Usage: `/analyze SYMBOL`\nExamples: BTC, ETHUSDT, SOL")
		return
	}

	if wait, ok := b.analyzeDebounce(m.Sender.ID); !ok {
		b.sendMessage(m.Sender, fmt.Sprintf("⌛ Please wait %ds and try again.", wait))
		return
	}

	b.log.Infof("user %d requested analysis for %s", m.Sender.ID, symbol)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := b.analyzer.Analyze(ctx, symbol)
	if err != nil {
		b.log.WithError(err).Warnf("analysis failed for %s", symbol)
		b.sendMessage(m.Sender, fmt.Sprintf("❌ Analysis failed for `%s`.\nCheck the symbol and try again.", symbol))
		return
	}

	b.sendMessage(m.Sender, formatAnalysis(result))
}

// normalizeSymbol uppercases the requested pair and appends the USDT
// quote when only a base asset was given.
func normalizeSymbol(payload string) string {
	symbol := strings.ToUpper(strings.TrimSpace(payload))
	symbol = strings.ReplaceAll(symbol, "/", "")
	if symbol == "" {
		return ""
	}
	if !strings.HasSuffix(symbol, "USDT") {
		symbol += "USDT"
	}
	return symbol
}

// analyzeDebounce enforces the per-user cooldown. Returns the seconds
// left when the user is still cooling down.
func (b *Bot) analyzeDebounce(userID int64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if last, ok := b.lastAnalyze[userID]; ok {
		if elapsed := now.Sub(last); elapsed < analyzeCooldown {
			return int(math.Ceil((analyzeCooldown - elapsed).Seconds())), false
		}
	}
	b.lastAnalyze[userID] = now
	return 0, true
}

// formatAnalysis renders the detailed analysis reply: headline signal,
// entry plan, sizing advice and the per-timeframe breakdown.
func formatAnalysis(a *SymbolAnalysis) string {
	base := strings.TrimSuffix(a.Symbol, "USDT")

	lines := []string{
		fmt.Sprintf("📊 *%s DETAILED ANALYSIS*", base),
		"",
		fmt.Sprintf("%s Signal: %s", a.Direction.Emoji(), a.Direction.Label()),
		fmt.Sprintf("🎯 Confidence: %.0f%%", a.Confidence*100),
	}
	if a.CurrentPrice > 0 {
		lines = append(lines, fmt.Sprintf("📍 Current price: `$%.4f`", a.CurrentPrice))
	}

	if a.Position != nil {
		if warning := entryWarning(a.Position); warning != "" {
			lines = append(lines, "", warning)
		}
		lines = append(lines, positionLines(a.Position)...)
	}

	if a.Advice != nil {
		lines = append(lines,
			"",
			"💼 *Risk management:*",
			fmt.Sprintf("   Risk level: %s", riskLevelLabel(a.Advice.RiskLevel)),
			fmt.Sprintf("   Position size: %.1f%%", a.Advice.PositionSizePercent),
			fmt.Sprintf("   ⚡ Leverage: %dx", a.Advice.Leverage),
		)
	}

	if len(a.Timeframes) > 0 {
		lines = append(lines, "", "📈 *Timeframe analysis:*")
		lines = append(lines, timeframeLines(a.Timeframes)...)
	}

	return strings.Join(lines, "\n")
}

// entryWarning explains the relationship between the current price and
// the ideal fib entry, when they disagree.
func entryWarning(p *strategy.Position) string {
	if p.FibIdealEntry == 0 {
		return ""
	}

	switch p.EntryStatus {
	case core.EntryStatusPriceMoved:
		diff := math.Abs((p.CurrentPrice-p.FibIdealEntry)/p.FibIdealEntry) * 100
		return fmt.Sprintf("⚠️ *PRICE HAS RUN*\nIdeal entry: `$%.4f` (%.1f%% away)\nLevels below are computed from the current price.",
			p.FibIdealEntry, diff)
	case core.EntryStatusWaitForPullback:
		return fmt.Sprintf("💡 *WAIT FOR THE PULLBACK*\nIdeal entry: `$%.4f`\nLet price come back to this level first.", p.FibIdealEntry)
	case core.EntryStatusPullbackExpected:
		return fmt.Sprintf("📍 *IDEAL ENTRY LEVEL*\nTarget: `$%.4f`", p.FibIdealEntry)
	}
	return ""
}

// positionLines renders the entry, stop and take-profit ladder.
func positionLines(p *strategy.Position) []string {
	entryLabel := "💰 Entry"
	if p.EntryStatus == core.EntryStatusWaitForPullback || p.EntryStatus == core.EntryStatusPullbackExpected {
		entryLabel = "💰 Ideal entry"
	}

	lines := []string{
		"",
		"💡 *POSITION PLAN FROM THIS PRICE:*",
		fmt.Sprintf("%s: `$%.4f`", entryLabel, p.Entry),
		fmt.Sprintf("🛡️ Stop-loss: `$%.4f`", p.StopLoss),
		fmt.Sprintf("📍 Risk: %.2f%%", p.RiskPercent),
		"",
		"🎯 *Take-profit levels:*",
	}
	for i, target := range p.Targets {
		lines = append(lines, fmt.Sprintf("   TP%d: `$%.4f` (R:R %.2f)", i+1, target.Price, target.RiskReward))
	}
	return lines
}

func riskLevelLabel(level string) string {
	switch level {
	case strategy.RiskLow:
		return "Low"
	case strategy.RiskMedium:
		return "Medium"
	case strategy.RiskHigh:
		return "High"
	default:
		return level
	}
}

// timeframeLines renders one line per timeframe, shortest first.
func timeframeLines(votes map[string]TimeframeVote) []string {
	keys := make([]string, 0, len(votes))
	for tf := range votes {
		keys = append(keys, tf)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, erri := str2duration.ParseDuration(keys[i])
		dj, errj := str2duration.ParseDuration(keys[j])
		if erri != nil || errj != nil {
			return keys[i] < keys[j]
		}
		return di < dj
	})

	lines := make([]string, 0, len(keys))
	for _, tf := range keys {
		vote := votes[tf]
		lines = append(lines, fmt.Sprintf("   %s: %s %.0f%%", tf, vote.Direction.Emoji(), vote.Confidence*100))
	}
	return lines
}
