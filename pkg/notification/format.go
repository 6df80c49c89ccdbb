// Package notification renders signal alerts and delivers them through
// Telegram: channel posts kept up to date by the tracker, plus an
// operator bot for status and on-demand queries.
package notification

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/unvoidf/sigscan/pkg/core"
)

// Initial alert messages younger than this hide the current-price line;
// it would just repeat the signal price.
const initialMessageWindow = 120

// Formatter renders signal alert messages in Telegram MarkdownV2.
type Formatter struct {
	loc *time.Location
}

// NewFormatter creates a formatter rendering timestamps in the given
// location. A nil location falls back to the system local time.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{loc: loc}
}

// SignalAlert renders the full channel message for a signal at the given
// observed price. The same renderer produces the initial post and every
// tracker edit, so the message layout never drifts between the two.
func (f *Formatter) SignalAlert(sig *core.Signal, currentPrice float64, priceAt int64) string {
	createdAt := sig.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	if priceAt == 0 {
		priceAt = time.Now().Unix()
	}

	color := "🟢"
	if sig.Direction == core.DirectionShort {
		color = "🔴"
	}

	lines := []string{
		fmt.Sprintf("%s %s | %s", color, sig.Direction, sig.Symbol),
		fmt.Sprintf("🕐 %s", f.timestamp(createdAt)),
	}
	if sig.ID != "" {
		lines = append(lines, fmt.Sprintf("🆔 ID: `%s`", sig.ID))
	}
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("🔔 *Signal:* %s", formatPrice(sig.Price)))

	hasHits := sig.TP1Hit || sig.TP2Hit || sig.SLHit
	initial := priceAt-createdAt < initialMessageWindow && !hasHits
	if !initial {
		lines = append(lines, fmt.Sprintf("💵 *Current:* %s", formatPrice(currentPrice)))
	}

	pnl := sig.PnLPercent(currentPrice)
	pnlEmoji, pnlStatus := "🔁", "Neutral"
	switch {
	case pnl > 0:
		pnlEmoji, pnlStatus = "✅", "Profit"
	case pnl < 0:
		pnlEmoji, pnlStatus = "❌", "Loss"
	}
	lines = append(lines, fmt.Sprintf("%s *%+.2f%%* (%s)", pnlEmoji, pnl, pnlStatus))

	if elapsed := formatElapsed(createdAt, priceAt); elapsed != "-" {
		lines = append(lines, fmt.Sprintf("⏱ _%s_", elapsed))
	}
	lines = append(lines, "")

	lines = append(lines, f.targetLines(sig)...)
	lines = append(lines, "")

	if sig.LiquidationRiskPct > 0 {
		emoji, label := liquidationTier(sig.LiquidationRiskPct)
		lines = append(lines,
			fmt.Sprintf("%s *Liquidation Risk:* %.2f%% (%s)", emoji, sig.LiquidationRiskPct, label),
			"")
	}

	lines = append(lines, f.stopLossLine(sig))

	if timeline := f.hitTimeline(sig); len(timeline) > 0 {
		lines = append(lines, "", "📝 *Signal Log:*")
		lines = append(lines, timeline...)
	}

	lines = append(lines, "",
		fmt.Sprintf("📈 Strategy: `%s`", sig.Strategy.Name()),
		fmt.Sprintf("⚡ Confidence: `%.1f%%`", math.Min(sig.Confidence*100, 99.0)))

	// The 4h bias only earns a line when it contradicts the signal
	// direction; a confirming bias is redundant.
	if tf, ok := sig.TimeframeSignals["4h"]; ok {
		if forecast := tf.Direction.Forecast(); forecast != sig.Direction.Forecast() {
			lines = append(lines, fmt.Sprintf("4H Confirmation: `%s`", forecast))
		}
	}

	return escapeMarkdownV2(strings.Join(lines, "\n"))
}

// targetLines renders the take-profit rows. Ranging signals use the
// stored mean-reversion targets, trend signals the ATR ladder recorded
// at publish time.
func (f *Formatter) targetLines(sig *core.Signal) []string {
	var out []string

	if sig.Strategy == core.StrategyRanging && sig.CustomTargets != nil {
		var slPrice float64
		if sig.CustomTargets.StopLoss != nil {
			slPrice = sig.CustomTargets.StopLoss.Price
		}
		targets := []*core.CustomTarget{sig.CustomTargets.TP1, sig.CustomTargets.TP2, sig.CustomTargets.TP3}
		hits := []bool{sig.TP1Hit, sig.TP2Hit, false}
		for i, t := range targets {
			if t == nil || t.Price == 0 {
				continue
			}
			rr := rewardRiskRatio(sig.Price, t.Price, slPrice)
			out = append(out, tpLine(i+1, t.Price, targetPercent(sig, t.Price), rr, hits[i]))
		}
		return out
	}

	risk := math.Abs(sig.Price - sig.SLPrice)
	for i, tp := range []float64{sig.TP1Price, sig.TP2Price} {
		if tp == 0 {
			continue
		}
		var rr float64
		if risk > 0 {
			rr = math.Abs(tp-sig.Price) / risk
		}
		hit := sig.TP1Hit
		if i == 1 {
			hit = sig.TP2Hit
		}
		out = append(out, tpLine(i+1, tp, targetPercent(sig, tp), rr, hit))
	}
	return out
}

func tpLine(level int, price, pct, rr float64, hit bool) string {
	emoji := "⏳"
	if hit {
		emoji = "✅"
	}
	if rr > 0 {
		return fmt.Sprintf("🎯 TP%d %s (%+.2f%%) (%.2fR) %s", level, formatPrice(price), pct, rr, emoji)
	}
	return fmt.Sprintf("🎯 TP%d %s (%+.2f%%) %s", level, formatPrice(price), pct, emoji)
}

func (f *Formatter) stopLossLine(sig *core.Signal) string {
	slPrice := sig.SLPrice
	if sig.Strategy == core.StrategyRanging && sig.CustomTargets != nil && sig.CustomTargets.StopLoss != nil {
		slPrice = sig.CustomTargets.StopLoss.Price
	}
	if slPrice == 0 {
		return "   -"
	}

	emoji := "⏳"
	if sig.SLHit {
		emoji = "❌"
	}
	riskPct := math.Abs(targetPercent(sig, slPrice))
	return fmt.Sprintf("⛔️ SL %s (Risk: %.1f%%) %s", formatPrice(slPrice), riskPct, emoji)
}

// hitTimeline lists the recorded level touches in chronological order.
func (f *Formatter) hitTimeline(sig *core.Signal) []string {
	type event struct {
		at   int64
		desc string
	}
	var events []event

	if sig.TP1Hit && sig.TP1HitAt > 0 {
		events = append(events, event{sig.TP1HitAt, "TP1🎯"})
	}
	if sig.TP2Hit && sig.TP2HitAt > 0 {
		events = append(events, event{sig.TP2HitAt, "TP2🎯"})
	}
	if sig.SLHit && sig.SLHitAt > 0 {
		label := "SL🛡️"
		if sig.Strategy == core.StrategyRanging {
			label = "STOP🛡️"
		}
		events = append(events, event{sig.SLHitAt, label})
	}
	if len(events) == 0 {
		return nil
	}

	sort.Slice(events, func(i, j int) bool { return events[i].at < events[j].at })

	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, fmt.Sprintf("%s - %s", f.timestamp(e.at), e.desc))
	}
	return out
}

// targetPercent is the direction-aware distance from the signal price to
// a target, positive toward profit.
func targetPercent(sig *core.Signal, target float64) float64 {
	if sig.Price == 0 {
		return 0
	}
	pct := (target - sig.Price) / sig.Price * 100
	if sig.Direction == core.DirectionShort {
		pct = -pct
	}
	return pct
}

func rewardRiskRatio(entry, target, stop float64) float64 {
	risk := math.Abs(entry - stop)
	if stop == 0 || risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

func liquidationTier(pct float64) (emoji, label string) {
	switch {
	case pct < 20:
		return "🟢", "Low"
	case pct < 50:
		return "🟡", "Medium"
	default:
		return "🔴", "High"
	}
}

func (f *Formatter) timestamp(ts int64) string {
	return time.Unix(ts, 0).In(f.loc).Format("02/01/2006 15:04:05")
}

// formatElapsed renders a duration as "2 hours 11 minutes". Sub-minute
// spans read "less than 1 minute"; unusable inputs read "-".
func formatElapsed(start, end int64) string {
	if start <= 0 || end < start {
		return "-"
	}
	seconds := end - start

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		if seconds > 0 {
			return "less than 1 minute"
		}
		return "0 minutes"
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// formatPrice renders a price as an inline code span so readers can copy
// it with one tap. Prices from a dollar up use two decimals with
// thousands grouping, sub-dollar prices six decimals.
func formatPrice(price float64) string {
	if price == 0 {
		return "-"
	}
	if math.Abs(price) >= 1 {
		return "`$" + groupThousands(fmt.Sprintf("%.2f", price)) + "`"
	}
	return fmt.Sprintf("`$%.6f`", price)
}

// groupThousands inserts comma separators into the integer part of a
// formatted decimal number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}

// escapeMarkdownV2 escapes MarkdownV2 special characters outside code
// spans. The bold, italic and code markers the formatter itself emits
// are kept so Telegram still renders them; everything inside a code
// span is left untouched because Telegram does not parse it.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)

	inCode := false
	for _, r := range text {
		switch r {
		case '`':
			inCode = !inCode
			b.WriteRune(r)
			continue
		case '*', '_':
			b.WriteRune(r)
			continue
		}
		if !inCode && strings.ContainsRune(`[]()~>#+-=|{}.!`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
