package scanner

import (
	"strings"

	"github.com/StudioSol/set"
)

// Symbols excluded from scanning: delisted or problem markets and
// stable-to-stable pairs that never produce a tradable move.
var excludedSymbols = set.NewLinkedHashSetString(
	"LUNAUSDT",
	"USTUSDT",
	"FTTUSDT",
	"USDCUSDT",
	"BUSDUSDT",
	"DAIUSDT",
	"TUSDUSDT",
	"USDDUSDT",
	"USDPUSDT",
	"FDUSDUSDT",
	"USDEUSDT",
)

// filterUniverse trims the tradable symbol list to the scan universe.
// With a whitelist only those symbols pass; otherwise excluded and
// leveraged-token pairs are dropped and the list is capped at limit.
func filterUniverse(symbols, whitelist []string, limit int) []string {
	if len(whitelist) > 0 {
		allowed := set.NewLinkedHashSetString()
		for _, s := range whitelist {
			allowed.Add(strings.ToUpper(s))
		}
		out := make([]string, 0, len(whitelist))
		for _, s := range symbols {
			if allowed.InArray(strings.ToUpper(s)) {
				out = append(out, s)
			}
		}
		return out
	}

	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		upper := strings.ToUpper(s)
		if excludedSymbols.InArray(upper) || isLeveragedToken(upper) {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// isLeveragedToken detects UP/DOWN/BULL/BEAR leveraged-token pairs. The
// length guard keeps short bases such as JUP from matching the UP suffix.
func isLeveragedToken(symbol string) bool {
	base := strings.TrimSuffix(symbol, "USDT")
	if base == symbol {
		return false
	}
	switch {
	case strings.HasSuffix(base, "BULL"), strings.HasSuffix(base, "BEAR"):
		return len(base) > 4
	case strings.HasSuffix(base, "DOWN"):
		return len(base) > 4
	case strings.HasSuffix(base, "UP"):
		return len(base) > 4
	}
	return false
}
