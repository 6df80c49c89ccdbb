package binance

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/unvoidf/sigscan/pkg/core"
)

// ErrNoCandles is returned when the exchange sends an empty kline batch.
var ErrNoCandles = fmt.Errorf("no candles returned")

// validateCandles applies data quality checks to a kline batch: enough
// rows, no zero closes, and strictly increasing open times.
func validateCandles(candles []core.Candle, minRows int) error {
	if len(candles) == 0 {
		return ErrNoCandles
	}
	if len(candles) < minRows {
		return fmt.Errorf("%w: have %d rows, need %d", core.ErrBadCandleData, len(candles), minRows)
	}

	var prev time.Time
	for i, c := range candles {
		if c.Close <= 0 {
			return fmt.Errorf("%w: zero close at index %d", core.ErrBadCandleData, i)
		}
		if i > 0 && !c.Time.After(prev) {
			return fmt.Errorf("%w: non-monotonic time at index %d", core.ErrBadCandleData, i)
		}
		prev = c.Time
	}

	return nil
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}
