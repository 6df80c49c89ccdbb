package core

import "errors"

var (
	// ErrSignalNotFound is returned when a signal id has no stored row.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrInsufficientData is returned when a symbol has too few candles
	// for a reliable analysis.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrBadCandleData is returned when kline data fails quality checks.
	ErrBadCandleData = errors.New("candle data failed quality validation")

	// ErrSymbolNotTradable is returned for symbols outside the tradable
	// USDT perpetual set.
	ErrSymbolNotTradable = errors.New("symbol is not a tradable USDT perpetual")

	// ErrMessageNotFound is returned when the channel message behind a
	// signal no longer exists.
	ErrMessageNotFound = errors.New("channel message not found")
)
