package indicator

import "github.com/markcheno/go-talib"

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
	TypeWMA = talib.WMA // Weighted Moving Average
)

// ------------------------------------------
// Overlap Studies (Moving Averages, Bands)
// ------------------------------------------

// BB calculates Bollinger Bands
// Returns upper, middle, and lower bands
func BB(input []float64, period int, deviation float64, maType MaType) ([]float64, []float64, []float64) {
	return talib.BBands(input, period, deviation, deviation, maType)
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) []float64 {
	return talib.Ema(input, period)
}

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) []float64 {
	return talib.Sma(input, period)
}

// MA calculates Moving Average with specified type
func MA(input []float64, period int, maType MaType) []float64 {
	return talib.Ma(input, period, maType)
}

// ---------------------------------------
// Momentum Indicators
// ---------------------------------------

// ADX calculates Average Directional Movement Index
func ADX(high []float64, low []float64, close []float64, period int) []float64 {
	return talib.Adx(high, low, close, period)
}

// PlusDI calculates Plus Directional Indicator
func PlusDI(high []float64, low []float64, close []float64, period int) []float64 {
	return talib.PlusDI(high, low, close, period)
}

// MinusDI calculates Minus Directional Indicator
func MinusDI(high []float64, low []float64, close []float64, period int) []float64 {
	return talib.MinusDI(high, low, close, period)
}

// MACD calculates Moving Average Convergence/Divergence
// Returns MACD, signal, and histogram
func MACD(input []float64, fastPeriod int, slowPeriod int, signalPeriod int) ([]float64, []float64, []float64) {
	return talib.Macd(input, fastPeriod, slowPeriod, signalPeriod)
}

// RSI calculates Relative Strength Index
func RSI(input []float64, period int) []float64 {
	return talib.Rsi(input, period)
}

// ROC calculates Rate of Change: ((price/prevPrice)-1)*100
func ROC(input []float64, period int) []float64 {
	return talib.Roc(input, period)
}

// ---------------------------------------
// Volatility Indicators
// ---------------------------------------

// ATR calculates Average True Range
func ATR(high []float64, low []float64, close []float64, period int) []float64 {
	return talib.Atr(high, low, close, period)
}

// NATR calculates Normalized Average True Range
func NATR(high []float64, low []float64, close []float64, period int) []float64 {
	return talib.Natr(high, low, close, period)
}

// ---------------------------------------
// Statistic Functions
// ---------------------------------------

// StdDev calculates Standard Deviation
func StdDev(input []float64, period int, nbDev float64) []float64 {
	return talib.StdDev(input, period, nbDev)
}

// ---------------------------------------
// Math Operator Functions
// ---------------------------------------

// Max calculates Highest value over period
func Max(input []float64, period int) []float64 {
	return talib.Max(input, period)
}

// Min calculates Lowest value over period
func Min(input []float64, period int) []float64 {
	return talib.Min(input, period)
}
