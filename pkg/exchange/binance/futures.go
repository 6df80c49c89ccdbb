package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/sony/gobreaker"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

const (
	maxKlineRetries = 3

	// Listings younger than the requested daily history get a reduced
	// limit instead of an error.
	minDailyRows = 30
)

// Futures is a market data feeder backed by the Binance USDT-M futures API
type Futures struct {
	ctx        context.Context
	client     *futures.Client
	log        logger.Logger
	assetsInfo map[string]core.AssetInfo

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cache    map[string]klineCacheEntry

	breaker *gobreaker.CircuitBreaker
}

type klineCacheEntry struct {
	candles   []core.Candle
	fetchedAt time.Time
}

// FuturesOption is a function that configures a Futures client
type FuturesOption func(*Futures)

// WithCredentials sets the API credentials for the client
func WithCredentials(key, secret string) FuturesOption {
	return func(f *Futures) {
		f.client = futures.NewClient(key, secret)
	}
}

// WithCacheTTL overrides how long kline batches are reused
func WithCacheTTL(ttl time.Duration) FuturesOption {
	return func(f *Futures) {
		f.cacheTTL = ttl
	}
}

// WithTestNet enables the Binance futures testnet
func WithTestNet() FuturesOption {
	return func(_ *Futures) {
		futures.UseTestnet = true
	}
}

// NewFutures creates a new Binance futures market data client
func NewFutures(ctx context.Context, log logger.Logger, options ...FuturesOption) (*Futures, error) {
	exchange := &Futures{
		ctx:        ctx,
		client:     futures.NewClient("", ""),
		log:        log,
		assetsInfo: make(map[string]core.AssetInfo),
		cacheTTL:   5 * time.Minute,
		cache:      make(map[string]klineCacheEntry),
	}

	for _, option := range options {
		option(exchange)
	}

	exchange.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance-futures",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// Test connection
	if err := exchange.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance futures ping fail: %w", err)
	}

	// Load exchange filters for tradable perpetuals
	exchangeInfo, err := exchange.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	for _, info := range exchangeInfo.Symbols {
		if info.Status != "TRADING" || info.QuoteAsset != "USDT" ||
			info.ContractType != "PERPETUAL" {
			continue
		}

		assetInfo := core.AssetInfo{
			BaseAsset:          info.BaseAsset,
			QuoteAsset:         info.QuoteAsset,
			BaseAssetPrecision: info.BaseAssetPrecision,
			QuotePrecision:     info.QuotePrecision,
		}

		for _, filter := range info.Filters {
			if typ, ok := filter["filterType"]; ok {
				if typ == "LOT_SIZE" {
					assetInfo.MinQuantity, _ = strconv.ParseFloat(filter["minQty"].(string), 64)
					assetInfo.MaxQuantity, _ = strconv.ParseFloat(filter["maxQty"].(string), 64)
					assetInfo.StepSize, _ = strconv.ParseFloat(filter["stepSize"].(string), 64)
				}

				if typ == "PRICE_FILTER" {
					assetInfo.MinPrice, _ = strconv.ParseFloat(filter["minPrice"].(string), 64)
					assetInfo.MaxPrice, _ = strconv.ParseFloat(filter["maxPrice"].(string), 64)
					assetInfo.TickSize, _ = strconv.ParseFloat(filter["tickSize"].(string), 64)
				}
			}
		}

		exchange.assetsInfo[info.Symbol] = assetInfo
	}

	log.Infof("[SETUP] Using Binance USDT-M futures, %d tradable perpetuals", len(exchange.assetsInfo))
	return exchange, nil
}

// Symbols returns all tradable USDT perpetual symbols
func (f *Futures) Symbols(_ context.Context) ([]string, error) {
	symbols := make([]string, 0, len(f.assetsInfo))
	for symbol := range f.assetsInfo {
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

// AssetsInfo returns exchange filters for a symbol
func (f *Futures) AssetsInfo(symbol string) core.AssetInfo {
	return f.assetsInfo[symbol]
}

// LastQuote gets the latest mark price for a symbol
func (f *Futures) LastQuote(ctx context.Context, symbol string) (float64, error) {
	if _, ok := f.assetsInfo[symbol]; !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrSymbolNotTradable, symbol)
	}

	result, err := f.breaker.Execute(func() (any, error) {
		return f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("last quote %s: %w", symbol, err)
	}

	prices := result.([]*futures.SymbolPrice)
	if len(prices) == 0 {
		return 0, fmt.Errorf("last quote %s: empty response", symbol)
	}

	return strconv.ParseFloat(prices[0].Price, 64)
}

// QuoteAt returns the close of the 1h candle nearest to the given time.
// Used to reconstruct historical prices for late-recorded snapshots.
func (f *Futures) QuoteAt(ctx context.Context, symbol string, at time.Time) (float64, error) {
	start := at.Add(-time.Hour).UnixMilli()
	end := at.Add(time.Hour).UnixMilli()

	result, err := f.breaker.Execute(func() (any, error) {
		return f.client.NewKlinesService().
			Symbol(symbol).
			Interval("1h").
			StartTime(start).
			EndTime(end).
			Do(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("historical quote %s: %w", symbol, err)
	}

	klines := result.([]*futures.Kline)
	if len(klines) == 0 {
		return 0, fmt.Errorf("historical quote %s: %w", symbol, ErrNoCandles)
	}

	best := klines[0]
	bestDiff := absDuration(at.Sub(time.UnixMilli(best.OpenTime)))
	for _, k := range klines[1:] {
		if diff := absDuration(at.Sub(time.UnixMilli(k.OpenTime))); diff < bestDiff {
			best, bestDiff = k, diff
		}
	}

	return strconv.ParseFloat(best.Close, 64)
}

// CandlesByLimit gets a number of complete candles for a symbol. Batches
// are cached for the configured TTL so a scan does not refetch the same
// series per timeframe.
func (f *Futures) CandlesByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	if _, ok := f.assetsInfo[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSymbolNotTradable, symbol)
	}

	cacheKey := fmt.Sprintf("%s|%s|%d", symbol, timeframe, limit)
	f.cacheMu.Lock()
	if entry, ok := f.cache[cacheKey]; ok && time.Since(entry.fetchedAt) < f.cacheTTL {
		f.cacheMu.Unlock()
		return entry.candles, nil
	}
	f.cacheMu.Unlock()

	candles, err := f.fetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	minRows := limit / 2
	if timeframe == "1d" {
		// Young listings have short daily history; accept a reduced batch.
		minRows = minDailyRows
	}
	if err := validateCandles(candles, minRows); err != nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, err)
	}

	f.cacheMu.Lock()
	f.cache[cacheKey] = klineCacheEntry{candles: candles, fetchedAt: time.Now()}
	f.cacheMu.Unlock()

	return candles, nil
}

func (f *Futures) fetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	retry := setupBackoffRetry()

	var klines []*futures.Kline
	for attempt := 0; ; attempt++ {
		result, err := f.breaker.Execute(func() (any, error) {
			return f.client.NewKlinesService().
				Symbol(symbol).
				Interval(timeframe).
				Limit(limit + 1). // +1 to discard the last incomplete candle
				Do(ctx)
		})
		if err == nil {
			klines = result.([]*futures.Kline)
			break
		}

		if attempt >= maxKlineRetries || ctx.Err() != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
		}

		wait := retry.Duration()
		f.log.Debugf("klines %s %s failed (attempt %d), retrying in %s: %v",
			symbol, timeframe, attempt+1, wait, err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	candles := make([]core.Candle, 0, len(klines))
	for i, k := range klines {
		// Skip the last candle as it's incomplete
		if i == len(klines)-1 {
			break
		}
		candle, err := toCandle(symbol, timeframe, k)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

func toCandle(symbol, timeframe string, k *futures.Kline) (core.Candle, error) {
	candle := core.Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		Time:      time.UnixMilli(k.OpenTime),
		Complete:  true,
	}

	var err error
	fields := []struct {
		dst *float64
		src string
	}{
		{&candle.Open, k.Open},
		{&candle.Close, k.Close},
		{&candle.High, k.High},
		{&candle.Low, k.Low},
		{&candle.Volume, k.Volume},
	}
	for _, field := range fields {
		if *field.dst, err = strconv.ParseFloat(field.src, 64); err != nil {
			return core.Candle{}, fmt.Errorf("parse kline field %q: %w", field.src, err)
		}
	}

	return candle, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
