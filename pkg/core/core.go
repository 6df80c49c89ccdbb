package core

import (
	"context"
	"time"
)

// Feeder provides futures market data.
type Feeder interface {
	Symbols(ctx context.Context) ([]string, error)
	AssetsInfo(symbol string) AssetInfo
	LastQuote(ctx context.Context, symbol string) (float64, error)
	QuoteAt(ctx context.Context, symbol string, at time.Time) (float64, error)
	CandlesByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// Notifier receives free-form service notifications and errors.
type Notifier interface {
	Notify(string)
	OnError(err error)
}

// NotifierWithStart is a notifier that runs its own receive loop.
type NotifierWithStart interface {
	Notifier
	Start()
}

// Publisher posts, edits and deletes signal messages in the alert channel.
type Publisher interface {
	Publish(ctx context.Context, text string) (messageID int, err error)
	Edit(ctx context.Context, messageID int, text string) error
	Delete(ctx context.Context, messageID int) error
}
