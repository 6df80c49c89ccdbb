package sigscan

import (
	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Option is a functional option for configuring an App instance.
type Option func(*App)

// WithLogger replaces the configured logger.
func WithLogger(log logger.Logger) Option {
	return func(app *App) {
		app.log = log
	}
}

// WithFeeder injects an alternative market data source. By default the
// app connects to the Binance USDT-M futures API.
func WithFeeder(feeder core.Feeder) Option {
	return func(app *App) {
		app.feeder = feeder
	}
}

// WithRepository injects an alternative signal store. By default a
// local SQLite database is used.
func WithRepository(repo core.SignalRepository) Option {
	return func(app *App) {
		app.repo = repo
	}
}

// WithCooldownStore injects an alternative cooldown cache. By default
// an in-memory buntdb store is used.
func WithCooldownStore(store core.CooldownStore) Option {
	return func(app *App) {
		app.cooldownStore = store
	}
}
