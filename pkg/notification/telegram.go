package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"slices"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Refresher re-renders a signal message on demand, used by the refresh
// button on channel posts.
type Refresher interface {
	ManualRefresh(ctx context.Context, sig *core.Signal) error
}

// Switch pauses and resumes the scan loop from operator commands.
type Switch interface {
	Pause()
	Resume()
	Paused() bool
}

// Bot is the operator-facing Telegram interface: admin commands for
// status and signal queries plus the refresh callback on channel posts.
type Bot struct {
	log         logger.Logger
	settings    *core.Settings
	client      *tb.Bot
	defaultMenu *tb.ReplyMarkup

	repo      core.SignalRepository
	feeder    core.Feeder
	formatter *Formatter
	refresher Refresher
	sw        Switch
	analyzer  Analyzer

	mu          sync.Mutex
	lastAnalyze map[int64]time.Time

	started time.Time
}

// Option is a function that configures a Bot instance.
type Option func(*Bot)

// WithRepository wires the signal store used by query commands.
func WithRepository(repo core.SignalRepository) Option {
	return func(b *Bot) { b.repo = repo }
}

// WithFeeder wires market data for live prices in command replies.
func WithFeeder(feeder core.Feeder) Option {
	return func(b *Bot) { b.feeder = feeder }
}

// WithRefresher wires the tracker refresh used by the update button.
func WithRefresher(r Refresher) Option {
	return func(b *Bot) { b.refresher = r }
}

// WithSwitch wires the scan loop pause control for /stop and /start.
func WithSwitch(s Switch) Option {
	return func(b *Bot) { b.sw = s }
}

// WithBotFormatter overrides the alert formatter used by /signal.
func WithBotFormatter(f *Formatter) Option {
	return func(b *Bot) { b.formatter = f }
}

// NewBot creates and initializes the operator bot.
func NewBot(log logger.Logger, settings *core.Settings, options ...Option) (*Bot, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	blog := log.WithField("component", "bot")
	userMiddleware := createAuthMiddleware(blog, poller, settings)

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Bot{
		log:         blog,
		settings:    settings,
		client:      client,
		defaultMenu: menu,
		formatter:   NewFormatter(nil),
		lastAnalyze: make(map[int64]time.Time),
		started:     time.Now(),
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// Client exposes the underlying telebot client so the channel publisher
// can share the same bot identity.
func (b *Bot) Client() *tb.Bot {
	return b.client
}

// SetRefresher wires the tracker after construction; the tracker itself
// needs the channel publisher the bot's client backs.
func (b *Bot) SetRefresher(r Refresher) {
	b.refresher = r
}

// createAuthMiddleware creates a middleware to validate admin users.
// Callback queries pass through untouched: the update button lives on
// public channel posts. An empty admin list means open access.
func createAuthMiddleware(log logger.Logger, poller *tb.LongPoller, settings *core.Settings) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Callback != nil {
			return true
		}
		if u.Message == nil || u.Message.Sender == nil {
			return false
		}
		if len(settings.Telegram.Admins) == 0 {
			return true
		}
		if slices.Contains(settings.Telegram.Admins, int(u.Message.Sender.ID)) {
			return true
		}

		log.Warnf("unauthorized access attempt from user %d", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout.
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn  = menu.Text("/status")
		activeBtn  = menu.Text("/active")
		summaryBtn = menu.Text("/summary")
		startBtn   = menu.Text("/start")
		stopBtn    = menu.Text("/stop")
	)

	menu.Reply(
		menu.Row(statusBtn, activeBtn, summaryBtn),
		menu.Row(startBtn, stopBtn),
	)
}

// setupCommands configures available bot commands.
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Check scanner status"},
		{Text: "/active", Description: "List signals being tracked"},
		{Text: "/summary", Description: "Latest performance summary"},
		{Text: "/signal", Description: "Show one signal by id"},
		{Text: "/analyze", Description: "Analyze a symbol on demand"},
		{Text: "/start", Description: "Resume signal scanning"},
		{Text: "/stop", Description: "Pause signal scanning"},
	})
}

// registerHandlers registers all command handlers.
func registerHandlers(client *tb.Bot, bot *Bot) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/start", bot.StartHandle)
	client.Handle("/stop", bot.StopHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/active", bot.ActiveHandle)
	client.Handle("/summary", bot.SummaryHandle)
	client.Handle("/signal", bot.SignalHandle)
	client.Handle("/analyze", bot.AnalyzeHandle)
	client.Handle(&tb.InlineButton{Unique: "update_signal"}, bot.UpdateCallback)
}

// Start begins the Telegram bot receive loop and greets the admins.
func (b *Bot) Start() {
	go b.client.Start()
	b.sendMessageWithOptions("Signal scanner bot initialized.", b.defaultMenu)
}

// Stop shuts down the receive loop.
func (b *Bot) Stop() {
	b.client.Stop()
}

// Notify sends a message to all admin users.
func (b *Bot) Notify(text string) {
	for _, user := range b.settings.Telegram.Admins {
		if _, err := b.client.Send(&tb.User{ID: int64(user)}, text); err != nil {
			b.log.WithError(err).Error("failed to send notification")
		}
	}
}

// OnError notifies admins about errors.
func (b *Bot) OnError(err error) {
	b.Notify(fmt.Sprintf("🛑 ERROR\n-----\n%s", err.Error()))
}

func (b *Bot) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range b.settings.Telegram.Admins {
		if _, err := b.client.Send(&tb.User{ID: int64(user)}, text, options...); err != nil {
			b.log.WithError(err).Error("failed to send notification with options")
		}
	}
}

func (b *Bot) sendMessage(to *tb.User, text string, options ...interface{}) {
	if _, err := b.client.Send(to, text, options...); err != nil {
		b.log.WithError(err).Error("failed to send message")
	}
}

// HelpHandle displays available commands.
func (b *Bot) HelpHandle(m *tb.Message) {
	commands, err := b.client.GetCommands()
	if err != nil {
		b.log.WithError(err).Error("failed to get commands")
		b.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	b.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the scanner state and tracked signal count.
func (b *Bot) StatusHandle(m *tb.Message) {
	status := "running"
	if b.sw != nil && b.sw.Paused() {
		status = "paused"
	}

	uptime := time.Since(b.started).Round(time.Second)
	message := fmt.Sprintf("Status: `%s`\nUptime: `%s`", status, uptime)

	if b.repo != nil {
		if active, err := b.repo.ActiveSignals(context.Background(), 0); err == nil {
			message += fmt.Sprintf("\nActive signals: `%d`", len(active))
		}
	}

	b.sendMessage(m.Sender, message)
}

// ActiveHandle lists the signals the tracker is still following.
func (b *Bot) ActiveHandle(m *tb.Message) {
	if b.repo == nil {
		b.sendMessage(m.Sender, "Signal store is not available.")
		return
	}

	ctx := context.Background()
	signals, err := b.repo.ActiveSignals(ctx, 0)
	if err != nil {
		b.log.WithError(err).Error("failed to list active signals")
		b.OnError(err)
		return
	}
	if len(signals) == 0 {
		b.sendMessage(m.Sender, "No active signals.")
		return
	}

	lines := make([]string, 0, len(signals)+1)
	lines = append(lines, fmt.Sprintf("*ACTIVE SIGNALS* (%d)", len(signals)))
	for _, sig := range signals {
		line := fmt.Sprintf("%s %s %s  entry `%.6g`", sig.Direction.Emoji(), sig.Symbol, sig.Direction, sig.Price)
		if b.feeder != nil {
			if price, err := b.feeder.LastQuote(ctx, sig.Symbol); err == nil {
				line += fmt.Sprintf("  PnL `%+.2f%%`", sig.PnLPercent(price))
			}
		}
		line += fmt.Sprintf("\n  `%s` - %s ago", sig.ID, formatElapsed(sig.CreatedAt, time.Now().Unix()))
		lines = append(lines, line)
	}

	b.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// SummaryHandle shows the most recent stored performance summary.
func (b *Bot) SummaryHandle(m *tb.Message) {
	if b.repo == nil {
		b.sendMessage(m.Sender, "Signal store is not available.")
		return
	}

	summary, err := b.repo.LatestMetricsSummary(context.Background())
	if err != nil {
		b.log.WithError(err).Error("failed to load metrics summary")
		b.OnError(err)
		return
	}
	if summary == nil {
		b.sendMessage(m.Sender, "No summary stored yet.")
		return
	}

	b.sendMessage(m.Sender, formatSummary(summary))
}

// SignalHandle shows one signal by id: `/signal 20251107-074546-FILUSDT`.
func (b *Bot) SignalHandle(m *tb.Message) {
	if b.repo == nil {
		b.sendMessage(m.Sender, "Signal store is not available.")
		return
	}

	id := strings.TrimSpace(m.Payload)
	if id == "" {
		b.sendMessage(m.Sender, "Usage: `/signal SIGNAL-ID`")
		return
	}

	ctx := context.Background()
	sig, err := b.repo.Signal(ctx, id)
	if err != nil {
		b.sendMessage(m.Sender, fmt.Sprintf("Signal `%s` not found.", id))
		return
	}

	price, at := sig.Price, time.Now().Unix()
	if b.feeder != nil {
		if quote, err := b.feeder.LastQuote(ctx, sig.Symbol); err == nil {
			price = quote
		}
	}

	text := b.formatter.SignalAlert(sig, price, at)
	b.sendMessage(m.Sender, text, &tb.SendOptions{ParseMode: tb.ModeMarkdownV2})
}

// StartHandle resumes the scan loop.
func (b *Bot) StartHandle(m *tb.Message) {
	if b.sw == nil {
		b.sendMessage(m.Sender, "Scanner control is not available.", b.defaultMenu)
		return
	}
	if !b.sw.Paused() {
		b.sendMessage(m.Sender, "Scanner is already running.", b.defaultMenu)
		return
	}

	b.sw.Resume()
	b.sendMessage(m.Sender, "Scanner resumed.", b.defaultMenu)
}

// StopHandle pauses the scan loop. Tracking of already published
// signals continues.
func (b *Bot) StopHandle(m *tb.Message) {
	if b.sw == nil {
		b.sendMessage(m.Sender, "Scanner control is not available.", b.defaultMenu)
		return
	}
	if b.sw.Paused() {
		b.sendMessage(m.Sender, "Scanner is already paused.", b.defaultMenu)
		return
	}

	b.sw.Pause()
	b.sendMessage(m.Sender, "Scanner paused. Active signals are still tracked.", b.defaultMenu)
}

// UpdateCallback refreshes a signal message when the channel button is
// pressed. The callback is answered first; Telegram expires them fast.
func (b *Bot) UpdateCallback(cb *tb.Callback) {
	if err := b.client.Respond(cb, &tb.CallbackResponse{Text: "⏳ Updating..."}); err != nil {
		b.log.WithError(err).Debug("callback response failed")
	}

	signalID := strings.TrimSpace(cb.Data)
	if signalID == "" || b.refresher == nil || b.repo == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sig, err := b.repo.Signal(ctx, signalID)
		if err != nil {
			b.log.WithError(err).Warnf("refresh requested for unknown signal %s", signalID)
			return
		}
		if err := b.refresher.ManualRefresh(ctx, sig); err != nil {
			b.log.WithError(err).Errorf("manual refresh failed for %s", signalID)
			return
		}
		b.log.Infof("manual refresh completed for %s", signalID)
	}()
}

// formatSummary renders a stored metrics summary for chat display.
func formatSummary(s *core.MetricsSummary) string {
	period := fmt.Sprintf("%s - %s",
		time.Unix(s.PeriodStart, 0).UTC().Format("02/01 15:04"),
		time.Unix(s.PeriodEnd, 0).UTC().Format("02/01 15:04"))

	lines := []string{
		"*PERFORMANCE SUMMARY*",
		fmt.Sprintf("Period: `%s UTC`", period),
		fmt.Sprintf("Signals: `%d` (LONG %d / SHORT %d)", s.TotalSignals, s.LongSignals, s.ShortSignals),
		fmt.Sprintf("Neutral filtered: `%d`", s.NeutralFiltered),
		fmt.Sprintf("Avg confidence: `%.1f%%`", s.AvgConfidence*100),
		fmt.Sprintf("TP1 hit rate: `%.1f%%`", s.TP1HitRate*100),
		fmt.Sprintf("TP2 hit rate: `%.1f%%`", s.TP2HitRate*100),
		fmt.Sprintf("SL hit rate: `%.1f%%`", s.SLHitRate*100),
		fmt.Sprintf("Avg MFE: `%.2f%%`  Avg MAE: `%.2f%%`", s.AvgMFEPercent, s.AvgMAEPercent),
		fmt.Sprintf("Avg time to first target: `%.1fh`", s.AvgHoursToFirstTarget),
	}
	if s.MarketRegime != "" {
		lines = append(lines, fmt.Sprintf("Dominant regime: `%s`", s.MarketRegime))
	}
	return strings.Join(lines, "\n")
}
