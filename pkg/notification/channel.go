package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/unvoidf/sigscan/pkg/core"
	"github.com/unvoidf/sigscan/pkg/logger"
)

// Channel posts signal alerts to the Telegram channel and keeps them
// updated as the tracker records hits. It also carries the free-form
// lifecycle messages through the core.Publisher interface.
type Channel struct {
	log       logger.Logger
	client    *tb.Bot
	chat      *tb.Chat
	formatter *Formatter
}

// NewChannel resolves the channel (numeric ID or @username) and returns
// a publisher bound to it.
func NewChannel(log logger.Logger, client *tb.Bot, channelID string, formatter *Formatter) (*Channel, error) {
	chat, err := client.ChatByID(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %q: %w", channelID, err)
	}
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	return &Channel{
		log:       log.WithField("component", "channel"),
		client:    client,
		chat:      chat,
		formatter: formatter,
	}, nil
}

// PublishSignal posts the initial alert for a signal and returns the
// channel message id used for later edits.
func (c *Channel) PublishSignal(ctx context.Context, sig *core.Signal) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	text := c.formatter.SignalAlert(sig, sig.Price, sig.CreatedAt)
	msg, err := c.send(text, &tb.SendOptions{
		ParseMode:   tb.ModeMarkdownV2,
		ReplyMarkup: updateKeyboard(sig.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to publish signal %s: %w", sig.ID, err)
	}

	c.log.WithField("signal", sig.ID).Infof("alert posted, message %d", msg.ID)
	return msg.ID, nil
}

// EditSignal re-renders the alert at the current price and updates the
// channel message in place. A message removed from the channel surfaces
// as core.ErrMessageNotFound so the tracker can stop editing it.
func (c *Channel) EditSignal(ctx context.Context, sig *core.Signal, currentPrice float64, priceAt int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := c.formatter.SignalAlert(sig, currentPrice, priceAt)
	ref := &tb.Message{ID: sig.TelegramMessageID, Chat: c.chat}
	opts := &tb.SendOptions{
		ParseMode:   tb.ModeMarkdownV2,
		ReplyMarkup: updateKeyboard(sig.ID),
	}

	_, err := c.client.Edit(ref, text, opts)
	if err == nil {
		return nil
	}

	// Flood control: honor the retry delay once, then give up until the
	// next tracker tick.
	var flood *tb.FloodError
	if errors.As(err, &flood) {
		c.log.Warnf("flood control on message %d, retrying in %ds", sig.TelegramMessageID, flood.RetryAfter)
		select {
		case <-time.After(time.Duration(flood.RetryAfter) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		_, err = c.client.Edit(ref, text, opts)
	}

	return c.mapEditError(sig, ref, text, err)
}

func (c *Channel) mapEditError(sig *core.Signal, ref *tb.Message, text string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	// Identical content is fine, the message is simply already current.
	if strings.Contains(msg, "message is not modified") {
		return nil
	}
	if strings.Contains(msg, "message to edit not found") || strings.Contains(msg, "message not found") {
		return core.ErrMessageNotFound
	}
	// Bad escaping should degrade to a readable plain-text message, not
	// a silent signal without updates.
	if strings.Contains(msg, "can't parse entities") {
		c.log.WithError(err).Warnf("markdown rejected for message %d, retrying as plain text", sig.TelegramMessageID)
		if _, retryErr := c.client.Edit(ref, text); retryErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to edit message %d: %w", sig.TelegramMessageID, err)
}

// Publish sends a free-form message to the channel.
func (c *Channel) Publish(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := c.client.Send(c.chat, text)
	if err != nil {
		return 0, fmt.Errorf("failed to send channel message: %w", err)
	}
	return msg.ID, nil
}

// Edit replaces the text of a previously published free-form message.
func (c *Channel) Edit(ctx context.Context, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.client.Edit(&tb.Message{ID: messageID, Chat: c.chat}, text)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
		return nil
	}
	return err
}

// Delete removes a channel message.
func (c *Channel) Delete(ctx context.Context, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Delete(&tb.Message{ID: messageID, Chat: c.chat})
}

// send posts with markdown and falls back to plain text when Telegram
// rejects the entities, mirroring the edit path.
func (c *Channel) send(text string, opts *tb.SendOptions) (*tb.Message, error) {
	msg, err := c.client.Send(c.chat, text, opts)
	if err == nil {
		return msg, nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "can't parse entities") {
		c.log.WithError(err).Warn("markdown rejected, sending alert as plain text")
		return c.client.Send(c.chat, text, &tb.SendOptions{ReplyMarkup: opts.ReplyMarkup})
	}
	return nil, err
}

// updateKeyboard builds the refresh button attached to every alert.
func updateKeyboard(signalID string) *tb.ReplyMarkup {
	btn := tb.InlineButton{
		Unique: "update_signal",
		Text:   "🔄 Update",
		Data:   signalID,
	}
	return &tb.ReplyMarkup{
		InlineKeyboard: [][]tb.InlineButton{{btn}},
	}
}
