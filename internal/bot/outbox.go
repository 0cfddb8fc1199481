package bot

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	tele "gopkg.in/telebot.v4"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/core/telegram/keyboard"
	"github.com/learnstations/stationbot/core/telegram/middleware"
	"github.com/learnstations/stationbot/core/telegram/sender"
	"github.com/learnstations/stationbot/internal/messaging"
)

const (
	sendTries        = 3
	sendRetryBackoff = 200 * time.Millisecond
)

// Outbox sends through the bot attached at startup. Calls are synchronous
// because the dialogue needs the ids of the messages it creates; transient
// failures are retried in place.
type Outbox struct {
	bot          atomic.Pointer[tele.Bot]
	retryBackoff time.Duration
}

// NewOutbox returns an Outbox without a bot; calls fail with messaging.ErrNotReady until Attach.
func NewOutbox() *Outbox { return &Outbox{retryBackoff: sendRetryBackoff} }

// Attach sets the bot used for sending. nil detaches.
func (o *Outbox) Attach(b *tele.Bot) { o.bot.Store(b) }

func (o *Outbox) client() (*tele.Bot, error) {
	b := o.bot.Load()
	if b == nil {
		return nil, messaging.ErrNotReady
	}
	return b, nil
}

func (o *Outbox) SendText(ctx context.Context, chatID int64, text string, kb messaging.Keyboard) (messaging.MessageRef, error) {
	b, err := o.client()
	if err != nil {
		return messaging.MessageRef{}, err
	}
	msg, err := deliver(ctx, "send_text", o.retryBackoff, func() (*tele.Message, error) {
		return b.Send(&tele.Chat{ID: chatID}, text, sendOptions(kb))
	})
	if err != nil {
		return messaging.MessageRef{}, err
	}
	middleware.CountersFromContext(ctx).Track(kb != nil)
	return refOf(msg, chatID), nil
}

func (o *Outbox) EditText(ctx context.Context, ref messaging.MessageRef, text string, kb messaging.Keyboard) error {
	b, err := o.client()
	if err != nil {
		return err
	}
	_, err = deliver(ctx, "edit_text", o.retryBackoff, func() (*tele.Message, error) {
		return b.Edit(editable(ref), text, sendOptions(kb))
	})
	if notModified(err) {
		return nil
	}
	if err == nil {
		middleware.CountersFromContext(ctx).Track(kb != nil)
	}
	return err
}

func (o *Outbox) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) (messaging.MessageRef, error) {
	b, err := o.client()
	if err != nil {
		return messaging.MessageRef{}, err
	}
	msg, err := deliver(ctx, "send_photo", o.retryBackoff, func() (*tele.Message, error) {
		// The reader is consumed by each attempt.
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
		return b.Send(&tele.Chat{ID: chatID}, photo, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	})
	if err != nil {
		return messaging.MessageRef{}, err
	}
	middleware.CountersFromContext(ctx).Track(false)
	return refOf(msg, chatID), nil
}

func (o *Outbox) EditCaption(ctx context.Context, ref messaging.MessageRef, caption string) error {
	b, err := o.client()
	if err != nil {
		return err
	}
	_, err = deliver(ctx, "edit_caption", o.retryBackoff, func() (*tele.Message, error) {
		return b.EditCaption(editable(ref), caption, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	})
	if notModified(err) {
		return nil
	}
	return err
}

func (o *Outbox) Delete(ctx context.Context, ref messaging.MessageRef) error {
	b, err := o.client()
	if err != nil {
		return err
	}
	_, err = deliver(ctx, "delete", o.retryBackoff, func() (struct{}, error) {
		return struct{}{}, b.Delete(editable(ref))
	})
	return err
}

// deliver runs op with the sender's retry policy.
func deliver[T any](ctx context.Context, op string, initial time.Duration, call func() (T, error)) (T, error) {
	attempt := 0
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := call()
		return v, sender.RetryClass(err)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(sendTries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Debug(ctx, "tg.sender", "outbox.retry",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("err", err.Error()),
			)
		}),
	)
}

func sendOptions(kb messaging.Keyboard) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup(kb)}
}

// markup converts a keyboard to telebot inline markup. A nil result removes
// the keyboard on edits.
func markup(kb messaging.Keyboard) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(kb))
	for _, row := range kb {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, btn := range row {
			r = append(r, keyboard.InlineBtn{Text: btn.Text, Unique: btn.Action, Data: btn.Data})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}

func editable(ref messaging.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func refOf(msg *tele.Message, chatID int64) messaging.MessageRef {
	if msg == nil {
		return messaging.MessageRef{ChatID: chatID}
	}
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}
	return messaging.MessageRef{ChatID: chatID, MessageID: msg.ID}
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
