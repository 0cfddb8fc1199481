package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/core/telegram/callbacks"
	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
)

const receiptTTL = 10 * time.Second

// receipts remembers recently logged update ids; the logger runs both globally
// and on each route, and only the first pass should emit update.received.
type receipts struct {
	mu   sync.Mutex
	seen map[int]time.Time
}

var recent = &receipts{seen: make(map[int]time.Time)}

func (r *receipts) firstSeen(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.seen {
		if now.Sub(ts) > receiptTTL {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

// LoggerMiddleware builds the request context (rid, update/user/chat ids) once per
// update and logs a single sampled receipt line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); !ok {
			ctx := newUpdateContext(c)
			tghelpers.StoreContext(c, ctx)
			c.Set("update_start", time.Now())
		}
		ctx := tghelpers.BuildContext(c)

		if upd := c.Update(); recent.firstSeen(upd.ID, time.Now()) && logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func newUpdateContext(c tele.Context) context.Context {
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	upd := c.Update()
	rid := logger.BuildRID(upd.ID, chatID, userID)
	c.Set("rid", rid)

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	return logger.WithLogger(ctx, logger.TG)
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		// Free text may be a passcode or an email; only its size is logged.
		if t := c.Text(); t != "" {
			if name, _, ok := commandName(t); ok {
				attrs = append(attrs, slog.String("command", name))
			}
			attrs = append(attrs, slog.Int("text_len", len([]rune(t))))
		}
	}
	return attrs
}

func commandName(text string) (string, string, bool) {
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}
	for i, r := range text {
		if r == ' ' || r == '@' {
			return text[:i], text[i:], true
		}
	}
	return text, "", true
}
