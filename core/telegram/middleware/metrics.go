package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
)

const countersKey = "reply_counters"

type countersCtxKey struct{}

// Counters tallies outbound messages produced while handling one update.
// Handlers that bypass tele.Context (for example the outbox) record through Track.
type Counters struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// Track records one outbound message.
func (m *Counters) Track(withKeyboard bool) {
	if m == nil {
		return
	}
	m.messages.Add(1)
	if withKeyboard {
		m.keyboard.Store(true)
	}
}

// metricsContext wraps tele.Context to count sent messages and detect keyboard usage.
type metricsContext struct {
	tele.Context
	counters *Counters
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) track(err error, opts []any) error {
	if err == nil {
		m.counters.Track(hasKeyboard(opts))
	}
	return err
}

// Send proxies tele.Context.Send while updating message counters.
func (m metricsContext) Send(what any, opts ...any) error {
	return m.track(m.Context.Send(what, opts...), opts)
}

// Reply proxies tele.Context.Reply while updating message counters.
func (m metricsContext) Reply(what any, opts ...any) error {
	return m.track(m.Context.Reply(what, opts...), opts)
}

// Edit proxies tele.Context.Edit while updating message counters.
func (m metricsContext) Edit(what any, opts ...any) error {
	return m.track(m.Context.Edit(what, opts...), opts)
}

// EditOrSend proxies tele.Context.EditOrSend while updating message counters.
func (m metricsContext) EditOrSend(what any, opts ...any) error {
	return m.track(m.Context.EditOrSend(what, opts...), opts)
}

// MessageMetricsMiddleware instruments context to track messages count and keyboard usage.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.Get(countersKey).(*Counters); ok {
			return next(c)
		}
		counters := &Counters{}
		c.Set(countersKey, counters)
		ctx := context.WithValue(tghelpers.BuildContext(c), countersCtxKey{}, counters)
		tghelpers.StoreContext(c, ctx)
		return next(metricsContext{Context: c, counters: counters})
	}
}

// CountersFrom returns the counters attached to c, or nil.
func CountersFrom(c tele.Context) *Counters {
	if c == nil {
		return nil
	}
	m, _ := c.Get(countersKey).(*Counters)
	return m
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	m := CountersFrom(c)
	if m == nil {
		return 0, false
	}
	return int(m.messages.Load()), m.keyboard.Load()
}

// CountersFromContext returns the counters of the update being handled in ctx, or nil.
func CountersFromContext(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(countersCtxKey{}).(*Counters)
	return m
}
