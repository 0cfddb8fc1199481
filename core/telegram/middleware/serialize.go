package middleware

import tele "gopkg.in/telebot.v4"

// Locker hands out a per-key critical section; the returned func releases it.
type Locker interface {
	Lock(key int64) (unlock func())
}

// SerializeMiddleware processes updates of one sender one at a time.
// Telebot runs every update in its own goroutine, so two quick taps from the
// same user would otherwise race on that user's dialogue state.
func SerializeMiddleware(locks Locker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if locks == nil || sender == nil {
				return next(c)
			}
			unlock := locks.Lock(sender.ID)
			defer unlock()
			return next(c)
		}
	}
}
