package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/learnstations/stationbot/core/logger"
	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	IsAdmin  func(userID int64) bool
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only configured admins can invoke downstream handlers.
// With no IsAdmin predicate every caller is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender != nil && opts.IsAdmin != nil && opts.IsAdmin(sender.ID) {
				return next(c)
			}
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "admin.reject",
				slog.String("outcome", "invalid"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
