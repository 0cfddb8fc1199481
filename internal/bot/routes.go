package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/learnstations/stationbot/core/telegram"
	"github.com/learnstations/stationbot/core/telegram/commands"
	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
	"github.com/learnstations/stationbot/core/telegram/router"
	"github.com/learnstations/stationbot/core/telegram/ui"
	"github.com/learnstations/stationbot/internal/dialogue"
)

// Register adds every command and dialogue callback to reg.
func Register(reg *tg.Registry, h *Handlers) error {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Register or view your details",
	})
	reg.RegisterCommand("/visited", commands.Command{
		Handler:     h.Visited,
		Description: "Mark a station as visited",
		Usage:       "/visited <code>",
	})
	reg.RegisterCommand("/download", commands.Command{
		Handler:     h.Download,
		Description: "Download your certificate",
	})
	reg.RegisterCommand("/cleardata", commands.Command{
		Handler:     h.ClearData,
		Description: "Delete your registration",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.Help,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/codes", commands.Command{
		Handler:     h.Codes,
		Description: "Current visitor codes",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/participant", commands.Command{
		Handler:     h.Participant,
		Description: "Participant details by primary key",
		Usage:       "/participant <primary key>",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/regen", commands.Command{
		Handler:     h.Regen,
		Description: "Regenerate a learner's certificate",
		Usage:       "/regen <primary key>",
		AdminOnly:   true,
	})

	for _, action := range dialogue.Actions {
		if err := reg.RegisterCallback(string(action), h.Callback(action)); err != nil {
			return fmt.Errorf("bot: register %s: %w", action, err)
		}
	}
	return nil
}

// FSM hands plain text to the dialogue while a step is pending.
type FSM struct {
	Machine *dialogue.Machine
	// Unhandled runs when the step vanished between InProgress and the handler.
	Unhandled tele.HandlerFunc
}

func (f FSM) InProgress(userID int64) bool {
	return f.Machine.InProgress(userID)
}

func (f FSM) ManagerHandler(c tele.Context) error {
	// Unknown commands never count as an answer to the pending prompt.
	if strings.HasPrefix(strings.TrimSpace(c.Text()), "/") {
		if f.Unhandled == nil {
			return nil
		}
		return f.Unhandled(c)
	}
	handled, err := f.Machine.Submit(tghelpers.BuildContext(c), eventOf(c), c.Text())
	if err != nil || handled || f.Unhandled == nil {
		return err
	}
	return f.Unhandled(c)
}

// Fallbacks answers updates nothing else claimed.
type Fallbacks struct{}

var _ ui.FallbackProvider = Fallbacks{}

func (Fallbacks) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error { return tghelpers.SendMD(c, textUnknown) }
}

func (Fallbacks) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error { return tghelpers.SendMD(c, textUnknownDocument) }
}

func (Fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error { return tghelpers.Answer(c, "This button has expired.") }
}

// AdminReject replies to non-admins calling an admin command.
func AdminReject(c tele.Context) error {
	return tghelpers.SendMD(c, textAdminOnly)
}

// Routes builds every Telegram route: commands, callbacks, then text.
func Routes(reg *tg.Registry, machine *dialogue.Machine, fb ui.FallbackProvider, isAdmin func(int64) bool) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin:       isAdmin,
		OnAdminReject: AdminReject,
	})
	reg.SetCallbackNotFound(fb.UnknownCallback())
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	fsm := FSM{Machine: machine, Unhandled: fb.UnknownText()}
	return append(routes, router.TextRoutes(fsm, reg, router.TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
	})...)
}
