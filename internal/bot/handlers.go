// Package bot adapts the registration dialogue, redemption and certificates
// to Telegram commands and callbacks.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/learnstations/stationbot/core/logger"
	tg "github.com/learnstations/stationbot/core/telegram"
	"github.com/learnstations/stationbot/core/telegram/format"
	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
	"github.com/learnstations/stationbot/internal/certificate"
	"github.com/learnstations/stationbot/internal/codes"
	"github.com/learnstations/stationbot/internal/dialogue"
	"github.com/learnstations/stationbot/internal/messaging"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/redeem"
)

// Options wires Handlers.
type Options struct {
	Machine   *dialogue.Machine
	Validator *redeem.Validator
	Issuer    *certificate.Issuer
	Clock     *codes.Clock
	Store     participant.Store
	Messenger messaging.Messenger
	Registry  *tg.Registry
}

// Handlers holds the Telegram entry points.
type Handlers struct {
	machine   *dialogue.Machine
	validator *redeem.Validator
	issuer    *certificate.Issuer
	clock     *codes.Clock
	store     participant.Store
	msg       messaging.Messenger
	reg       *tg.Registry
}

// NewHandlers builds Handlers.
func NewHandlers(opts Options) (*Handlers, error) {
	if opts.Machine == nil || opts.Validator == nil || opts.Issuer == nil ||
		opts.Clock == nil || opts.Store == nil || opts.Messenger == nil {
		return nil, errors.New("bot: incomplete handler options")
	}
	return &Handlers{
		machine:   opts.Machine,
		validator: opts.Validator,
		issuer:    opts.Issuer,
		clock:     opts.Clock,
		store:     opts.Store,
		msg:       opts.Messenger,
		reg:       opts.Registry,
	}, nil
}

func eventOf(c tele.Context) dialogue.Event {
	var ev dialogue.Event
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
		ev.FirstName = u.FirstName
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	} else {
		ev.ChatID = ev.UserID
	}
	return ev
}

// commandArgs returns the words after the command itself.
func commandArgs(c tele.Context) []string {
	fields := strings.Fields(c.Text())
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		fields = fields[1:]
	}
	return fields
}

func (h *Handlers) reply(ctx context.Context, chatID int64, text string) error {
	_, err := h.msg.SendText(ctx, chatID, text, nil)
	return err
}

// Start handles /start.
func (h *Handlers) Start(c tele.Context) error {
	return h.machine.Start(tghelpers.BuildContext(c), eventOf(c))
}

// Visited handles /visited <code>.
func (h *Handlers) Visited(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	args := commandArgs(c)
	if len(args) != 1 {
		return h.reply(ctx, ev.ChatID, textVisitedUsage)
	}

	_, err := h.validator.Redeem(ctx, ev.UserID, args[0])
	switch {
	case err == nil:
		// Announce already answered.
		return nil
	case errors.Is(err, redeem.ErrInvalidCode):
		return h.reply(ctx, ev.ChatID, textInvalidCode)
	case errors.Is(err, redeem.ErrNotRegistered):
		return h.reply(ctx, ev.ChatID, textRegisterFirst)
	case errors.Is(err, participant.ErrUnavailable):
		return h.reply(ctx, ev.ChatID, textUnavailable)
	}
	return err
}

// Announce replies to a /visited command. It runs before any certificate is sent.
func Announce(msg messaging.Messenger) func(ctx context.Context, v redeem.Visit) {
	return func(ctx context.Context, v redeem.Visit) {
		chatID := logger.ChatIDFrom(ctx)
		if chatID == 0 {
			chatID = v.Participant.UserID
		}
		var text string
		switch v.Outcome {
		case redeem.Recorded:
			text = textVisited(v.Station, v.Remaining)
		case redeem.AlreadyVisited:
			text = textAlreadyVisited(v.Station)
		case redeem.NotALearner:
			text = textNotLearner
		default:
			return
		}
		if _, err := msg.SendText(ctx, chatID, text, nil); err != nil {
			logger.LogEvent(ctx, logger.Redeem, slog.LevelWarn, "redeem.reply",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
}

// ClearData handles /cleardata.
func (h *Handlers) ClearData(c tele.Context) error {
	return h.machine.ClearData(tghelpers.BuildContext(c), eventOf(c))
}

// Download handles /download: completed learners get their certificate again.
func (h *Handlers) Download(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	p, err := h.store.FindByUserID(ctx, ev.UserID)
	switch {
	case errors.Is(err, participant.ErrNotFound):
		return h.reply(ctx, ev.ChatID, textRegisterFirst)
	case err != nil:
		return h.reply(ctx, ev.ChatID, textUnavailable)
	case !p.IsLearner():
		return h.reply(ctx, ev.ChatID, textNotLearner)
	}
	if left := h.validator.Total() - len(p.Visited); left > 0 {
		return h.reply(ctx, ev.ChatID, textNotFinished(left))
	}
	return h.issuer.Deliver(ctx, ev.ChatID, p, textDownloadCaption)
}

// Help handles /help.
func (h *Handlers) Help(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return h.reply(ctx, eventOf(c).ChatID, h.helpText())
}

func (h *Handlers) helpText() string {
	if h.reg == nil {
		return "Use /start to register."
	}
	names := make([]string, 0, len(h.reg.Commands()))
	for name, cmd := range h.reg.Commands() {
		if cmd.Hidden || cmd.AdminOnly {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("*Here's what I can do:*\n")
	for _, name := range names {
		cmd := h.reg.Commands()[name]
		usage := cmd.Usage
		if usage == "" {
			usage = name
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, cmd.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Codes handles the admin /codes command.
func (h *Handlers) Codes(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	snap, err := h.clock.Current()
	if err != nil {
		return h.reply(ctx, ev.ChatID, textNoCodes)
	}
	names := make([]string, 0, len(snap.Codes))
	for st := range snap.Codes {
		names = append(names, st)
	}
	sort.Strings(names)
	text := textCodes(names, func(st string) string { return snap.Codes[st] }, h.clock.TimeRemaining(), snap.Epoch)
	return h.reply(ctx, ev.ChatID, text)
}

// Participant handles the admin /participant <primary key> command.
func (h *Handlers) Participant(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	p, ok, err := h.lookupByKey(ctx, c, "/participant")
	if !ok || err != nil {
		return err
	}
	return h.reply(ctx, ev.ChatID, textParticipant(p, h.validator.Total()))
}

// Regen handles the admin /regen <primary key> command.
func (h *Handlers) Regen(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	p, ok, err := h.lookupByKey(ctx, c, "/regen")
	if !ok || err != nil {
		return err
	}
	if !p.IsLearner() {
		return h.reply(ctx, ev.ChatID, textNotLearner)
	}
	if len(p.Visited) < h.validator.Total() {
		return h.reply(ctx, ev.ChatID, fmt.Sprintf(textRegenNotDone, format.Markdown(p.Name), len(p.Visited), h.validator.Total()))
	}
	return h.issuer.Deliver(ctx, ev.ChatID, p, fmt.Sprintf(textRegenCaption, format.Markdown(p.Name)))
}

// lookupByKey parses the primary key argument and loads the participant.
// ok is false when a reply was already sent.
func (h *Handlers) lookupByKey(ctx context.Context, c tele.Context, command string) (participant.Participant, bool, error) {
	chatID := eventOf(c).ChatID
	args := commandArgs(c)
	if len(args) != 1 {
		return participant.Participant{}, false, h.reply(ctx, chatID, fmt.Sprintf(textParticipantArg, command))
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || key <= 0 {
		return participant.Participant{}, false, h.reply(ctx, chatID, fmt.Sprintf(textParticipantArg, command))
	}
	p, err := h.store.FindByPrimaryKey(ctx, key)
	switch {
	case errors.Is(err, participant.ErrNotFound):
		return participant.Participant{}, false, h.reply(ctx, chatID, fmt.Sprintf(textNoParticipant, key))
	case err != nil:
		return participant.Participant{}, false, h.reply(ctx, chatID, textUnavailable)
	}
	return p, true, nil
}

// Callback routes the dialogue buttons.
func (h *Handlers) Callback(action dialogue.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Message == nil {
			return tghelpers.Answer(c, "This button has expired.")
		}
		ev := eventOf(c)
		ref := messaging.MessageRef{ChatID: ev.ChatID, MessageID: cb.Message.ID}
		return h.machine.Choose(tghelpers.BuildContext(c), ev, ref, action)
	}
}
