// Package dialogue runs the mentor/learner registration conversation.
//
// Each inbound event is handled to completion; "waiting for the user" is a
// continuation stored in conversation.Store, never a blocked goroutine.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/internal/conversation"
	"github.com/learnstations/stationbot/internal/messaging"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/stations"
)

// Action is an inline button the dialogue reacts to. The value is the callback key.
type Action string

const (
	ActionMentor  Action = "role_mentor"
	ActionLearner Action = "role_learner"
	ActionBack    Action = "back"
	ActionRefresh Action = "code_refresh"
)

// Actions lists every callback key owned by the dialogue.
var Actions = []Action{ActionMentor, ActionLearner, ActionBack, ActionRefresh}

// Event identifies who sent an update and where to answer.
type Event struct {
	UserID    int64
	ChatID    int64
	FirstName string
}

// CodeSource is the read side of the visitor code clock.
type CodeSource interface {
	Code(station string) (string, bool)
	TimeRemaining() time.Duration
}

// Options wires a Machine.
type Options struct {
	Stations      *stations.Set
	Codes         CodeSource
	Store         participant.Store
	Conversations *conversation.Store
	Messenger     messaging.Messenger
}

// Machine drives registration. It is safe for concurrent use; events of one
// user are expected to arrive serialized (see middleware.SerializeMiddleware).
type Machine struct {
	stations *stations.Set
	codes    CodeSource
	store    participant.Store
	conv     *conversation.Store
	msg      messaging.Messenger
	log      *slog.Logger
}

// New builds a Machine.
func New(opts Options) (*Machine, error) {
	switch {
	case opts.Stations == nil:
		return nil, errors.New("dialogue: stations required")
	case opts.Codes == nil:
		return nil, errors.New("dialogue: code source required")
	case opts.Store == nil:
		return nil, errors.New("dialogue: participant store required")
	case opts.Messenger == nil:
		return nil, errors.New("dialogue: messenger required")
	}
	conv := opts.Conversations
	if conv == nil {
		conv = conversation.NewStore()
	}
	return &Machine{
		stations: opts.Stations,
		codes:    opts.Codes,
		store:    opts.Store,
		conv:     conv,
		msg:      opts.Messenger,
		log:      logger.Dialogue,
	}, nil
}

// InProgress reports whether the next plain text of userID belongs to the dialogue.
func (m *Machine) InProgress(userID int64) bool {
	return m.conv.InProgress(userID)
}

// Start handles the entry command. Registered users get their profile;
// everyone else gets the role menu.
func (m *Machine) Start(ctx context.Context, ev Event) error {
	p, err := m.store.FindByUserID(ctx, ev.UserID)
	switch {
	case err == nil:
		m.transition(ctx, ev, "profile", conversation.StepNone)
		_, err = m.msg.SendText(ctx, ev.ChatID, Profile(p, m.stations.Len()), nil)
		return err
	case !errors.Is(err, participant.ErrNotFound):
		return m.unavailable(ctx, ev, "start", err)
	}

	// A fresh start supersedes whatever the user left half done.
	m.abandon(ctx, ev.UserID)

	ref, err := m.msg.SendText(ctx, ev.ChatID, textWelcome, roleKeyboard())
	if err != nil {
		return err
	}
	m.conv.SetLastPrompt(ev.UserID, ref)
	m.transition(ctx, ev, "role_menu", conversation.StepNone)
	return nil
}

// Choose handles a button press on the message ref.
func (m *Machine) Choose(ctx context.Context, ev Event, ref messaging.MessageRef, action Action) error {
	switch action {
	case ActionMentor:
		return m.chooseRole(ctx, ev, ref, textAskPasscode, conversation.StepPasscode)
	case ActionLearner:
		return m.chooseRole(ctx, ev, ref, textAskName, conversation.StepName)
	case ActionBack:
		return m.back(ctx, ev, ref)
	case ActionRefresh:
		return m.refresh(ctx, ev, ref)
	}
	return errors.New("dialogue: unknown action " + string(action))
}

func (m *Machine) chooseRole(ctx context.Context, ev Event, ref messaging.MessageRef, prompt string, step conversation.Step) error {
	if done, err := m.registered(ctx, ev, "choose_role"); done {
		return err
	}
	if err := m.msg.EditText(ctx, ref, prompt, backKeyboard()); err != nil {
		return err
	}
	m.conv.SetLastPrompt(ev.UserID, ref)
	if step == conversation.StepPasscode {
		m.conv.SetMentorAnchor(ev.UserID, ref)
	}
	m.conv.SetPending(ev.UserID, conversation.Continuation{Step: step})
	m.transition(ctx, ev, "role_chosen", step)
	return nil
}

func (m *Machine) back(ctx context.Context, ev Event, ref messaging.MessageRef) error {
	m.conv.ClearPending(ev.UserID)
	m.conv.ClearLastPrompt(ev.UserID)
	_, _ = m.conv.TakeMentorAnchor(ev.UserID)
	m.transition(ctx, ev, "back", conversation.StepNone)
	return m.msg.EditText(ctx, ref, textWelcome, roleKeyboard())
}

func (m *Machine) refresh(ctx context.Context, ev Event, ref messaging.MessageRef) error {
	p, err := m.store.FindByUserID(ctx, ev.UserID)
	switch {
	case errors.Is(err, participant.ErrNotFound):
		_, err = m.msg.SendText(ctx, ev.ChatID, textNotMentor, nil)
		return err
	case err != nil:
		return m.unavailable(ctx, ev, "refresh", err)
	case !p.IsMentor():
		_, err = m.msg.SendText(ctx, ev.ChatID, textNotMentor, nil)
		return err
	}
	text, ok := m.codeDisplay(p.Station)
	if !ok {
		_, err = m.msg.SendText(ctx, ev.ChatID, textNoCode, nil)
		return err
	}
	return m.msg.EditText(ctx, ref, text, refreshKeyboard())
}

// Submit feeds plain text to the pending step. It reports false when nothing
// is pending, leaving the text to the caller's fallback.
func (m *Machine) Submit(ctx context.Context, ev Event, text string) (bool, error) {
	cont, ok := m.conv.Pending(ev.UserID)
	if !ok {
		return false, nil
	}
	text = strings.TrimSpace(text)
	switch cont.Step {
	case conversation.StepPasscode:
		return true, m.submitPasscode(ctx, ev, text)
	case conversation.StepName:
		return true, m.submitName(ctx, ev, text)
	case conversation.StepEmail:
		return true, m.submitEmail(ctx, ev, cont.Name, text)
	}
	m.conv.ClearPending(ev.UserID)
	return false, nil
}

func (m *Machine) submitPasscode(ctx context.Context, ev Event, passcode string) error {
	station, ok := m.stations.ByPasscode(passcode)
	if !ok {
		m.transition(ctx, ev, "passcode_rejected", conversation.StepPasscode)
		if _, err := m.msg.SendText(ctx, ev.ChatID, textInvalidPasscode, nil); err != nil {
			return err
		}
		if anchor, ok := m.conv.TakeMentorAnchor(ev.UserID); ok {
			m.discard(ctx, anchor)
		}
		return nil
	}

	name := strings.TrimSpace(ev.FirstName)
	if name == "" {
		name = "Mentor"
	}
	if done, err := m.registered(ctx, ev, "register_mentor"); done {
		return err
	}
	rec := &participant.Participant{UserID: ev.UserID, Name: name, Role: participant.RoleMentor, Station: station}
	if err := m.store.Create(ctx, rec); err != nil {
		return m.saveFailed(ctx, ev, err)
	}
	m.conv.ClearPending(ev.UserID)
	m.transition(ctx, ev, "mentor_registered", conversation.StepNone,
		slog.String("station", station),
		slog.Int64("primary_key", rec.PrimaryKey),
	)

	text, ok := m.codeDisplay(station)
	if !ok {
		text = textNoCode
	}
	_, sendErr := m.msg.SendText(ctx, ev.ChatID, text, refreshKeyboard())
	m.cleanup(ctx, ev.UserID)
	return sendErr
}

func (m *Machine) submitName(ctx context.Context, ev Event, name string) error {
	if name == "" {
		_, err := m.msg.SendText(ctx, ev.ChatID, textEmptyName, nil)
		return err
	}
	ref, err := m.msg.SendText(ctx, ev.ChatID, textAskEmail(name), backKeyboard())
	if err != nil {
		return err
	}
	if prev, ok := m.conv.TakeLastPrompt(ev.UserID); ok && prev != ref {
		m.discard(ctx, prev)
	}
	m.conv.SetLastPrompt(ev.UserID, ref)
	m.conv.SetPending(ev.UserID, conversation.Continuation{Step: conversation.StepEmail, Name: name})
	m.transition(ctx, ev, "name_captured", conversation.StepEmail)
	return nil
}

func (m *Machine) submitEmail(ctx context.Context, ev Event, name, email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		_, err := m.msg.SendText(ctx, ev.ChatID, textInvalidEmail, nil)
		return err
	}
	if done, err := m.registered(ctx, ev, "register_learner"); done {
		return err
	}
	rec := &participant.Participant{UserID: ev.UserID, Name: name, Role: participant.RoleLearner, Email: email}
	if err := m.store.Create(ctx, rec); err != nil {
		return m.saveFailed(ctx, ev, err)
	}
	m.conv.ClearPending(ev.UserID)
	m.transition(ctx, ev, "learner_registered", conversation.StepNone,
		slog.Int64("primary_key", rec.PrimaryKey),
	)
	_, sendErr := m.msg.SendText(ctx, ev.ChatID, textLearnerDone, nil)
	m.cleanup(ctx, ev.UserID)
	return sendErr
}

// ClearData deletes the user's newest record and forgets their dialogue state.
func (m *Machine) ClearData(ctx context.Context, ev Event) error {
	m.abandon(ctx, ev.UserID)
	p, err := m.store.FindByUserID(ctx, ev.UserID)
	switch {
	case errors.Is(err, participant.ErrNotFound):
		_, err = m.msg.SendText(ctx, ev.ChatID, textNothingToClear, nil)
		return err
	case err != nil:
		return m.unavailable(ctx, ev, "cleardata", err)
	}
	if err := m.store.Delete(ctx, p.ID); err != nil && !errors.Is(err, participant.ErrNotFound) {
		return m.unavailable(ctx, ev, "cleardata", err)
	}
	m.transition(ctx, ev, "cleared", conversation.StepNone,
		slog.String("role", string(p.Role)),
		slog.Int64("primary_key", p.PrimaryKey),
	)
	_, err = m.msg.SendText(ctx, ev.ChatID, textCleared, nil)
	return err
}

// registered reports whether the user was answered because a record already
// exists (the profile is shown and any half-finished flow dropped) or because
// the store could not tell. A role is only changed through /cleardata.
func (m *Machine) registered(ctx context.Context, ev Event, op string) (bool, error) {
	p, err := m.store.FindByUserID(ctx, ev.UserID)
	switch {
	case errors.Is(err, participant.ErrNotFound):
		return false, nil
	case err != nil:
		return true, m.unavailable(ctx, ev, op, err)
	}
	m.abandon(ctx, ev.UserID)
	m.transition(ctx, ev, "already_registered", conversation.StepNone,
		slog.String("op", op),
		slog.String("role", string(p.Role)),
		slog.Int64("primary_key", p.PrimaryKey),
	)
	_, err = m.msg.SendText(ctx, ev.ChatID, Profile(p, m.stations.Len()), nil)
	return true, err
}

// codeDisplay renders the current code of station with its time left.
func (m *Machine) codeDisplay(station string) (string, bool) {
	code, ok := m.codes.Code(station)
	if !ok {
		return "", false
	}
	return textCodeDisplay(station, code, m.codes.TimeRemaining()), true
}

// cleanup removes the tracked prompt and mentor anchor after a finished flow.
func (m *Machine) cleanup(ctx context.Context, userID int64) {
	last, hasLast := m.conv.TakeLastPrompt(userID)
	anchor, hasAnchor := m.conv.TakeMentorAnchor(userID)
	if hasLast {
		m.discard(ctx, last)
	}
	if hasAnchor && (!hasLast || anchor != last) {
		m.discard(ctx, anchor)
	}
}

// abandon drops any half-finished flow, deleting its stale prompt.
func (m *Machine) abandon(ctx context.Context, userID int64) {
	m.cleanup(ctx, userID)
	m.conv.Reset(userID)
}

// discard deletes a bot message; failures (already gone, too old) are ignored.
func (m *Machine) discard(ctx context.Context, ref messaging.MessageRef) {
	if err := m.msg.Delete(ctx, ref); err != nil {
		logger.LogEvent(ctx, m.log, slog.LevelDebug, "dialogue.discard",
			slog.String("status", "skip"),
			slog.Int("message_id", ref.MessageID),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Machine) unavailable(ctx context.Context, ev Event, op string, cause error) error {
	logger.LogEvent(ctx, m.log, slog.LevelWarn, "dialogue.store",
		slog.String("op", op),
		slog.String("status", "fail"),
		slog.String("err", cause.Error()),
	)
	_, err := m.msg.SendText(ctx, ev.ChatID, textUnavailable, nil)
	return err
}

func (m *Machine) saveFailed(ctx context.Context, ev Event, cause error) error {
	logger.LogEvent(ctx, m.log, slog.LevelError, "dialogue.save",
		slog.String("status", "fail"),
		slog.String("err", cause.Error()),
	)
	_, err := m.msg.SendText(ctx, ev.ChatID, textSaveFailed, nil)
	return err
}

func (m *Machine) transition(ctx context.Context, ev Event, what string, next conversation.Step, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("transition", what),
		slog.String("next", next.String()),
		slog.Int64("user_id", ev.UserID),
	}
	logger.LogEvent(ctx, m.log, slog.LevelInfo, "dialogue.step", append(base, attrs...)...)
}

func roleKeyboard() messaging.Keyboard {
	return messaging.Row(
		messaging.Button{Text: buttonMentor, Action: string(ActionMentor)},
		messaging.Button{Text: buttonLearner, Action: string(ActionLearner)},
	)
}

func backKeyboard() messaging.Keyboard {
	return messaging.Row(messaging.Button{Text: buttonBack, Action: string(ActionBack)})
}

func refreshKeyboard() messaging.Keyboard {
	return messaging.Row(messaging.Button{Text: buttonRefresh, Action: string(ActionRefresh)})
}
