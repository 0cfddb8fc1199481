package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/learnstations/stationbot/internal/conversation"
	"github.com/learnstations/stationbot/internal/messaging"
	"github.com/learnstations/stationbot/internal/messaging/messagingtest"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/stations"
)

type fixedCodes map[string]string

func (f fixedCodes) Code(station string) (string, bool) {
	c, ok := f[station]
	return c, ok
}

func (fixedCodes) TimeRemaining() time.Duration { return 95 * time.Second }

type downStore struct{ participant.Store }

func (downStore) FindByUserID(context.Context, int64) (participant.Participant, error) {
	return participant.Participant{}, participant.ErrUnavailable
}

type harness struct {
	m     *Machine
	rec   *messagingtest.Recorder
	store participant.Store
	conv  *conversation.Store
	ev    Event
}

func newHarness(t *testing.T, store participant.Store) *harness {
	t.Helper()
	set, err := stations.New([]stations.Station{
		{Name: "python", Passcode: "PASS_PY"},
		{Name: "web", Passcode: "PASS_WEB"},
	})
	if err != nil {
		t.Fatalf("stations: %v", err)
	}
	if store == nil {
		store = participant.NewMemoryStore()
	}
	h := &harness{
		rec:   &messagingtest.Recorder{},
		store: store,
		conv:  conversation.NewStore(),
		ev:    Event{UserID: 100, ChatID: 100, FirstName: "Grace"},
	}
	h.m, err = New(Options{
		Stations:      set,
		Codes:         fixedCodes{"python": "Xy12Ab", "web": "Qw34Er"},
		Store:         store,
		Conversations: h.conv,
		Messenger:     h.rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) start(t *testing.T) messaging.MessageRef {
	t.Helper()
	if err := h.m.Start(context.Background(), h.ev); err != nil {
		t.Fatalf("start: %v", err)
	}
	last, ok := h.rec.Last()
	if !ok || last.Text != textWelcome || len(last.Keyboard) != 1 || len(last.Keyboard[0]) != 2 {
		t.Fatalf("expected role menu, got %+v", last)
	}
	return last.Ref
}

func (h *harness) choose(t *testing.T, ref messaging.MessageRef, a Action) {
	t.Helper()
	if err := h.m.Choose(context.Background(), h.ev, ref, a); err != nil {
		t.Fatalf("choose %s: %v", a, err)
	}
}

func (h *harness) submit(t *testing.T, text string) {
	t.Helper()
	handled, err := h.m.Submit(context.Background(), h.ev, text)
	if err != nil {
		t.Fatalf("submit %q: %v", text, err)
	}
	if !handled {
		t.Fatalf("submit %q was not captured", text)
	}
}

func TestLearnerRegistration(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionLearner)
	if msg, _ := h.rec.Get(menu); msg.Text != textAskName {
		t.Fatalf("menu not edited in place: %q", msg.Text)
	}
	h.submit(t, "Ada Lovelace")
	if cont, _ := h.conv.Pending(h.ev.UserID); cont.Step != conversation.StepEmail || cont.Name != "Ada Lovelace" {
		t.Fatalf("unexpected continuation %+v", cont)
	}
	if msg, _ := h.rec.Get(menu); !msg.Deleted {
		t.Fatalf("name prompt should be deleted once the email prompt replaces it")
	}
	emailPrompt, _ := h.rec.Last()
	h.submit(t, "ada@example.com")

	p, err := h.store.FindByUserID(context.Background(), h.ev.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Role != participant.RoleLearner || p.Name != "Ada Lovelace" || p.Email != "ada@example.com" ||
		len(p.Visited) != 0 || p.VisitedCount != 0 {
		t.Fatalf("unexpected record %+v", p)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("dialogue still pending after registration")
	}
	if msg, _ := h.rec.Get(emailPrompt.Ref); !msg.Deleted {
		t.Fatalf("email prompt not cleaned up")
	}

	if err := h.m.Start(context.Background(), h.ev); err != nil {
		t.Fatalf("start: %v", err)
	}
	last, _ := h.rec.Last()
	if !strings.Contains(last.Text, "registration as a *Learner*") || !strings.Contains(last.Text, "0/2") {
		t.Fatalf("expected learner profile, got %q", last.Text)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("profile view must not create dialogue state")
	}
}

func TestLearnerInvalidEmailKeepsWaiting(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionLearner)
	h.submit(t, "Ada")
	h.submit(t, "not-an-email")
	if last, _ := h.rec.Last(); last.Text != textInvalidEmail {
		t.Fatalf("expected invalid email message, got %q", last.Text)
	}
	if cont, _ := h.conv.Pending(h.ev.UserID); cont.Step != conversation.StepEmail || cont.Name != "Ada" {
		t.Fatalf("continuation lost: %+v", cont)
	}
	h.submit(t, "ada@example.com")
	if _, err := h.store.FindByUserID(context.Background(), h.ev.UserID); err != nil {
		t.Fatalf("learner not created: %v", err)
	}
}

func TestMentorRegistration(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)
	h.submit(t, "PASS_PY")

	p, err := h.store.FindByUserID(context.Background(), h.ev.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Role != participant.RoleMentor || p.Station != "python" || p.Name != "Grace" {
		t.Fatalf("unexpected record %+v", p)
	}
	if msg, _ := h.rec.Get(menu); !msg.Deleted {
		t.Fatalf("passcode prompt not deleted")
	}
	last, _ := h.rec.Last()
	if !strings.Contains(last.Text, "`Xy12Ab`") || !strings.Contains(last.Text, "1:35") {
		t.Fatalf("unexpected code display %q", last.Text)
	}
	if len(last.Keyboard) != 1 || last.Keyboard[0][0].Action != string(ActionRefresh) {
		t.Fatalf("code display lacks refresh button")
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("dialogue still pending")
	}
}

func TestInvalidPasscodeKeepsWaitingAndDropsAnchor(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)

	h.submit(t, "WRONG")
	if last, _ := h.rec.Last(); last.Text != textInvalidPasscode {
		t.Fatalf("expected invalid passcode reply, got %q", last.Text)
	}
	if msg, _ := h.rec.Get(menu); !msg.Deleted {
		t.Fatalf("anchored prompt not deleted")
	}
	if !h.m.InProgress(h.ev.UserID) {
		t.Fatalf("passcode step should stay pending")
	}
	if _, ok := h.conv.TakeMentorAnchor(h.ev.UserID); ok {
		t.Fatalf("anchor should be cleared")
	}

	h.submit(t, "ALSO_WRONG")
	h.submit(t, "PASS_WEB")
	p, err := h.store.FindByUserID(context.Background(), h.ev.UserID)
	if err != nil || p.Station != "web" {
		t.Fatalf("retry after failures should register: %+v %v", p, err)
	}
}

func TestGoBackClearsContinuation(t *testing.T) {
	for _, role := range []Action{ActionMentor, ActionLearner} {
		t.Run(string(role), func(t *testing.T) {
			h := newHarness(t, nil)
			menu := h.start(t)
			h.choose(t, menu, role)
			h.choose(t, menu, ActionBack)

			msg, _ := h.rec.Get(menu)
			if msg.Text != textWelcome || msg.Deleted {
				t.Fatalf("back should redisplay the menu in place, got %+v", msg)
			}
			handled, err := h.m.Submit(context.Background(), h.ev, "PASS_PY")
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if handled {
				t.Fatalf("stray text captured by an abandoned step")
			}
			if _, err := h.store.FindByUserID(context.Background(), h.ev.UserID); !errors.Is(err, participant.ErrNotFound) {
				t.Fatalf("record created after go back: %v", err)
			}
		})
	}
}

func TestGoBackFromEmailStep(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionLearner)
	h.submit(t, "Ada")
	emailPrompt, _ := h.rec.Last()
	h.choose(t, emailPrompt.Ref, ActionBack)
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("email step still pending")
	}
	if msg, _ := h.rec.Get(emailPrompt.Ref); msg.Text != textWelcome {
		t.Fatalf("email prompt not turned back into the menu: %q", msg.Text)
	}
}

func TestSecondRoleChoiceOverwritesFirst(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)
	h.choose(t, menu, ActionLearner)
	if cont, _ := h.conv.Pending(h.ev.UserID); cont.Step != conversation.StepName {
		t.Fatalf("expected name step, got %v", cont.Step)
	}
}

func TestRefreshCode(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)
	h.submit(t, "PASS_PY")
	display, _ := h.rec.Last()

	h.choose(t, display.Ref, ActionRefresh)
	h.choose(t, display.Ref, ActionRefresh)
	msg, _ := h.rec.Get(display.Ref)
	if !strings.Contains(msg.Text, "Xy12Ab") {
		t.Fatalf("refresh did not render code: %q", msg.Text)
	}
	if last, _ := h.rec.Last(); last.Ref != display.Ref {
		t.Fatalf("refresh must edit in place, not send")
	}
}

func TestRefreshByLearnerIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.store.Create(context.Background(), &participant.Participant{UserID: h.ev.UserID, Name: "Ada", Role: participant.RoleLearner}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := h.rec.Put(h.ev.ChatID, "old code display", nil)
	h.choose(t, ref, ActionRefresh)
	if last, _ := h.rec.Last(); last.Text != textNotMentor {
		t.Fatalf("expected role mismatch, got %q", last.Text)
	}
}

func TestStartWithStoreOutageDoesNotEnterFlow(t *testing.T) {
	h := newHarness(t, downStore{participant.NewMemoryStore()})
	if err := h.m.Start(context.Background(), h.ev); err != nil {
		t.Fatalf("start: %v", err)
	}
	last, _ := h.rec.Last()
	if last.Text != textUnavailable || last.Keyboard != nil {
		t.Fatalf("expected unavailable notice, got %+v", last)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("outage must not start registration")
	}
}

func TestStartSupersedesPendingFlow(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)
	h.start(t)
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("new start should drop the pending passcode step")
	}
	if msg, _ := h.rec.Get(menu); !msg.Deleted {
		t.Fatalf("stale prompt should be deleted")
	}
}

func TestClearData(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.m.ClearData(ctx, h.ev); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if last, _ := h.rec.Last(); last.Text != textNothingToClear {
		t.Fatalf("unexpected reply %q", last.Text)
	}
	if err := h.store.Create(ctx, &participant.Participant{UserID: h.ev.UserID, Name: "Grace", Role: participant.RoleMentor, Station: "web"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.m.ClearData(ctx, h.ev); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := h.store.FindByUserID(ctx, h.ev.UserID); !errors.Is(err, participant.ErrNotFound) {
		t.Fatalf("record survived cleardata: %v", err)
	}
	h.start(t)
}

func (h *harness) registerLearner(t *testing.T) (menu messaging.MessageRef, p participant.Participant) {
	t.Helper()
	menu = h.start(t)
	h.choose(t, menu, ActionLearner)
	h.submit(t, "Ada Lovelace")
	h.submit(t, "ada@example.com")
	p, err := h.store.FindByUserID(context.Background(), h.ev.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return menu, p
}

func (h *harness) assertOnlyRecord(t *testing.T, want participant.Participant) {
	t.Helper()
	got, err := h.store.FindByUserID(context.Background(), h.ev.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PrimaryKey != want.PrimaryKey || got.Role != want.Role {
		t.Fatalf("record replaced: got %+v, want %+v", got, want)
	}
	if _, err := h.store.FindByPrimaryKey(context.Background(), want.PrimaryKey+1); !errors.Is(err, participant.ErrNotFound) {
		t.Fatalf("a second record was created: %v", err)
	}
}

func TestOldMenuAfterRegistrationKeepsRole(t *testing.T) {
	h := newHarness(t, nil)
	menu, learner := h.registerLearner(t)

	// The menu is gone by now; Telegram rejects the edit but the button may still be pressed.
	_ = h.m.Choose(context.Background(), h.ev, menu, ActionBack)
	if err := h.m.Choose(context.Background(), h.ev, menu, ActionMentor); err != nil {
		t.Fatalf("choose mentor: %v", err)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("a registered user must not enter the passcode step")
	}
	if last, _ := h.rec.Last(); !strings.Contains(last.Text, "registration as a *Learner*") {
		t.Fatalf("expected learner profile, got %q", last.Text)
	}
	handled, err := h.m.Submit(context.Background(), h.ev, "PASS_PY")
	if err != nil || handled {
		t.Fatalf("Submit = %v, %v", handled, err)
	}
	h.assertOnlyRecord(t, learner)
}

func TestLiveOldMenuShowsProfile(t *testing.T) {
	h := newHarness(t, nil)
	_, learner := h.registerLearner(t)
	old := h.rec.Put(h.ev.ChatID, textWelcome, roleKeyboard())

	h.choose(t, old, ActionMentor)
	if msg, _ := h.rec.Get(old); msg.Text != textWelcome {
		t.Fatalf("old menu must not turn into a passcode prompt: %q", msg.Text)
	}
	if last, _ := h.rec.Last(); !strings.Contains(last.Text, "0/2") {
		t.Fatalf("expected learner profile, got %q", last.Text)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("no step should be pending")
	}
	h.assertOnlyRecord(t, learner)
}

func TestPendingStepDoesNotCreateSecondRecord(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)

	learner := &participant.Participant{UserID: h.ev.UserID, Name: "Ada", Role: participant.RoleLearner, Email: "ada@example.com"}
	if err := h.store.Create(context.Background(), learner); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.submit(t, "PASS_PY")
	if last, _ := h.rec.Last(); !strings.Contains(last.Text, "registration as a *Learner*") {
		t.Fatalf("expected learner profile, got %q", last.Text)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("passcode step should be dropped")
	}
	if msg, _ := h.rec.Get(menu); !msg.Deleted {
		t.Fatalf("passcode prompt should be cleaned up")
	}
	h.assertOnlyRecord(t, *learner)
}

type flakyFind struct {
	participant.Store
	down bool
}

func (f *flakyFind) FindByUserID(ctx context.Context, userID int64) (participant.Participant, error) {
	if f.down {
		return participant.Participant{}, participant.ErrUnavailable
	}
	return f.Store.FindByUserID(ctx, userID)
}

func TestRoleChoiceDuringOutage(t *testing.T) {
	store := &flakyFind{Store: participant.NewMemoryStore()}
	h := newHarness(t, store)
	menu := h.start(t)
	store.down = true

	h.choose(t, menu, ActionMentor)
	if last, _ := h.rec.Last(); last.Text != textUnavailable {
		t.Fatalf("expected unavailable notice, got %q", last.Text)
	}
	if msg, _ := h.rec.Get(menu); msg.Text != textWelcome {
		t.Fatalf("menu should stay as it was: %q", msg.Text)
	}
	if h.m.InProgress(h.ev.UserID) {
		t.Fatalf("outage must not start a step")
	}

	store.down = false
	h.choose(t, menu, ActionMentor)
	h.submit(t, "PASS_WEB")
	if p, err := store.FindByUserID(context.Background(), h.ev.UserID); err != nil || p.Station != "web" {
		t.Fatalf("registration after recovery failed: %+v %v", p, err)
	}
}

func TestOldButtonsAfterClearData(t *testing.T) {
	h := newHarness(t, nil)
	menu := h.start(t)
	h.choose(t, menu, ActionMentor)
	h.submit(t, "PASS_PY")
	display, _ := h.rec.Last()

	if err := h.m.ClearData(context.Background(), h.ev); err != nil {
		t.Fatalf("clear: %v", err)
	}
	h.choose(t, display.Ref, ActionRefresh)
	if last, _ := h.rec.Last(); last.Text != textNotMentor {
		t.Fatalf("refresh after cleardata should be refused, got %q", last.Text)
	}
	if msg, _ := h.rec.Get(display.Ref); msg.Text != display.Text {
		t.Fatalf("code display re-rendered after cleardata: %q", msg.Text)
	}

	// Without a record, a new registration under another role is allowed.
	_, learner := h.registerLearner(t)
	if learner.Role != participant.RoleLearner {
		t.Fatalf("expected learner after re-registration, got %+v", learner)
	}
	h.assertOnlyRecord(t, learner)
}

func TestSubmitWithoutPendingIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	handled, err := h.m.Submit(context.Background(), h.ev, "hello")
	if err != nil || handled {
		t.Fatalf("Submit = %v, %v", handled, err)
	}
}

func TestProfileEscapesMarkdown(t *testing.T) {
	text := Profile(participant.Participant{Role: participant.RoleLearner, Name: "snake_case", Email: "a_b@example.com", Visited: []string{"web"}}, 10)
	if !strings.Contains(text, `snake\_case`) || !strings.Contains(text, "1/10") {
		t.Fatalf("unexpected profile %q", text)
	}
}
