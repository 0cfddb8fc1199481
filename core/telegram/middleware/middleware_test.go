package middleware

import (
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/learnstations/stationbot/core/telegram/helpers"
)

func newTestContext(userID int64, msg bool) tele.Context {
	upd := tele.Update{ID: int(userID)}
	sender := &tele.User{ID: userID}
	if msg {
		upd.Message = &tele.Message{Sender: sender, Chat: &tele.Chat{ID: userID}, Text: "hi"}
	} else {
		upd.Callback = &tele.Callback{Sender: sender, Data: "\frole_mentor|"}
	}
	return tele.NewContext(nil, upd)
}

func TestRateLimitDropsBurstAndHonoursExclusions(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(newTestContext(1, true))
	_ = h(newTestContext(1, true))
	if calls != 1 || limited != 1 {
		t.Fatalf("calls=%d limited=%d", calls, limited)
	}

	_ = h(newTestContext(1, false))
	if calls != 2 {
		t.Fatalf("callbacks are excluded, calls=%d", calls)
	}

	clock = clock.Add(2 * time.Second)
	_ = h(newTestContext(1, true))
	if calls != 3 {
		t.Fatalf("interval elapsed, calls=%d", calls)
	}
}

type mapLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *mapLocker) Lock(key int64) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func TestSerializeMiddlewareRunsOneAtATimePerUser(t *testing.T) {
	mw := SerializeMiddleware(&mapLocker{locks: map[int64]*sync.Mutex{}})
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	h := mw(func(tele.Context) error {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h(newTestContext(42, true))
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("handlers overlapped for one user: %d", maxSeen)
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin:  func(id int64) bool { return id == 7 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(newTestContext(7, true))
	_ = h(newTestContext(8, true))
	if calls != 1 || rejected != 1 {
		t.Fatalf("calls=%d rejected=%d", calls, rejected)
	}
}

func TestRecoverMiddlewareTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newTestContext(1, true)); err == nil {
		t.Fatalf("expected error from recovered panic")
	}
}

func TestMetricsCountersReachContext(t *testing.T) {
	var seen *Counters
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		seen = CountersFromContext(tghelpers.BuildContext(c))
		seen.Track(true)
		seen.Track(false)
		return nil
	})
	c := newTestContext(3, true)
	_ = h(c)
	if seen == nil {
		t.Fatalf("counters not propagated to context")
	}
	msgs, kb := GetCounters(c)
	if msgs != 2 || !kb {
		t.Fatalf("msgs=%d kb=%v", msgs, kb)
	}
}

func TestCommandName(t *testing.T) {
	if name, _, ok := commandName("/visited ABC"); !ok || name != "/visited" {
		t.Fatalf("commandName = %q %v", name, ok)
	}
	if _, _, ok := commandName("hello"); ok {
		t.Fatalf("plain text is not a command")
	}
}
