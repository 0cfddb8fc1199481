package codes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var testStations = []string{"python", "web", "mobile", "blockchain", "ai", "resume", "iot", "pcb", "3d", "gdsc"}

func newTestClock(t *testing.T, opts Options) *Clock {
	t.Helper()
	if opts.Stations == nil {
		opts.Stations = testStations
	}
	if opts.Interval == 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.Length == 0 {
		opts.Length = 6
	}
	c, err := NewClock(opts)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	return c
}

func sequence(codes ...string) Generator {
	var mu sync.Mutex
	i := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestRotateProducesDistinctCodes(t *testing.T) {
	c := newTestClock(t, Options{})
	for trial := 0; trial < 200; trial++ {
		snap, err := c.Rotate()
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		seen := map[string]string{}
		for st, code := range snap.Codes {
			if len(code) != 6 {
				t.Fatalf("code %q has length %d", code, len(code))
			}
			for _, r := range code {
				if !strings.ContainsRune(Alphabet, r) {
					t.Fatalf("code %q outside alphabet", code)
				}
			}
			if other, dup := seen[code]; dup {
				t.Fatalf("stations %s and %s share code %q", st, other, code)
			}
			seen[code] = st
		}
		if len(snap.Codes) != len(testStations) {
			t.Fatalf("expected %d codes, got %d", len(testStations), len(snap.Codes))
		}
	}
}

func TestResolveOnlyCurrentEpoch(t *testing.T) {
	c := newTestClock(t, Options{Stations: []string{"python", "web"}})
	if _, ok := c.Resolve("anything"); ok {
		t.Fatalf("resolve before rotation should fail")
	}
	if _, err := c.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	old, _ := c.Code("python")
	if st, ok := c.Resolve(old); !ok || st != "python" {
		t.Fatalf("Resolve(%q) = %q, %v", old, st, ok)
	}
	if _, ok := c.Resolve(strings.ToLower(old) + "x"); ok {
		t.Fatalf("unexpected match for altered code")
	}

	for {
		if _, err := c.Rotate(); err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if cur, _ := c.Code("python"); cur != old {
			if cur2, _ := c.Code("web"); cur2 != old {
				break
			}
		}
	}
	if _, ok := c.Resolve(old); ok {
		t.Fatalf("code from previous epoch still resolves")
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	c := newTestClock(t, Options{Stations: []string{"python"}, Generate: sequence("AbCdEf")})
	if _, err := c.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, ok := c.Resolve("abcdef"); ok {
		t.Fatalf("lowercased code should not resolve")
	}
	if _, ok := c.Resolve("AbCdEf"); !ok {
		t.Fatalf("exact code should resolve")
	}
}

func TestRotateRetriesCollisions(t *testing.T) {
	c := newTestClock(t, Options{
		Stations: []string{"python", "web"},
		Generate: sequence("AAAAAA", "AAAAAA", "BBBBBB", "CCCCCC"),
	})
	snap, err := c.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if snap.Codes["python"] != "BBBBBB" || snap.Codes["web"] != "CCCCCC" {
		t.Fatalf("unexpected codes %v", snap.Codes)
	}
}

func TestRotateFailureKeepsPreviousEpoch(t *testing.T) {
	fail := false
	gen := sequence("AAAAAA", "BBBBBB")
	c := newTestClock(t, Options{
		Stations: []string{"python", "web"},
		Generate: func(n int) (string, error) {
			if fail {
				return "", errors.New("entropy exhausted")
			}
			return gen(n)
		},
	})
	first, err := c.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	fail = true
	if _, err := c.Rotate(); err == nil {
		t.Fatalf("expected rotation error")
	}
	cur, err := c.Current()
	if err != nil || cur.Epoch != first.Epoch {
		t.Fatalf("epoch changed after failure: %v %v", cur, err)
	}
	if st, ok := c.Resolve("AAAAAA"); !ok || st != "python" {
		t.Fatalf("previous codes lost: %q %v", st, ok)
	}
}

func TestRotateGivesUpOnPersistentCollision(t *testing.T) {
	c := newTestClock(t, Options{Stations: []string{"python", "web"}, Generate: sequence("SAME00")})
	if _, err := c.Rotate(); !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}
	if _, err := c.Current(); !errors.Is(err, ErrNotRotated) {
		t.Fatalf("expected no epoch, got %v", err)
	}
}

func TestTimeRemaining(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClock(t, Options{Interval: 120 * time.Second, Now: func() time.Time { return now }})
	if got := c.TimeRemaining(); got != 0 {
		t.Fatalf("before rotation TimeRemaining = %v", got)
	}
	if _, err := c.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	now = now.Add(45 * time.Second)
	if got := c.TimeRemaining(); got != 75*time.Second {
		t.Fatalf("TimeRemaining = %v", got)
	}
	now = now.Add(10 * time.Minute)
	if got := c.TimeRemaining(); got != 0 {
		t.Fatalf("TimeRemaining should floor at zero, got %v", got)
	}
}

func TestEpochIncrements(t *testing.T) {
	c := newTestClock(t, Options{})
	for want := uint64(1); want <= 3; want++ {
		snap, err := c.Rotate()
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if snap.Epoch != want {
			t.Fatalf("epoch = %d, want %d", snap.Epoch, want)
		}
	}
}

func TestReadersNeverSeeMixedEpochs(t *testing.T) {
	c := newTestClock(t, Options{Stations: []string{"python", "web"}})
	if _, err := c.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = c.Rotate()
			}
		}
	}()
	for i := 0; i < 2000; i++ {
		snap, err := c.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		for st, code := range snap.Codes {
			if got := snap.byCode[code]; got != st {
				t.Fatalf("snapshot inconsistent: %s -> %s -> %s", st, code, got)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestNewClockValidates(t *testing.T) {
	if _, err := NewClock(Options{Interval: time.Second, Length: 6}); err == nil {
		t.Fatalf("expected error without stations")
	}
	if _, err := NewClock(Options{Stations: []string{"a"}, Length: 6}); err == nil {
		t.Fatalf("expected error without interval")
	}
	if _, err := NewClock(Options{Stations: []string{"a"}, Interval: time.Second}); err == nil {
		t.Fatalf("expected error without length")
	}
}

func TestSchedulerStartRotatesImmediately(t *testing.T) {
	c := newTestClock(t, Options{Interval: time.Hour})
	s := NewScheduler(c)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())
	snap, err := c.Current()
	if err != nil || snap.Epoch != 1 {
		t.Fatalf("expected first epoch after start, got %v %v", snap, err)
	}
}

func TestSchedulerStartFailsWhenFirstRotationFails(t *testing.T) {
	c := newTestClock(t, Options{Generate: func(int) (string, error) { return "", errors.New("boom") }})
	s := NewScheduler(c)
	if err := s.Start(context.Background()); err == nil {
		s.Stop(context.Background())
		t.Fatalf("expected start error")
	}
}
