// Package codes owns the rotating per-station visitor codes.
package codes

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Alphabet is the character set visitor codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const maxRotateAttempts = 5

var (
	// ErrCollision means two stations drew the same code on every attempt.
	ErrCollision = errors.New("codes: station codes collided")
	// ErrNotRotated is returned by readers before the first successful rotation.
	ErrNotRotated = errors.New("codes: no code epoch yet")
)

// Generator draws one random code of length n.
type Generator func(n int) (string, error)

// Options configures a Clock.
type Options struct {
	Stations []string
	Interval time.Duration
	Length   int
	// Generate defaults to a crypto/rand generator over Alphabet.
	Generate Generator
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is one immutable code epoch.
type Snapshot struct {
	Epoch     uint64
	StartedAt time.Time
	Codes     map[string]string // station -> code

	byCode map[string]string
}

// Clock holds the current code epoch. Readers always see a complete epoch:
// rotation builds a new snapshot and swaps it in under the write lock.
type Clock struct {
	stations []string
	interval time.Duration
	length   int
	generate Generator
	now      func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
}

// NewClock returns a Clock with no epoch; call Rotate before serving reads.
func NewClock(opts Options) (*Clock, error) {
	if len(opts.Stations) == 0 {
		return nil, errors.New("codes: no stations")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("codes: interval must be positive")
	}
	if opts.Length <= 0 {
		return nil, errors.New("codes: length must be positive")
	}
	c := &Clock{
		stations: append([]string(nil), opts.Stations...),
		interval: opts.Interval,
		length:   opts.Length,
		generate: opts.Generate,
		now:      opts.Now,
	}
	if c.generate == nil {
		c.generate = RandomCode
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Rotate draws a fresh code for every station and starts a new epoch.
// On failure the previous epoch stays current.
func (c *Clock) Rotate() (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < maxRotateAttempts; attempt++ {
		next, err := c.draw()
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrCollision) {
				continue
			}
			return nil, err
		}

		c.mu.Lock()
		if c.snap != nil {
			next.Epoch = c.snap.Epoch + 1
		} else {
			next.Epoch = 1
		}
		next.StartedAt = c.now()
		c.snap = next
		c.mu.Unlock()
		return next, nil
	}
	return nil, lastErr
}

func (c *Clock) draw() (*Snapshot, error) {
	snap := &Snapshot{
		Codes:  make(map[string]string, len(c.stations)),
		byCode: make(map[string]string, len(c.stations)),
	}
	for _, st := range c.stations {
		code, err := c.generate(c.length)
		if err != nil {
			return nil, fmt.Errorf("codes: generate for %s: %w", st, err)
		}
		if _, taken := snap.byCode[code]; taken {
			return nil, ErrCollision
		}
		snap.Codes[st] = code
		snap.byCode[code] = st
	}
	return snap, nil
}

// Code returns the current code of station.
func (c *Clock) Code(station string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return "", false
	}
	code, ok := c.snap.Codes[station]
	return code, ok
}

// Resolve maps a submitted code to its station. Only the current epoch matches
// and the comparison is exact (codes are case-sensitive).
func (c *Clock) Resolve(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || code == "" {
		return "", false
	}
	st, ok := c.snap.byCode[code]
	return st, ok
}

// TimeRemaining is the time until the next scheduled rotation, floored at zero.
func (c *Clock) TimeRemaining() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0
	}
	left := c.interval - c.now().Sub(c.snap.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Current returns the current epoch.
func (c *Clock) Current() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, ErrNotRotated
	}
	return c.snap, nil
}

// Interval is the configured rotation period.
func (c *Clock) Interval() time.Duration { return c.interval }

// RandomCode draws n characters uniformly from Alphabet using crypto/rand.
func RandomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}
