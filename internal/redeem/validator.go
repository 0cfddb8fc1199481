// Package redeem checks visitor codes and records station visits.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/internal/participant"
)

var (
	// ErrInvalidCode means the code matches no station in the current epoch.
	ErrInvalidCode = errors.New("redeem: invalid visitor code")
	// ErrNotRegistered means the user has no participant record.
	ErrNotRegistered = errors.New("redeem: not registered")
)

// Outcome classifies a visit attempt.
type Outcome int

const (
	Recorded Outcome = iota + 1
	AlreadyVisited
	NotALearner
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case AlreadyVisited:
		return "already_visited"
	case NotALearner:
		return "not_a_learner"
	default:
		return "unknown"
	}
}

// Visit is the result of RecordVisit.
type Visit struct {
	Outcome     Outcome
	Station     string
	Participant participant.Participant
	// Visited and Remaining count stations after this call.
	Visited   int
	Remaining int
	// Completed is true only on the visit that reached the last station.
	Completed bool
}

// Resolver maps a code to its station.
type Resolver interface {
	Resolve(code string) (string, bool)
}

// Certifier issues the completion certificate.
type Certifier interface {
	Certify(ctx context.Context, p participant.Participant) error
}

// Locker serializes work per user id.
type Locker interface {
	Lock(key int64) (unlock func())
}

// Options wires a Validator.
type Options struct {
	Codes Resolver
	Store participant.Store
	// Total is the number of stations a learner has to visit.
	Total int
	// Locks must not be shared with the per-user update middleware: the
	// validator runs inside it and the locks are not reentrant.
	Locks     Locker
	Certifier Certifier
	// Announce, when set, sees every recorded outcome before the certificate
	// goes out, so replies reach the chat in order.
	Announce func(ctx context.Context, v Visit)
}

// Validator turns submitted codes into recorded visits.
type Validator struct {
	codes     Resolver
	store     participant.Store
	total     int
	locks     Locker
	certifier Certifier
	announce  func(ctx context.Context, v Visit)
	log       *slog.Logger
}

// New builds a Validator.
func New(opts Options) (*Validator, error) {
	switch {
	case opts.Codes == nil:
		return nil, errors.New("redeem: code resolver required")
	case opts.Store == nil:
		return nil, errors.New("redeem: participant store required")
	case opts.Total <= 0:
		return nil, errors.New("redeem: station total must be positive")
	case opts.Locks == nil:
		return nil, errors.New("redeem: locks required")
	}
	return &Validator{
		codes:     opts.Codes,
		store:     opts.Store,
		total:     opts.Total,
		locks:     opts.Locks,
		certifier: opts.Certifier,
		announce:  opts.Announce,
		log:       logger.Redeem,
	}, nil
}

// ResolveStation returns the station whose current code is exactly code.
func (v *Validator) ResolveStation(code string) (string, error) {
	station, ok := v.codes.Resolve(code)
	if !ok {
		return "", ErrInvalidCode
	}
	return station, nil
}

// Redeem resolves code and records the visit for userID.
func (v *Validator) Redeem(ctx context.Context, userID int64, code string) (Visit, error) {
	station, err := v.ResolveStation(code)
	if err != nil {
		logger.LogEvent(ctx, v.log, slog.LevelInfo, "redeem.code",
			slog.String("status", "invalid"),
			slog.Int64("user_id", userID),
		)
		return Visit{}, err
	}
	return v.RecordVisit(ctx, userID, station)
}

// RecordVisit adds station to the learner's visited list. The read and the
// write happen under the learner's lock so concurrent visits all land.
func (v *Validator) RecordVisit(ctx context.Context, userID int64, station string) (Visit, error) {
	visit, err := v.recordLocked(ctx, userID, station)
	if err != nil {
		return visit, err
	}

	logger.LogEvent(ctx, v.log, slog.LevelInfo, "redeem.visit",
		slog.String("outcome", visit.Outcome.String()),
		slog.String("station", station),
		slog.Int64("user_id", userID),
		slog.Int("visited", visit.Visited),
		slog.Int("remaining", visit.Remaining),
	)

	if v.announce != nil {
		v.announce(ctx, visit)
	}
	if visit.Completed && v.certifier != nil {
		if cerr := v.certifier.Certify(ctx, visit.Participant); cerr != nil {
			logger.LogEvent(ctx, v.log, slog.LevelError, "redeem.certify",
				slog.String("status", "fail"),
				slog.Int64("user_id", userID),
				slog.String("err", cerr.Error()),
			)
		}
	}
	return visit, nil
}

func (v *Validator) recordLocked(ctx context.Context, userID int64, station string) (Visit, error) {
	unlock := v.locks.Lock(userID)
	defer unlock()

	p, err := v.store.FindByUserID(ctx, userID)
	if errors.Is(err, participant.ErrNotFound) {
		return Visit{}, ErrNotRegistered
	}
	if err != nil {
		return Visit{}, fmt.Errorf("load participant: %w", err)
	}

	visit := Visit{Station: station, Participant: p}
	if !p.IsLearner() {
		visit.Outcome = NotALearner
		return visit, nil
	}
	if p.HasVisited(station) {
		visit.Outcome = AlreadyVisited
		visit.Visited = len(p.Visited)
		visit.Remaining = max(v.total-visit.Visited, 0)
		return visit, nil
	}

	before := len(p.Visited)
	visited := append(append([]string(nil), p.Visited...), station)
	if err := v.store.Update(ctx, p.ID, participant.Changes{Visited: visited}); err != nil {
		return Visit{}, fmt.Errorf("save visit: %w", err)
	}
	p.Visited = visited
	p.VisitedCount = len(visited)

	visit.Participant = p
	visit.Outcome = Recorded
	visit.Visited = len(visited)
	visit.Remaining = max(v.total-visit.Visited, 0)
	visit.Completed = before < v.total && visit.Visited >= v.total
	return visit, nil
}

// Total is the number of stations needed for a certificate.
func (v *Validator) Total() int { return v.total }
