package codes

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/learnstations/stationbot/core/logger"
)

// Scheduler rotates a Clock on its interval from a cron goroutine, so
// rotations never wait on message handling and vice versa.
type Scheduler struct {
	clock *Clock
	cron  *cron.Cron
	log   *slog.Logger
}

// NewScheduler wires clock to a cron runner. Panics inside a rotation are
// recovered and overlapping runs are skipped.
func NewScheduler(clock *Clock) *Scheduler {
	l := cronLogger{log: logger.Codes}
	c := cron.New(cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)), cron.WithLogger(l))
	return &Scheduler{clock: clock, cron: c, log: logger.Codes}
}

// Start performs the initial rotation and schedules the following ones.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.RotateNow(ctx); err != nil {
		return err
	}
	s.cron.Schedule(cron.Every(s.clock.Interval()), cron.FuncJob(func() {
		_ = s.RotateNow(context.Background())
	}))
	s.cron.Start()
	s.log.Info("rotation scheduled",
		slog.String("event", "codes.schedule"),
		slog.Duration("interval", s.clock.Interval()),
	)
	return nil
}

// RotateNow rotates immediately. A failed rotation keeps the previous epoch.
func (s *Scheduler) RotateNow(ctx context.Context) error {
	start := time.Now()
	snap, err := s.clock.Rotate()
	if err != nil {
		logger.LogEvent(ctx, s.log, slog.LevelError, "codes.rotate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "codes.rotate",
		slog.String("status", "ok"),
		slog.Uint64("epoch", snap.Epoch),
		slog.Int("stations", len(snap.Codes)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	if s.log.Enabled(ctx, slog.LevelDebug) {
		attrs := make([]slog.Attr, 0, len(snap.Codes)+1)
		attrs = append(attrs, slog.Uint64("epoch", snap.Epoch))
		for st, code := range snap.Codes {
			attrs = append(attrs, slog.String("code_"+st, code))
		}
		logger.LogEvent(ctx, s.log, slog.LevelDebug, "codes.current", attrs...)
	}
	return nil
}

// Stop halts scheduling and waits for a running rotation, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.log.Info("rotation stopped", slog.String("event", "codes.stop"))
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, append([]any{slog.String("event", "cron")}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{slog.String("event", "cron"), slog.String("err", err.Error())}, keysAndValues...)
	l.log.Error(msg, args...)
}
