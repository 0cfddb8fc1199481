package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/learnstations/stationbot/core/logger"
)

// RetryOptions tunes Retrying.
type RetryOptions struct {
	// Timeout bounds every call, including all retries of a read.
	Timeout time.Duration
	// Tries is the number of read attempts.
	Tries uint
	// InitialInterval is the first backoff delay between read attempts.
	InitialInterval time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Tries == 0 {
		o.Tries = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 100 * time.Millisecond
	}
	return o
}

// Retrying puts a deadline on every store call and retries reads with
// exponential backoff. Any failure other than ErrNotFound comes back wrapped
// in ErrUnavailable. Writes run once.
type Retrying struct {
	next Store
	opts RetryOptions
}

// NewRetrying wraps next.
func NewRetrying(next Store, opts RetryOptions) *Retrying {
	return &Retrying{next: next, opts: opts.withDefaults()}
}

func (r *Retrying) Create(ctx context.Context, p *Participant) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return classify(r.next.Create(ctx, p))
}

func (r *Retrying) FindByUserID(ctx context.Context, userID int64) (Participant, error) {
	return r.read(ctx, "find_by_user", func(ctx context.Context) (Participant, error) {
		return r.next.FindByUserID(ctx, userID)
	})
}

func (r *Retrying) FindByPrimaryKey(ctx context.Context, key int64) (Participant, error) {
	return r.read(ctx, "find_by_key", func(ctx context.Context) (Participant, error) {
		return r.next.FindByPrimaryKey(ctx, key)
	})
}

func (r *Retrying) Update(ctx context.Context, id string, ch Changes) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return classify(r.next.Update(ctx, id, ch))
}

func (r *Retrying) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return classify(r.next.Delete(ctx, id))
}

func (r *Retrying) read(ctx context.Context, op string, fn func(context.Context) (Participant, error)) (Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.InitialInterval

	p, err := backoff.Retry(ctx, func() (Participant, error) {
		p, err := fn(ctx)
		if errors.Is(err, ErrNotFound) {
			return Participant{}, backoff.Permanent(err)
		}
		return p, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(r.opts.Tries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "store.retry",
				slog.String("op", op),
				slog.Duration("backoff", delay),
				slog.String("err", err.Error()),
			)
		}),
	)
	return p, classify(err)
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
