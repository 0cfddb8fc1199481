// Package app wires the station bot together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/learnstations/stationbot/core/bootstrap"
	corecmd "github.com/learnstations/stationbot/core/cmd"
	coredatabase "github.com/learnstations/stationbot/core/database"
	"github.com/learnstations/stationbot/core/logger"
	tg "github.com/learnstations/stationbot/core/telegram"
	"github.com/learnstations/stationbot/internal/bot"
	"github.com/learnstations/stationbot/internal/certificate"
	"github.com/learnstations/stationbot/internal/codes"
	"github.com/learnstations/stationbot/internal/config"
	"github.com/learnstations/stationbot/internal/conversation"
	"github.com/learnstations/stationbot/internal/dialogue"
	"github.com/learnstations/stationbot/internal/health"
	"github.com/learnstations/stationbot/internal/keylock"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/redeem"
	"github.com/learnstations/stationbot/internal/stations"
)

// App holds the assembled components of a running station bot.
type App struct {
	cfg       *config.Config
	infra     *bootstrap.Result
	clock     *codes.Clock
	scheduler *codes.Scheduler
	outbox    *bot.Outbox
	health    *health.Server
	registry  *tg.Registry
	routes    []tg.Route
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap initializes logging and storage, then builds the App.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App on already initialized infrastructure. infra.DB may be
// nil only for the memory driver.
func New(ctx context.Context, cfg *config.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if infra == nil {
		infra = &bootstrap.Result{}
	}

	list := make([]stations.Station, 0, len(cfg.Stations.List))
	for _, st := range cfg.Stations.List {
		list = append(list, stations.Station{Name: st.Name, Passcode: st.Passcode})
	}
	set, err := stations.New(list)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	clock, err := codes.NewClock(codes.Options{
		Stations: set.Names(),
		Interval: cfg.Stations.RotationInterval(),
		Length:   cfg.Stations.CodeLength,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	store, err := recordStore(cfg.Database, infra.DB)
	if err != nil {
		return nil, err
	}

	outbox := bot.NewOutbox()
	machine, err := dialogue.New(dialogue.Options{
		Stations:      set,
		Codes:         clock,
		Store:         store,
		Conversations: conversation.NewStore(),
		Messenger:     outbox,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	issuer, err := certificates(ctx, cfg.Certificates, outbox)
	if err != nil {
		return nil, err
	}

	validator, err := redeem.New(redeem.Options{
		Codes:     clock,
		Store:     store,
		Total:     set.Len(),
		Locks:     keylock.New(),
		Certifier: issuer,
		Announce:  bot.Announce(outbox),
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	reg := tg.NewRegistry()
	handlers, err := bot.NewHandlers(bot.Options{
		Machine:   machine,
		Validator: validator,
		Issuer:    issuer,
		Clock:     clock,
		Store:     store,
		Messenger: outbox,
		Registry:  reg,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := bot.Register(reg, handlers); err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		infra:     infra,
		clock:     clock,
		scheduler: codes.NewScheduler(clock),
		outbox:    outbox,
		registry:  reg,
		routes:    bot.Routes(reg, machine, bot.Fallbacks{}, cfg.Telegram.IsAdmin),
	}
	if cfg.Health.Listen != "" {
		a.health = health.New(cfg.Health.Listen, clock)
	}
	return a, nil
}

func recordStore(db coredatabase.Config, conn *sqlx.DB) (participant.Store, error) {
	var next participant.Store
	switch db.Driver {
	case coredatabase.DriverMemory:
		next = participant.NewMemoryStore()
	default:
		if conn == nil {
			return nil, fmt.Errorf("app: driver %q needs a database connection", db.Driver)
		}
		next = participant.NewSQLStore(conn)
	}
	return participant.NewRetrying(next, participant.RetryOptions{Timeout: db.RequestTimeout}), nil
}

func certificates(ctx context.Context, cfg config.CertificatesConfig, outbox *bot.Outbox) (*certificate.Issuer, error) {
	renderer, err := certificate.NewRenderer(certificate.RendererOptions{TemplatePath: cfg.TemplatePath})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	var archive certificate.Archiver
	if cfg.ArchiveEnabled() {
		a, err := certificate.NewArchive(ctx, certificate.ArchiveOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		archive = a
	}
	return certificate.NewIssuer(renderer, archive, outbox)
}

// TelegramRunOptions exposes the routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	return tg.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg.CoreConfig(), keylock.New(), nil),
		Routes:      a.routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.outbox.Attach(rt.Bot)
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			a.scheduler.Stop(ctx)
			return err
		}
	}
	logger.Component("app").Info("stations ready",
		slog.String("event", "app.start"),
		slog.Int("stations", len(a.cfg.Stations.List)),
		slog.Duration("rotation", a.clock.Interval()),
	)
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	a.scheduler.Stop(ctx)
	var errs []error
	if a.health != nil {
		errs = append(errs, a.health.Stop(ctx))
	}
	a.outbox.Attach(nil)
	errs = append(errs, a.infra.Close())
	return errors.Join(errs...)
}
