package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/learnstations/stationbot/core/config"
	coretelegram "github.com/learnstations/stationbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{ opts coretelegram.RunOptions }

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestRunWiresLifecycleHooks(t *testing.T) {
	t.Setenv("STATIONBOT_TEST_CONFIG", "config.yaml")

	var order []string
	err := Run(Options{
		ConfigEnvVar: "STATIONBOT_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			if path != "config.yaml" {
				t.Fatalf("path = %q", path)
			}
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { order = append(order, "start"); return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { order = append(order, "stop"); return nil },
			}}, nil
		},
		ShutdownLogger: func() error { order = append(order, "logger"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"start", "stop", "logger"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("STATIONBOT_TEST_CONFIG", "")
	err := Run(Options{
		ConfigEnvVar: "STATIONBOT_TEST_CONFIG",
		LoadConfig:   func(string) (ConfigCarrier, error) { return nil, nil },
		Bootstrap:    func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	if err == nil {
		t.Fatalf("expected error without a config path")
	}
}

func TestRunPropagatesBootstrapError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		ConfigEnvVar:      "STATIONBOT_TEST_CONFIG_UNSET",
		LoadConfig:        func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:         func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, boom },
		ShutdownLogger:    func() error { return nil },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}
