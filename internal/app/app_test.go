package app

import (
	"context"
	"testing"

	coredatabase "github.com/learnstations/stationbot/core/database"
	tg "github.com/learnstations/stationbot/core/telegram"
	"github.com/learnstations/stationbot/internal/config"
)

func testConfig(driver string) *config.Config {
	cfg := &config.Config{
		Database: coredatabase.Config{Driver: driver},
		Stations: config.StationsConfig{
			RotationSeconds: 120,
			CodeLength:      6,
			List: []config.Station{
				{Name: "python", Passcode: "PASS_PY"},
				{Name: "web", Passcode: "PASS_WEB"},
			},
		},
	}
	cfg.Telegram.AdminIDs = []int64{42}
	return cfg
}

func TestNewMemoryLifecycle(t *testing.T) {
	a, err := New(context.Background(), testConfig(coredatabase.DriverMemory), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("run options: %v", err)
	}

	endpoints := make(map[any]bool, len(opts.Routes))
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, cmd := range []string{"/start", "/visited", "/download", "/cleardata", "/help", "/codes"} {
		if !endpoints[cmd] {
			t.Fatalf("no route for %s", cmd)
		}
	}
	if len(opts.Middlewares) == 0 {
		t.Fatalf("expected middlewares")
	}

	if _, err := a.clock.Current(); err == nil {
		t.Fatalf("codes should not exist before start")
	}
	if err := opts.OnStart(context.Background(), tg.Runtime{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := a.clock.Current()
	if err != nil || snap.Epoch != 1 || len(snap.Codes) != 2 {
		t.Fatalf("unexpected snapshot after start: %+v %v", snap, err)
	}
	if err := opts.OnStop(context.Background(), tg.Runtime{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestNewRequiresConnectionForSQLDrivers(t *testing.T) {
	if _, err := New(context.Background(), testConfig(coredatabase.DriverSQLite), nil); err == nil {
		t.Fatalf("expected error without a database connection")
	}
}

func TestNewRejectsEmptyStations(t *testing.T) {
	cfg := testConfig(coredatabase.DriverMemory)
	cfg.Stations.List = nil
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for empty station list")
	}
}
