package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/learnstations/stationbot/core/config"
	coredatabase "github.com/learnstations/stationbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryDriverSkipsDatabase(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverMemory},
		LoggerInit: noLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatalf("connect must not be called")
			return nil, nil
		},
		Migrate: func(context.Context, coredatabase.Config) error {
			t.Fatalf("migrate must not be called")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil {
		t.Fatalf("expected nil DB")
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunMigrateFailureStopsBeforeConnect(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverPostgres},
		LoggerInit: noLogger,
		Migrate:    func(context.Context, coredatabase.Config) error { return boom },
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatalf("connect must not be called")
			return nil, nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestRunRejectsUnknownDriver(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: "oracle"},
		LoggerInit: noLogger,
	})
	if err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
