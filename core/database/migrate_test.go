package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/learnstations/stationbot/migrations"
)

func TestListMigrationFilesFiltersAndSorts(t *testing.T) {
	fsys := fstest.MapFS{
		"sqlite/0002_b.up.sql":   {Data: []byte("")},
		"sqlite/0001_a.up.sql":   {Data: []byte("")},
		"sqlite/0001_a.down.sql": {Data: []byte("")},
		"sqlite/nested/x.up.sql": {Data: []byte("")},
	}
	got := listMigrationFiles(fsys, "sqlite")
	if len(got) != 2 || got[0] != "0001_a.up.sql" || got[1] != "0002_b.up.sql" {
		t.Fatalf("unexpected files: %v", got)
	}
	if listMigrationFiles(fsys, "missing") != nil {
		t.Fatalf("missing dir should yield nil")
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_a.up.sql", "0002_b.up.sql", "0003_c.up.sql"}
	got := selectApplied(files, 1, 3)
	if len(got) != 2 || got[0] != "0002_b.up.sql" {
		t.Fatalf("selectApplied = %v", got)
	}
	if n := countApplied(files, 3, 3); n != 0 {
		t.Fatalf("countApplied = %d", n)
	}
	if v := parseVersion("0042_thing.up.sql"); v != 42 {
		t.Fatalf("parseVersion = %d", v)
	}
}

func TestEmbeddedMigrationsPresentForEveryDriver(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		if len(listMigrationFiles(migrations.FS, driver)) == 0 {
			t.Fatalf("no embedded migrations for %s", driver)
		}
	}
}

func TestRunMigrationsSQLite(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
	if err := RunMigrations(context.Background(), cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run is a no-op.
	if err := RunMigrations(context.Background(), cfg); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	db, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.Get(&n, db.Rebind("SELECT COUNT(*) FROM participants WHERE user_id = ?"), 1); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}
}
