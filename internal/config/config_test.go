package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	coredatabase "github.com/learnstations/stationbot/core/database"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_ids: [42]
logging:
  level: debug
database:
  driver: sqlite
  path: /tmp/stations.db
stations:
  list:
    - name: Python
      passcode: L3ARN5TAT10N_PYTHON
    - name: web
      passcode: L3ARN5TAT10N_WEB
certificates:
  endpoint: localhost:9000
health:
  listen: ":8081"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || !cfg.Telegram.IsAdmin(42) {
		t.Fatalf("core section not decoded: %+v", cfg.Telegram)
	}
	if cfg.Stations.RotationInterval() != 120*time.Second || cfg.Stations.CodeLength != 6 {
		t.Fatalf("station defaults = %+v", cfg.Stations)
	}
	if cfg.Stations.List[0].Name != "python" {
		t.Fatalf("station names are lowercased, got %q", cfg.Stations.List[0].Name)
	}
	if cfg.Database.Driver != coredatabase.DriverSQLite || cfg.Database.RequestTimeout != 5*time.Second {
		t.Fatalf("database defaults = %+v", cfg.Database)
	}
	if cfg.Certificates.Bucket != "certificates" {
		t.Fatalf("bucket default = %q", cfg.Certificates.Bucket)
	}
	if cfg.Health.Listen != ":8081" {
		t.Fatalf("health listen = %q", cfg.Health.Listen)
	}
	if cfg.CoreConfig() != &cfg.Config {
		t.Fatalf("CoreConfig must point at the embedded config")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("STATIONS_ROTATION_SECONDS", "30")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "999:env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Stations.RotationSeconds != 30 {
		t.Fatalf("rotation = %d", cfg.Stations.RotationSeconds)
	}
}

func TestNormalizeStationsRejectsDuplicates(t *testing.T) {
	cases := map[string]StationsConfig{
		"empty":         {},
		"dup name":      {List: []Station{{"a", "1"}, {"A ", "2"}}},
		"dup passcode":  {List: []Station{{"a", "1"}, {"b", "1"}}},
		"blank":         {List: []Station{{"", "1"}}},
		"short code":    {CodeLength: 2, List: []Station{{"a", "1"}}},
		"negative tick": {RotationSeconds: -1, List: []Station{{"a", "1"}}},
	}
	for name, sc := range cases {
		if err := normalizeStations(&sc); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalizeDatabase(t *testing.T) {
	db := coredatabase.Config{Driver: "Postgres", Host: "db", Name: "bot"}
	if err := normalizeDatabase(&db); err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if db.Port != "5432" || db.SSLMode != "disable" || db.Driver != coredatabase.DriverPostgres {
		t.Fatalf("postgres defaults = %+v", db)
	}
	if err := normalizeDatabase(&coredatabase.Config{Driver: "sqlite"}); err == nil {
		t.Fatalf("sqlite without path must fail")
	}
	if err := normalizeDatabase(&coredatabase.Config{Driver: "mysql"}); err == nil {
		t.Fatalf("unknown driver must fail")
	}
	mem := coredatabase.Config{Driver: "memory"}
	if err := normalizeDatabase(&mem); err != nil {
		t.Fatalf("memory: %v", err)
	}
}
