package database

import (
	"net"
	"net/url"
	"time"
)

const (
	// DriverPostgres stores records in PostgreSQL through lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite stores records in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverMemory keeps records in process memory; nothing is persisted.
	DriverMemory = "memory"
)

// Config holds database connection settings.
type Config struct {
	Driver         string        `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string        `yaml:"host" envconfig:"DB_HOST"`
	Port           string        `yaml:"port" envconfig:"DB_PORT"`
	User           string        `yaml:"user" envconfig:"DB_USER"`
	Password       string        `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string        `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string        `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string        `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int           `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"DB_REQUEST_TIMEOUT"`
}

// DSN returns the database/sql data source name for the configured driver.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return "user=" + c.User + " password=" + c.Password + " host=" + c.Host +
		" port=" + c.Port + " dbname=" + c.Name + " sslmode=" + c.SSLMode
}

// MigrateURL returns the golang-migrate database URL for the configured driver.
func (c Config) MigrateURL() string {
	if c.Driver == DriverSQLite {
		return "sqlite://" + c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
