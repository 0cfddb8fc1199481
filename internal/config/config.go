// Package config loads the station bot configuration on top of the core bot settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/learnstations/stationbot/core/config"
	coredatabase "github.com/learnstations/stationbot/core/database"
)

const (
	defaultRotationSeconds = 120
	defaultCodeLength      = 6
	defaultRequestTimeout  = 5 * time.Second
	defaultMaxConnections  = 5
	defaultBucket          = "certificates"
)

// Station binds a station name to the static passcode its mentors register with.
type Station struct {
	Name     string `yaml:"name"`
	Passcode string `yaml:"passcode"`
}

// StationsConfig lists the stations and how their visitor codes rotate.
type StationsConfig struct {
	RotationSeconds int       `yaml:"rotation_seconds" envconfig:"STATIONS_ROTATION_SECONDS"`
	CodeLength      int       `yaml:"code_length" envconfig:"STATIONS_CODE_LENGTH"`
	List            []Station `yaml:"list" ignored:"true"`
}

// RotationInterval returns the configured rotation period.
func (s StationsConfig) RotationInterval() time.Duration {
	return time.Duration(s.RotationSeconds) * time.Second
}

// CertificatesConfig configures certificate rendering and the optional object storage archive.
type CertificatesConfig struct {
	TemplatePath string `yaml:"template_path" envconfig:"CERT_TEMPLATE_PATH"`
	Endpoint     string `yaml:"endpoint" envconfig:"CERT_S3_ENDPOINT"`
	AccessKey    string `yaml:"access_key" envconfig:"CERT_S3_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" envconfig:"CERT_S3_SECRET_KEY"`
	Bucket       string `yaml:"bucket" envconfig:"CERT_S3_BUCKET"`
	Region       string `yaml:"region" envconfig:"CERT_S3_REGION"`
	UseSSL       bool   `yaml:"use_ssl" envconfig:"CERT_S3_USE_SSL"`
}

// ArchiveEnabled reports whether rendered certificates should be uploaded.
func (c CertificatesConfig) ArchiveEnabled() bool {
	return c.Endpoint != ""
}

// HealthConfig configures the ops HTTP listener. An empty Listen disables it.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config is the full station bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database     coredatabase.Config `yaml:"database"`
	Stations     StationsConfig      `yaml:"stations"`
	Certificates CertificatesConfig  `yaml:"certificates"`
	Health       HealthConfig        `yaml:"health"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, overlays the environment, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := normalizeDatabase(&c.Database); err != nil {
		return err
	}
	if err := normalizeStations(&c.Stations); err != nil {
		return err
	}
	if c.Certificates.ArchiveEnabled() && c.Certificates.Bucket == "" {
		c.Certificates.Bucket = defaultBucket
	}
	return nil
}

func normalizeDatabase(db *coredatabase.Config) error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	if db.Driver == "" {
		db.Driver = coredatabase.DriverPostgres
	}
	switch db.Driver {
	case coredatabase.DriverPostgres:
		if db.Host == "" || db.Name == "" {
			return errors.New("database.host and database.name are required for postgres")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	case coredatabase.DriverSQLite:
		if db.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case coredatabase.DriverMemory:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite, memory", db.Driver)
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = defaultMaxConnections
	}
	if db.RequestTimeout <= 0 {
		db.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func normalizeStations(s *StationsConfig) error {
	if s.RotationSeconds == 0 {
		s.RotationSeconds = defaultRotationSeconds
	}
	if s.RotationSeconds < 0 {
		return errors.New("stations.rotation_seconds must be positive")
	}
	if s.CodeLength == 0 {
		s.CodeLength = defaultCodeLength
	}
	if s.CodeLength < 4 || s.CodeLength > 32 {
		return fmt.Errorf("stations.code_length must be within 4..32, got %d", s.CodeLength)
	}
	if len(s.List) == 0 {
		return errors.New("stations.list must contain at least one station")
	}

	names := make(map[string]struct{}, len(s.List))
	passcodes := make(map[string]struct{}, len(s.List))
	for i := range s.List {
		st := &s.List[i]
		st.Name = strings.ToLower(strings.TrimSpace(st.Name))
		st.Passcode = strings.TrimSpace(st.Passcode)
		if st.Name == "" || st.Passcode == "" {
			return fmt.Errorf("stations.list[%d]: name and passcode are required", i)
		}
		if _, dup := names[st.Name]; dup {
			return fmt.Errorf("stations.list[%d]: duplicate station %q", i, st.Name)
		}
		if _, dup := passcodes[st.Passcode]; dup {
			return fmt.Errorf("stations.list[%d]: passcode of %q is shared with another station", i, st.Name)
		}
		names[st.Name] = struct{}{}
		passcodes[st.Passcode] = struct{}{}
	}
	return nil
}
