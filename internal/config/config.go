package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultDBPath         = "./data/events.db"
	defaultTimezone       = "UTC"
	defaultLogLevel       = "info"
	defaultBackupSchedule = "0 3 * * *"
	defaultBackupPath     = "./data/backup.ics"
)

// BackupConfig controls the periodic ICS snapshot of the store.
type BackupConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Schedule is a standard five-field cron spec (e.g. "0 3 * * *").
	Schedule string `yaml:"schedule" json:"schedule"`

	// Path is the .ics file the snapshot is written to.
	Path string `yaml:"path" json:"path"`
}

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DBPath is the SQLite database file. ":memory:" keeps everything in
	// process and loses it on exit.
	DBPath string `yaml:"db_path" json:"db_path"`

	// Timezone is the IANA zone events are bucketed and displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	Backup BackupConfig `yaml:"backup" json:"backup"`

	// SeedScenario, if set, is loaded into an empty store on startup.
	SeedScenario string `yaml:"seed_scenario,omitempty" json:"seed_scenario,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		DBPath:      defaultDBPath,
		Timezone:    defaultTimezone,
		LogLevel:    defaultLogLevel,
		CORSOrigins: []string{"*"},
		Backup: BackupConfig{
			Enabled:  false,
			Schedule: defaultBackupSchedule,
			Path:     defaultBackupPath,
		},
	}
}

// Normalize fills in missing values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"*"}
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = defaultBackupSchedule
	}
	if c.Backup.Path == "" {
		c.Backup.Path = defaultBackupPath
	}
}

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Backup.Enabled {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			return fmt.Errorf("backup.schedule %q: %w", c.Backup.Schedule, err)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads the YAML file at path. On first run (no file) it writes the
// defaults with 0600 permissions and returns them.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable config dir is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
