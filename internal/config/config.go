// Package config loads and persists calsync configuration.
//
// Configuration lives in ~/.config/calsync/config.yaml and can be
// overridden through CALSYNC_* environment variables. Per-calendar sync
// cursors (last_sync) are written back to the same file after each cycle.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const appName = "calsync"

// Defaults for the sync window and scheduling.
const (
	DefaultPastDays     = 30
	DefaultFutureDays   = 90
	DefaultSyncInterval = 5 * time.Minute
)

// CalendarConfig describes one remote calendar (or task list) to keep in
// sync.
type CalendarConfig struct {
	// ID is the provider calendar or task list id.
	ID string `mapstructure:"id"`

	// Name is a human-readable label for logs and the CLI.
	Name string `mapstructure:"name"`

	// Domain selects the metadata namespace and the provider service:
	// "events" or "tasks".
	Domain string `mapstructure:"domain"`

	// Enabled calendars take part in full sync cycles.
	Enabled bool `mapstructure:"enabled"`

	// LastSync is the RFC3339 cursor of the last completed cycle.
	// Empty means never synced.
	LastSync string `mapstructure:"last_sync"`
}

// LastSyncTime parses the sync cursor. The zero time means never synced.
func (c *CalendarConfig) LastSyncTime() time.Time {
	if c.LastSync == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, c.LastSync)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Config is the full calsync configuration.
type Config struct {
	// StoreRoot is the local document store directory.
	StoreRoot string `mapstructure:"store_root"`

	// MetadataPath is the sqlite metadata database file.
	MetadataPath string `mapstructure:"metadata_path"`

	// PastDays and FutureDays bound the sync window around now.
	PastDays   int `mapstructure:"past_days"`
	FutureDays int `mapstructure:"future_days"`

	// SyncInterval is the daemon's cycle period.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardPort is the websocket dashboard port (0 = disabled).
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile, when set, routes daemon logs through a rotating file.
	LogFile string `mapstructure:"log_file"`

	// Calendars lists the remote calendars to synchronize.
	Calendars []CalendarConfig `mapstructure:"calendars"`

	v    *viper.Viper
	path string
}

// Dir returns the calsync config directory (~/.config/calsync).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// Load reads configuration from the given file, or from the default
// location when path is empty. A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CALSYNC")
	v.AutomaticEnv()

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}
	v.SetConfigFile(path)

	v.SetDefault("store_root", filepath.Join(dir, "records"))
	v.SetDefault("metadata_path", filepath.Join(dir, "metadata.db"))
	v.SetDefault("past_days", DefaultPastDays)
	v.SetDefault("future_days", DefaultFutureDays)
	v.SetDefault("sync_interval", DefaultSyncInterval)
	v.SetDefault("dashboard_port", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for i := range cfg.Calendars {
		if cfg.Calendars[i].Domain == "" {
			cfg.Calendars[i].Domain = "events"
		}
	}
	return cfg, nil
}

// Path returns the backing file location.
func (c *Config) Path() string { return c.path }

// Calendar returns the calendar config with the given id, or nil.
func (c *Config) Calendar(id string) *CalendarConfig {
	for i := range c.Calendars {
		if c.Calendars[i].ID == id {
			return &c.Calendars[i]
		}
	}
	return nil
}

// EnabledCalendars returns the calendars taking part in full sync.
func (c *Config) EnabledCalendars() []*CalendarConfig {
	var out []*CalendarConfig
	for i := range c.Calendars {
		if c.Calendars[i].Enabled {
			out = append(out, &c.Calendars[i])
		}
	}
	return out
}

// SetLastSync advances a calendar's sync cursor in memory. Call Save to
// persist it.
func (c *Config) SetLastSync(calendarID string, at time.Time) {
	if cal := c.Calendar(calendarID); cal != nil {
		cal.LastSync = at.Format(time.RFC3339)
	}
}

// Save writes the configuration (including advanced sync cursors) back to
// the backing file.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.v.Set("store_root", c.StoreRoot)
	c.v.Set("metadata_path", c.MetadataPath)
	c.v.Set("past_days", c.PastDays)
	c.v.Set("future_days", c.FutureDays)
	c.v.Set("sync_interval", c.SyncInterval.String())
	c.v.Set("dashboard_port", c.DashboardPort)
	c.v.Set("log_file", c.LogFile)

	cals := make([]map[string]interface{}, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		cals = append(cals, map[string]interface{}{
			"id":        cal.ID,
			"name":      cal.Name,
			"domain":    cal.Domain,
			"enabled":   cal.Enabled,
			"last_sync": cal.LastSync,
		})
	}
	c.v.Set("calendars", cals)

	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", c.path, err)
	}
	return nil
}
