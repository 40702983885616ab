// Package config loads the engine configuration from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the full server configuration.
type Config struct {
	// Port is the HTTP listen port for the operational API.
	Port int `yaml:"port"`

	// DBPath is the SQLite database path. ":memory:" is accepted.
	DBPath string `yaml:"db_path"`

	// LogLevel is a zerolog level name (trace..error).
	LogLevel string `yaml:"log_level"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig controls when batch passes run.
type SchedulerConfig struct {
	// CronSpec is a robfig/cron expression evaluated in Timezone.
	// Default runs daily at the cutover hour.
	CronSpec string `yaml:"cron_spec"`

	// Timezone is the reference timezone for the cutover boundary.
	Timezone string `yaml:"timezone"`

	// CutoverHour is the settlement boundary: the current day's due
	// occurrences post only after this hour, reference time.
	CutoverHour int `yaml:"cutover_hour"`

	// Enabled turns the embedded cron trigger on or off. When off, runs
	// happen only via the API or the run subcommand.
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Port:     8080,
		DBPath:   "recurrence.db",
		LogLevel: "info",
		Scheduler: SchedulerConfig{
			CronSpec:    "0 4 * * *",
			Timezone:    "Asia/Kolkata",
			CutoverHour: 4,
			Enabled:     true,
		},
	}
}

// Load reads and validates a YAML config file, filling gaps from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and that the timezone resolves.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Scheduler.CutoverHour < 0 || c.Scheduler.CutoverHour > 23 {
		return fmt.Errorf("cutover_hour %d out of range", c.Scheduler.CutoverHour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured reference timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}
