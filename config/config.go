/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults
  2. YAML file (optional, -config flag)
  3. Environment variables

ENVIRONMENT:
  LEAVE_ADDR           listen address            (default :8080)
  LEAVE_DB             SQLite path or ":memory:" (default leave.db)
  LEAVE_LOG_LEVEL      debug|info|warn|error     (default info)
  LEAVE_LOG_FORMAT     json|text                 (default json)
  LEAVE_BALANCE_FLOOR  lowest permitted available balance under hard enforcement (default 0)
  LEAVE_ENFORCEMENT    hard|soft                 (default hard)
  LEAVE_NOTIFY_QUEUE   notification buffer size  (default 256)
  LEAVE_CORS_ORIGINS   comma separated origins   (default *)

SEED:
  The YAML file may carry a seed section (employees, holidays and
  allocations) that the server loads into the store at startup. Seeding is
  idempotent: allocations use a stable ledger reference.
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/notify"
	"github.com/warp/leave-workflow/timeoff"
)

type Config struct {
	Addr    string        `yaml:"addr"`
	DBPath  string        `yaml:"db"`
	Log     LogConfig     `yaml:"log"`
	Balance BalanceConfig `yaml:"balance"`
	Notify  NotifyConfig  `yaml:"notify"`
	CORS    CORSConfig    `yaml:"cors"`
	Seed    Seed          `yaml:"seed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BalanceConfig struct {
	// Floor is the lowest available balance a hard-enforced reservation may
	// leave behind. Zero forbids overdraft; negative values permit it.
	Floor       decimal.Decimal `yaml:"floor"`
	Enforcement string          `yaml:"enforcement"`
}

type NotifyConfig struct {
	QueueSize  int    `yaml:"queue_size"`
	LinkPrefix string `yaml:"link_prefix"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Seed struct {
	Employees   []timeoff.Employee `yaml:"employees"`
	Holidays    []timeoff.Holiday  `yaml:"holidays"`
	Allocations []Allocation       `yaml:"allocations"`
}

type Allocation struct {
	EmployeeID string            `yaml:"employee_id"`
	LeaveType  timeoff.LeaveType `yaml:"leave_type"`
	Year       int               `yaml:"year"`
	Days       decimal.Decimal   `yaml:"days"`
}

func Default() Config {
	return Config{
		Addr:    ":8080",
		DBPath:  "leave.db",
		Log:     LogConfig{Level: "info", Format: "json"},
		Balance: BalanceConfig{Floor: decimal.Zero, Enforcement: "hard"},
		Notify:  NotifyConfig{QueueSize: notify.DefaultQueueSize, LinkPrefix: "/requests/"},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Addr = getEnv("LEAVE_ADDR", c.Addr)
	c.DBPath = getEnv("LEAVE_DB", c.DBPath)
	c.Log.Level = getEnv("LEAVE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LEAVE_LOG_FORMAT", c.Log.Format)
	c.Balance.Enforcement = getEnv("LEAVE_ENFORCEMENT", c.Balance.Enforcement)
	c.Notify.QueueSize = getEnvInt("LEAVE_NOTIFY_QUEUE", c.Notify.QueueSize)
	if origins := getEnv("LEAVE_CORS_ORIGINS", ""); origins != "" {
		c.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	if floor := getEnv("LEAVE_BALANCE_FLOOR", ""); floor != "" {
		d, err := decimal.NewFromString(floor)
		if err != nil {
			return fmt.Errorf("LEAVE_BALANCE_FLOOR: %w", err)
		}
		c.Balance.Floor = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// =============================================================================
// VALIDATION
// =============================================================================

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, fmt.Errorf("addr is required"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, fmt.Errorf("db is required"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.Log.Format))
	}
	if _, err := c.EnforcementMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Balance.Floor.IsPositive() {
		errs = append(errs, fmt.Errorf("balance floor must not be positive, got %s", c.Balance.Floor))
	}
	if c.Notify.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("notify queue size must be positive"))
	}
	errs = append(errs, c.Seed.validate()...)
	return errors.Join(errs...)
}

func (s Seed) validate() []error {
	var errs []error
	employees := make(map[string]bool, len(s.Employees))
	for i, e := range s.Employees {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("seed.employees[%d]: id is required", i))
		}
		if _, err := timeoff.ParseRole(string(e.Role)); err != nil {
			errs = append(errs, fmt.Errorf("seed.employees[%d]: %w", i, err))
		}
		employees[e.ID] = true
	}
	for i, h := range s.Holidays {
		if h.ID == "" || h.Date.IsZero() {
			errs = append(errs, fmt.Errorf("seed.holidays[%d]: id and date are required", i))
		}
		if !h.Type.Valid() {
			errs = append(errs, fmt.Errorf("seed.holidays[%d]: unknown type %q", i, h.Type))
		}
	}
	for i, a := range s.Allocations {
		if !employees[a.EmployeeID] {
			errs = append(errs, fmt.Errorf("seed.allocations[%d]: unknown employee %q", i, a.EmployeeID))
		}
		if !a.LeaveType.Valid() {
			errs = append(errs, fmt.Errorf("seed.allocations[%d]: unknown leave type %q", i, a.LeaveType))
		}
		if a.Year < 1 {
			errs = append(errs, fmt.Errorf("seed.allocations[%d]: year is required", i))
		}
		if a.Days.IsNegative() {
			errs = append(errs, fmt.Errorf("seed.allocations[%d]: days must not be negative", i))
		}
	}
	return errs
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func (c Config) EnforcementMode() (balance.Mode, error) {
	return balance.ParseMode(c.Balance.Enforcement)
}

// NewLogger builds the process logger described by the log section.
func (c Config) NewLogger() *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
