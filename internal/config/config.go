package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the process configuration. Keys are flat snake_case, matching the
// YAML file and the TEETIME_* environment variables.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// booking run
	Timezone            string `koanf:"timezone"`
	TargetWeekday       string `koanf:"target_weekday"`
	IncludeToday        bool   `koanf:"include_today"`
	OpensAt             string `koanf:"opens_at"`
	WaitForOpen         bool   `koanf:"wait_for_open"`
	TargetCountOverride int    `koanf:"target_count_override"`
	ParallelSessions    int    `koanf:"parallel_sessions"`

	// portal
	PortalURL      string        `koanf:"portal_url"`
	PortalUsername string        `koanf:"portal_username"`
	PortalPassword string        `koanf:"portal_password"`
	PortalHeadless bool          `koanf:"portal_headless"`
	PageTimeout    time.Duration `koanf:"page_timeout"`
	ElementTimeout time.Duration `koanf:"element_timeout"`
	SubmitTimeout  time.Duration `koanf:"submit_timeout"`
	GuestSearch    string        `koanf:"guest_search"`

	// preference sources
	PreferencesFile       string `koanf:"preferences_file"`
	SheetsSpreadsheetID   string `koanf:"sheets_spreadsheet_id"`
	SheetsCredentialsJSON string `koanf:"sheets_credentials_json"`

	// sinks
	DatabaseURL    string `koanf:"database_url"`
	KafkaBrokers   string `koanf:"kafka_brokers"`
	KafkaTopic     string `koanf:"kafka_topic"`
	PushgatewayURL string `koanf:"pushgateway_url"`

	// server
	ListenAddr     string        `koanf:"listen_addr"`
	CookieHashKey  string        `koanf:"cookie_hash_key"`
	CookieBlockKey string        `koanf:"cookie_block_key"`
	SchedulerPoll  time.Duration `koanf:"scheduler_poll"`
	TriggerWeekday string        `koanf:"trigger_weekday"`
	TriggerTime    string        `koanf:"trigger_time"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "console",
		Timezone:         "America/New_York",
		TargetWeekday:    "saturday",
		IncludeToday:     true,
		OpensAt:          "06:00",
		WaitForOpen:      true,
		ParallelSessions: 1,
		PortalURL:        "https://cypresslakecc.clubhouseonline-e3.com/Member-Central",
		PortalHeadless:   true,
		PageTimeout:      30 * time.Second,
		ElementTimeout:   10 * time.Second,
		SubmitTimeout:    20 * time.Second,
		GuestSearch:      "Guest, TBD",
		KafkaTopic:       "teetime.runs",
		ListenAddr:       ":8080",
		SchedulerPoll:    30 * time.Second,
		TriggerWeekday:   "saturday",
		TriggerTime:      "05:55",
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := booking.ParseWeekday(c.TargetWeekday); err != nil {
		errs = append(errs, fmt.Errorf("target_weekday: %w", err))
	}
	if _, err := booking.ParseWeekday(c.TriggerWeekday); err != nil {
		errs = append(errs, fmt.Errorf("trigger_weekday: %w", err))
	}
	if c.OpensAt != "" {
		if _, err := booking.ParseWallClock(c.OpensAt); err != nil {
			errs = append(errs, fmt.Errorf("opens_at: %w", err))
		}
	}
	if _, err := booking.ParseWallClock(c.TriggerTime); err != nil {
		errs = append(errs, fmt.Errorf("trigger_time: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"page_timeout":    c.PageTimeout,
		"element_timeout": c.ElementTimeout,
		"submit_timeout":  c.SubmitTimeout,
		"scheduler_poll":  c.SchedulerPoll,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.TargetCountOverride < 0 {
		errs = append(errs, errors.New("target_count_override must not be negative"))
	}
	if c.ParallelSessions < 1 {
		errs = append(errs, errors.New("parallel_sessions must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Location assumes Validate has passed.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) Weekday() time.Weekday {
	wd, _ := booking.ParseWeekday(c.TargetWeekday)
	return wd
}

func (c *Config) Trigger() (time.Weekday, booking.Clock) {
	wd, _ := booking.ParseWeekday(c.TriggerWeekday)
	at, _ := booking.ParseWallClock(c.TriggerTime)
	return wd, at
}

// OpensAtClock is nil when waiting for the tee sheet is disabled.
func (c *Config) OpensAtClock() *booking.Clock {
	if !c.WaitForOpen || c.OpensAt == "" {
		return nil
	}
	at, err := booking.ParseWallClock(c.OpensAt)
	if err != nil {
		return nil
	}
	return &at
}

func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// CookieKeys decodes the session cookie keys. Required by the server only.
func (c *Config) CookieKeys() (hash, block []byte, err error) {
	if c.CookieHashKey == "" || c.CookieBlockKey == "" {
		return nil, nil, fmt.Errorf("%w: cookie_hash_key and cookie_block_key are required (32 and 16/24/32 bytes base64)", ErrInvalidConfig)
	}
	hash, err = decodeB64(c.CookieHashKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cookie_hash_key: %v", ErrInvalidConfig, err)
	}
	block, err = decodeB64(c.CookieBlockKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cookie_block_key: %v", ErrInvalidConfig, err)
	}
	return hash, block, nil
}

func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		// allow pointing to file path for k8s secret mounts
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
