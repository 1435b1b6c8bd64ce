// Package config loads and validates bot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/logging"
)

// DefaultPath is read when neither --config nor CONFIG_PATH is set.
const DefaultPath = "config/example.yaml"

// PathEnv names the environment variable holding the config path.
const PathEnv = "CONFIG_PATH"

// DefaultBaseURL is the booking back-service root.
const DefaultBaseURL = "https://booking.bbdc.sg/bbdc-back-service/api"

var monthPattern = regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)

// Config captures all bot configuration knobs loaded via Viper.
type Config struct {
	Interval    int             `mapstructure:"interval" yaml:"interval"`
	CourseType  string          `mapstructure:"course_type" yaml:"course_type"`
	QueryMonths []string        `mapstructure:"query_months" yaml:"query_months"`
	Accounts    []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Telegram    TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	API         APIConfig       `mapstructure:"api" yaml:"api"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Server      ServerConfig    `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage     StorageConfig   `mapstructure:"storage" yaml:"storage"`
	PubSub      PubSubConfig    `mapstructure:"pubsub" yaml:"pubsub"`
	Progress    ProgressConfig  `mapstructure:"progress" yaml:"progress"`
	Tracing     TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// AccountConfig is one booking account and the slots it wants.
type AccountConfig struct {
	Username       string                `mapstructure:"username" yaml:"username"`
	Password       string                `mapstructure:"password" yaml:"password"`
	ChatID         string                `mapstructure:"chat_id" yaml:"chat_id"`
	PreferredSlots []PreferredSlotConfig `mapstructure:"preferred_slots" yaml:"preferred_slots"`
}

// PreferredSlotConfig lists the sessions wanted on one day.
type PreferredSlotConfig struct {
	SlotType string `mapstructure:"slot_type" yaml:"slot_type"`
	Date     string `mapstructure:"date" yaml:"date"`
	Sessions []int  `mapstructure:"sessions" yaml:"sessions"`
}

// TelegramConfig holds the bot token and broadcast channel.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Token   string `mapstructure:"token" yaml:"token"`
	ChatID  string `mapstructure:"chat_id" yaml:"chat_id"`
}

// APIConfig configures the booking site client.
type APIConfig struct {
	BaseURL            string  `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	InsecureSkipVerify bool    `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	RateLimitRPS       float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	MaxRetries         int     `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffInitialMs   int     `mapstructure:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMs       int     `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms"`
	UserAgent          string  `mapstructure:"user_agent" yaml:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig controls the booking history store. An empty DSN keeps history in memory.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

// StorageConfig selects where raw slot listings are archived.
type StorageConfig struct {
	Backend string             `mapstructure:"backend" yaml:"backend"`
	Bucket  string             `mapstructure:"bucket" yaml:"bucket"`
	Prefix  string             `mapstructure:"prefix" yaml:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local" yaml:"local"`
}

// LocalStorageConfig configures the filesystem snapshot backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// PubSubConfig holds metadata for booking outcome fan-out.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	TopicName string `mapstructure:"topic_name" yaml:"topic_name"`
}

// ProgressConfig configures the progress event hub.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	LogEnabled     bool `mapstructure:"log_enabled" yaml:"log_enabled"`
	BufferSize     int  `mapstructure:"buffer_size" yaml:"buffer_size"`
	BatchMaxEvents int  `mapstructure:"batch_max_events" yaml:"batch_max_events"`
	BatchMaxWaitMs int  `mapstructure:"batch_max_wait_ms" yaml:"batch_max_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms" yaml:"sink_timeout_ms"`
}

// TracingConfig toggles OpenTelemetry tracing. Spans are exported to Cloud
// Trace when ProjectID is set and kept in-process otherwise.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	ProjectID   string  `mapstructure:"project_id" yaml:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// ResolvePath picks the explicit path, then CONFIG_PATH, then DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(PathEnv); env != "" {
		return env
	}
	return DefaultPath
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("BBDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", 5)
	v.SetDefault("course_type", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.insecure_skip_verify", true)
	v.SetDefault("api.rate_limit_rps", 2)
	v.SetDefault("api.rate_limit_burst", 2)
	v.SetDefault("api.max_retries", 2)
	v.SetDefault("api.backoff_initial_ms", 500)
	v.SetDefault("api.backoff_max_ms", 5000)
	v.SetDefault("api.user_agent", "bbdc-slot-bot/0.1")
	v.SetDefault("logging.development", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "booking_attempts")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.local.base_dir", "data/snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.batch_max_events", 32)
	v.SetDefault("progress.batch_max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "bbdc-slot-bot")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if strings.TrimSpace(c.CourseType) == "" {
		return fmt.Errorf("course_type must be set")
	}
	if len(c.QueryMonths) == 0 {
		return fmt.Errorf("query_months must list at least one month")
	}
	for _, month := range c.QueryMonths {
		if !monthPattern.MatchString(month) {
			return fmt.Errorf("query_months entry %q must be YYYYMM", month)
		}
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts must list at least one account")
	}
	for i, acc := range c.Accounts {
		if acc.Username == "" || acc.Password == "" {
			return fmt.Errorf("accounts[%d] needs username and password", i)
		}
		if _, err := acc.Preferred(); err != nil {
			return fmt.Errorf("accounts[%d].preferred_slots: %w", i, err)
		}
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id must be set when telegram is enabled")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	switch c.Storage.Backend {
	case "", "memory", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	return nil
}

// Preferred expands the configured days into one slot per listed session.
func (a AccountConfig) Preferred() ([]booking.Slot, error) {
	var out []booking.Slot
	for _, pref := range a.PreferredSlots {
		slotType, err := booking.ParseSlotType(pref.SlotType)
		if err != nil {
			return nil, err
		}
		day, err := booking.ParseDay(pref.Date)
		if err != nil {
			return nil, err
		}
		for _, session := range pref.Sessions {
			slot, err := booking.NewSlot(slotType, day, session)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pref.Date, err)
			}
			out = append(out, slot)
		}
	}
	return out, nil
}

// Users builds the booking users in configuration order.
func (c Config) Users() ([]*booking.User, error) {
	users := make([]*booking.User, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		preferred, err := acc.Preferred()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Username, err)
		}
		users = append(users, booking.NewUser(acc.Username, acc.Password, acc.ChatID, preferred))
	}
	return users, nil
}

// PollInterval is the sleep between ticks.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Minute
}

// APITimeout is the per-request budget for booking API calls.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Redacted returns a copy with passwords and tokens masked.
func (c Config) Redacted() Config {
	out := c
	out.Accounts = make([]AccountConfig, len(c.Accounts))
	for i, acc := range c.Accounts {
		acc.Password = logging.Redact(acc.Password)
		out.Accounts[i] = acc
	}
	out.Telegram.Token = logging.Redact(c.Telegram.Token)
	out.Database.DSN = logging.Redact(c.Database.DSN)
	return out
}
