package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pxwatch/internal/logging"
)

const startDateLayout = "2006-01-02"

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMissingCredential indicates the Telegram token or chat id is absent.
	ErrMissingCredential = errors.New("missing telegram credential")
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Message   MessageConfig   `mapstructure:"message"`
	Monthly   MonthlyConfig   `mapstructure:"monthly"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TracingConfig controls the OTLP exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the delivery journal.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the polling clock.
type SchedulerConfig struct {
	Timezone        string        `mapstructure:"timezone"`
	RegularSpec     string        `mapstructure:"regular_spec"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AssetConfig describes one tracked asset page.
type AssetConfig struct {
	Symbol string `mapstructure:"symbol"`
	URL    string `mapstructure:"url"`
	Places int32  `mapstructure:"places"`
}

// SourceConfig covers the price listing website.
type SourceConfig struct {
	HomepageURL    string        `mapstructure:"homepage_url"`
	Primary        AssetConfig   `mapstructure:"primary"`
	Secondary      AssetConfig   `mapstructure:"secondary"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MessageConfig shapes the composed text.
type MessageConfig struct {
	Locale     string        `mapstructure:"locale"`
	References []decimal.Decimal `mapstructure:"references"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
}

// MonthlyConfig defines the anniversary trigger window.
type MonthlyConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Day        int           `mapstructure:"day"`
	Hour       int           `mapstructure:"hour"`
	Minute     int           `mapstructure:"minute"`
	RetryEvery time.Duration `mapstructure:"retry_every"`
	StartDate  string        `mapstructure:"start_date"`
	ImageURL   string        `mapstructure:"image_url"`
}

// TelegramConfig describes the delivery channel.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   int64         `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PXWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindAliases keeps the historical variable names working next to the prefixed ones.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"telegram.bot_token": {"PXWATCH_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"telegram.chat_id":   {"PXWATCH_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"database.dsn":       {"PXWATCH_DATABASE_DSN", "DATABASE_URL"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pxwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "pxwatch")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.timezone", "Africa/Cairo")
	v.SetDefault("scheduler.regular_spec", "15 * * * * *")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70787761))

	v.SetDefault("source.homepage_url", "https://coinmarketcap.com/")
	v.SetDefault("source.primary.symbol", "PX")
	v.SetDefault("source.primary.url", "https://coinmarketcap.com/currencies/not-pixel/")
	v.SetDefault("source.primary.places", 4)
	v.SetDefault("source.secondary.symbol", "TON")
	v.SetDefault("source.secondary.url", "https://coinmarketcap.com/currencies/toncoin/")
	v.SetDefault("source.secondary.places", 2)
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.retry_attempts", 3)
	v.SetDefault("source.retry_delay", "2s")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (compatible; pxwatch/1.0)")

	v.SetDefault("message.locale", "ar")
	v.SetDefault("message.references", "0.3")
	v.SetDefault("message.heartbeat", "1h")

	v.SetDefault("monthly.enabled", true)
	v.SetDefault("monthly.day", 22)
	v.SetDefault("monthly.hour", 14)
	v.SetDefault("monthly.minute", 0)
	v.SetDefault("monthly.retry_every", "15s")
	v.SetDefault("monthly.start_date", "2024-04-22")
	v.SetDefault("monthly.image_url", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", int64(0))
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			decimalSliceHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var decimalSliceType = reflect.TypeOf([]decimal.Decimal{})

// decimalSliceHook accepts "0.3,0.2" from the environment as well as YAML lists.
func decimalSliceHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != decimalSliceType {
			return data, nil
		}

		var items []any
		switch v := data.(type) {
		case string:
			items = append(items, v)
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		case []float64:
			for _, f := range v {
				items = append(items, f)
			}
		case []any:
			items = v
		case []decimal.Decimal:
			return v, nil
		default:
			return data, nil
		}

		out := make([]decimal.Decimal, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				for _, part := range strings.Split(v, ",") {
					part = strings.TrimSpace(part)
					if part == "" {
						continue
					}
					d, err := decimal.NewFromString(part)
					if err != nil {
						return nil, invalid("message.references: %q is not a number", part)
					}
					out = append(out, d)
				}
			case float64:
				out = append(out, decimal.NewFromFloat(v))
			case int:
				out = append(out, decimal.NewFromInt(int64(v)))
			case int64:
				out = append(out, decimal.NewFromInt(v))
			case decimal.Decimal:
				out = append(out, v)
			default:
				return nil, invalid("message.references: unsupported value %v", item)
			}
		}
		return out, nil
	}
}

// Validate performs sanity checks that do not depend on credentials.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.NewParser(cronFields).Parse(c.Scheduler.RegularSpec); err != nil {
		return invalid("scheduler.regular_spec %q: %v", c.Scheduler.RegularSpec, err)
	}
	if c.Source.Primary.URL == "" || c.Source.Secondary.URL == "" {
		return invalid("source.primary.url and source.secondary.url must be set")
	}
	if c.Source.Primary.Places < 0 || c.Source.Secondary.Places < 0 {
		return invalid("source places cannot be negative")
	}
	if c.Source.RetryAttempts < 1 {
		return invalid("source.retry_attempts must be at least 1")
	}
	if c.Source.RetryDelay < 0 {
		return invalid("source.retry_delay cannot be negative")
	}
	if c.Source.RequestTimeout <= 0 {
		return invalid("source.request_timeout must be greater than zero")
	}
	if len(c.Message.References) == 0 {
		return invalid("message.references must contain at least one price")
	}
	for _, ref := range c.Message.References {
		if !ref.IsPositive() {
			return invalid("message.references must be positive, got %v", ref)
		}
	}
	if c.Message.Heartbeat < 0 {
		return invalid("message.heartbeat cannot be negative")
	}
	if c.Monthly.Day < 1 || c.Monthly.Day > 31 {
		return invalid("monthly.day must be within 1..31")
	}
	if c.Monthly.Hour < 0 || c.Monthly.Hour > 23 {
		return invalid("monthly.hour must be within 0..23")
	}
	if c.Monthly.Minute < 0 || c.Monthly.Minute > 59 {
		return invalid("monthly.minute must be within 0..59")
	}
	if c.Monthly.RetryEvery < time.Second || c.Monthly.RetryEvery > time.Minute {
		return invalid("monthly.retry_every must be within 1s..60s")
	}
	if _, err := c.AnniversaryStart(); err != nil {
		return err
	}
	if c.Export.MaxDataPoints <= 0 {
		return invalid("export.max_data_points must be greater than zero")
	}
	return nil
}

// RequireTelegram is the fail-fast check run before anything is delivered.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("%w: telegram.bot_token (TELEGRAM_BOT_TOKEN) is required", ErrMissingCredential)
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram.chat_id (TELEGRAM_CHAT_ID) is required", ErrMissingCredential)
	}
	return nil
}

// Location resolves the civil time zone all triggers are defined in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, invalid("scheduler.timezone %q: %v", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// AnniversaryStart parses monthly.start_date as a civil date in the configured zone.
func (c *Config) AnniversaryStart() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	start, err := time.ParseInLocation(startDateLayout, c.Monthly.StartDate, loc)
	if err != nil {
		return time.Time{}, invalid("monthly.start_date %q: %v", c.Monthly.StartDate, err)
	}
	return start, nil
}

// MonthlySpec renders the trigger window as a seconds-resolution cron spec
// that wakes every RetryEvery inside the configured minute.
func (c *Config) MonthlySpec() string {
	step := int(c.Monthly.RetryEvery / time.Second)
	seconds := "0"
	if step > 0 && step < 60 {
		seconds = fmt.Sprintf("*/%d", step)
	}
	return fmt.Sprintf("CRON_TZ=%s %s %d %d %d * *", c.Scheduler.Timezone, seconds, c.Monthly.Minute, c.Monthly.Hour, c.Monthly.Day)
}

// RegularSpec prefixes the regular schedule with the configured zone unless it already carries one.
func (c *Config) RegularSpec() string {
	spec := strings.TrimSpace(c.Scheduler.RegularSpec)
	if strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=") || strings.HasPrefix(spec, "@") {
		return spec
	}
	return fmt.Sprintf("CRON_TZ=%s %s", c.Scheduler.Timezone, spec)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// cronFields mirrors the scheduler parser: optional seconds, standard five fields, descriptors.
const cronFields = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
