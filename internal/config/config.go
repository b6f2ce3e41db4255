package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	Timezone    string `mapstructure:"TIMEZONE"`

	DigestCron        string        `mapstructure:"DIGEST_CRON"`
	DigestHorizonDays int           `mapstructure:"DIGEST_HORIZON_DAYS"`
	DigestSubject     string        `mapstructure:"DIGEST_SUBJECT"`
	DigestDateFormat  string        `mapstructure:"DIGEST_DATE_FORMAT"`
	DigestSendTimeout time.Duration `mapstructure:"DIGEST_SEND_TIMEOUT"`
	DigestMaxDuration time.Duration `mapstructure:"DIGEST_MAX_DURATION"`

	SchedulerEnabled      bool          `mapstructure:"SCHEDULER_ENABLED"`
	SchedulerMisfireGrace time.Duration `mapstructure:"SCHEDULER_MISFIRE_GRACE"`
	ScheduleStore         string        `mapstructure:"SCHEDULE_STORE"`
	RedisURL              string        `mapstructure:"REDIS_URL"`

	SMTPHost          string  `mapstructure:"SMTP_HOST"`
	SMTPPort          int     `mapstructure:"SMTP_PORT"`
	SMTPUser          string  `mapstructure:"SMTP_USER"`
	SMTPPassword      string  `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom          string  `mapstructure:"SMTP_FROM"`
	SMTPFromName      string  `mapstructure:"SMTP_FROM_NAME"`
	SMTPTLS           bool    `mapstructure:"SMTP_TLS"`
	MailRatePerSecond float64 `mapstructure:"MAIL_RATE_PER_SECOND"`

	CoversBucketURL string `mapstructure:"COVERS_BUCKET_URL"`
	MaxCoverBytes   int64  `mapstructure:"MAX_COVER_BYTES"`
}

var AppConfig *Config

var defaults = map[string]any{
	"DATABASE_URL":            "",
	"JWT_SECRET":              "",
	"HTTP_ADDR":               ":8080",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"TIMEZONE":                "UTC",
	"DIGEST_CRON":             "0 9 * * MON",
	"DIGEST_HORIZON_DAYS":     7,
	"DIGEST_SUBJECT":          "Games coming out in the next 7 days",
	"DIGEST_DATE_FORMAT":      "02/01/2006",
	"DIGEST_SEND_TIMEOUT":     "30s",
	"DIGEST_MAX_DURATION":     "30m",
	"SCHEDULER_ENABLED":       true,
	"SCHEDULER_MISFIRE_GRACE": "5m",
	"SCHEDULE_STORE":          "database",
	"REDIS_URL":               "",
	"SMTP_HOST":               "",
	"SMTP_PORT":               587,
	"SMTP_USER":               "",
	"SMTP_PASSWORD":           "",
	"SMTP_FROM":               "noreply@videogames.com",
	"SMTP_FROM_NAME":          "",
	"SMTP_TLS":                true,
	"MAIL_RATE_PER_SECOND":    0,
	"COVERS_BUCKET_URL":       "file://./uploads/covers",
	"MAX_COVER_BYTES":         5 << 20,
}

// LoadConfig loads the configuration from a .env file and environment
// variables into AppConfig.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
		log.Warn().Msg(".env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	AppConfig = &cfg
	return &cfg, nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate reports every invalid setting of the API server at once.
func (c *Config) Validate() error {
	errs := c.digestErrors()
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// ValidateDigest checks only what the digest job and scheduler need.
func (c *Config) ValidateDigest() error {
	return errors.Join(c.digestErrors()...)
}

func (c *Config) digestErrors() []error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if _, err := cron.ParseStandard(c.DigestCron); err != nil {
		errs = append(errs, fmt.Errorf("DIGEST_CRON: %w", err))
	}
	if c.DigestHorizonDays < 0 {
		errs = append(errs, errors.New("DIGEST_HORIZON_DAYS must be >= 0"))
	}
	switch strings.ToLower(c.ScheduleStore) {
	case "database":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SCHEDULE_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SCHEDULE_STORE must be database or redis, got %q", c.ScheduleStore))
	}
	return errs
}
