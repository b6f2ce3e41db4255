package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/catalog")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DIGEST_SEND_TIMEOUT", "10s")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, AppConfig)

	assert.Equal(t, "postgres://localhost/catalog", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "0 9 * * MON", cfg.DigestCron)
	assert.Equal(t, 7, cfg.DigestHorizonDays)
	assert.Equal(t, 10*time.Second, cfg.DigestSendTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerMisfireGrace)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, "noreply@videogames.com", cfg.SMTPFrom)
	assert.True(t, cfg.SchedulerEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Timezone:      "Mars/Olympus",
		DigestCron:    "whenever",
		ScheduleStore: "redis",
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET", "TIMEZONE", "DIGEST_CRON", "REDIS_URL"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateDigestSkipsHTTPSettings(t *testing.T) {
	cfg := &Config{
		DatabaseURL:   "postgres://localhost/catalog",
		Timezone:      "UTC",
		DigestCron:    "0 9 * * MON",
		ScheduleStore: "database",
	}
	assert.NoError(t, cfg.ValidateDigest())

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
