package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.Equal(t, 365, cfg.Compliance.LookbackDays)
	assert.Equal(t, 366, cfg.Compliance.EligibilityDays)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.False(t, cfg.Extraction.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("SIGNING_ORIGIN", "https://sign.example.com/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("NOTIFICATION_RETRY_DELAY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://sign.example.com", cfg.Signature.Origin)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Notifications.RetryDelay)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
