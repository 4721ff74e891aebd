package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("GATEWAY_API_KEY", "gw-key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Minute, cfg.Billing.PollInterval)
	assert.Equal(t, 5, cfg.Billing.MaxConcurrentJobs)
	assert.Equal(t, 3, cfg.Billing.MaxRetries)
	assert.Equal(t,
		[]time.Duration{24 * time.Hour, 72 * time.Hour, 168 * time.Hour},
		cfg.Billing.RetryDelays)
	assert.Equal(t, "0.10", cfg.Billing.OverageTaxRate.String())
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("GATEWAY_API_KEY", "gw-key")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestParseRetryDelays(t *testing.T) {
	delays, err := parseRetryDelays("24, 72,168")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{24 * time.Hour, 72 * time.Hour, 168 * time.Hour}, delays)
}

func TestParseRetryDelays_RejectsDecreasing(t *testing.T) {
	_, err := parseRetryDelays("72,24")
	require.Error(t, err)
}

func TestParseRetryDelays_RejectsGarbage(t *testing.T) {
	_, err := parseRetryDelays("24,soon")
	require.Error(t, err)
}
