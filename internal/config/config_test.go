package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every CAMPAIGNWATCH_ env var that Load() reads.
var allConfigKeys = []string{
	"CAMPAIGNWATCH_HTTP_TIMEOUT",
	"CAMPAIGNWATCH_USER_AGENT",
	"CAMPAIGNWATCH_CONCURRENT_REQUESTS",
	"CAMPAIGNWATCH_CAMPAIGN_HTTP_PROXY",
	"CAMPAIGNWATCH_EXCHANGE_RATES_API_KEY",
	"CAMPAIGNWATCH_FIXER_API_KEY",
	"CAMPAIGNWATCH_ENABLE_CAMPAIGNS",
	"CAMPAIGNWATCH_POLL_INTERVAL",
	"CAMPAIGNWATCH_LISTEN_ADDR",
	"CAMPAIGNWATCH_DB_PATH",
	"CAMPAIGNWATCH_DEBUG",
}

// isolateConfigEnv saves and unsets all CAMPAIGNWATCH_ env vars so tests don't
// inherit values from the host environment. t.Cleanup restores original values.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("CAMPAIGNWATCH_HTTP_TIMEOUT", "45s")
	t.Setenv("CAMPAIGNWATCH_USER_AGENT", "Archiver/2.0")
	t.Setenv("CAMPAIGNWATCH_CONCURRENT_REQUESTS", "8")
	t.Setenv("CAMPAIGNWATCH_CAMPAIGN_HTTP_PROXY", "http://proxy.internal:3128")
	t.Setenv("CAMPAIGNWATCH_EXCHANGE_RATES_API_KEY", "er-key")
	t.Setenv("CAMPAIGNWATCH_FIXER_API_KEY", "fx-key")
	t.Setenv("CAMPAIGNWATCH_ENABLE_CAMPAIGNS", "false")
	t.Setenv("CAMPAIGNWATCH_POLL_INTERVAL", "10m")
	t.Setenv("CAMPAIGNWATCH_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("CAMPAIGNWATCH_DB_PATH", "/tmp/test.db")
	t.Setenv("CAMPAIGNWATCH_DEBUG", "1")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "Archiver/2.0", cfg.UserAgent)
	assert.Equal(t, 8, cfg.ConcurrentRequests)
	assert.Equal(t, "http://proxy.internal:3128", cfg.CampaignHTTPProxy)
	assert.Equal(t, "er-key", cfg.ExchangeRatesAPIKey)
	assert.Equal(t, "fx-key", cfg.FixerAPIKey)
	assert.True(t, cfg.HasBackupRates())
	assert.False(t, cfg.EnableCampaigns)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.True(t, cfg.Debug)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "CampaignWatch/1.0", cfg.UserAgent)
	assert.Equal(t, 5, cfg.ConcurrentRequests)
	assert.Empty(t, cfg.CampaignHTTPProxy)
	assert.Empty(t, cfg.ExchangeRatesAPIKey)
	assert.False(t, cfg.HasBackupRates())
	assert.True(t, cfg.EnableCampaigns)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "campaignwatch.db", cfg.DBPath)
	assert.False(t, cfg.Debug)
}

func TestLoad_EmptyUserAgentKeepsDefault(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("CAMPAIGNWATCH_USER_AGENT", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "CampaignWatch/1.0", cfg.UserAgent)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "poll interval not a duration", key: "CAMPAIGNWATCH_POLL_INTERVAL", value: "not-a-duration"},
		{name: "negative poll interval", key: "CAMPAIGNWATCH_POLL_INTERVAL", value: "-5m"},
		{name: "http timeout not a duration", key: "CAMPAIGNWATCH_HTTP_TIMEOUT", value: "soon"},
		{name: "zero concurrency", key: "CAMPAIGNWATCH_CONCURRENT_REQUESTS", value: "0"},
		{name: "concurrency not a number", key: "CAMPAIGNWATCH_CONCURRENT_REQUESTS", value: "many"},
		{name: "enable flag not a bool", key: "CAMPAIGNWATCH_ENABLE_CAMPAIGNS", value: "sometimes"},
		{name: "debug flag not a bool", key: "CAMPAIGNWATCH_DEBUG", value: "verbose"},
		{name: "proxy without scheme", key: "CAMPAIGNWATCH_CAMPAIGN_HTTP_PROXY", value: "proxy.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
