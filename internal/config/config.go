// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	HTTPTimeout         time.Duration
	UserAgent           string
	ConcurrentRequests  int
	CampaignHTTPProxy   string
	ExchangeRatesAPIKey string
	FixerAPIKey         string
	EnableCampaigns     bool
	PollInterval        time.Duration
	ListenAddr          string
	DBPath              string
	Debug               bool
}

// HasBackupRates reports whether the backup exchange-rate provider can be used.
func (c *Config) HasBackupRates() bool {
	return c.FixerAPIKey != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Defaults: CAMPAIGNWATCH_HTTP_TIMEOUT (20s),
// CAMPAIGNWATCH_USER_AGENT (CampaignWatch/1.0), CAMPAIGNWATCH_CONCURRENT_REQUESTS (5),
// CAMPAIGNWATCH_ENABLE_CAMPAIGNS (true), CAMPAIGNWATCH_POLL_INTERVAL (5m),
// CAMPAIGNWATCH_LISTEN_ADDR (127.0.0.1:8080), CAMPAIGNWATCH_DB_PATH (campaignwatch.db),
// CAMPAIGNWATCH_DEBUG (false).
func Load() (*Config, error) {
	httpTimeout, err := durationEnv("CAMPAIGNWATCH_HTTP_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := durationEnv("CAMPAIGNWATCH_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	concurrency := 5
	if v, ok := os.LookupEnv("CAMPAIGNWATCH_CONCURRENT_REQUESTS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("CAMPAIGNWATCH_CONCURRENT_REQUESTS must be a positive integer, got %q", v)
		}
		concurrency = n
	}

	enableCampaigns, err := boolEnv("CAMPAIGNWATCH_ENABLE_CAMPAIGNS", true)
	if err != nil {
		return nil, err
	}

	debug, err := boolEnv("CAMPAIGNWATCH_DEBUG", false)
	if err != nil {
		return nil, err
	}

	proxy := strings.TrimSpace(os.Getenv("CAMPAIGNWATCH_CAMPAIGN_HTTP_PROXY"))
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("CAMPAIGNWATCH_CAMPAIGN_HTTP_PROXY has invalid URL %q", proxy)
		}
	}

	userAgent := "CampaignWatch/1.0"
	if v, ok := os.LookupEnv("CAMPAIGNWATCH_USER_AGENT"); ok && v != "" {
		userAgent = v
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("CAMPAIGNWATCH_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "campaignwatch.db"
	if v, ok := os.LookupEnv("CAMPAIGNWATCH_DB_PATH"); ok {
		dbPath = v
	}

	return &Config{
		HTTPTimeout:         httpTimeout,
		UserAgent:           userAgent,
		ConcurrentRequests:  concurrency,
		CampaignHTTPProxy:   proxy,
		ExchangeRatesAPIKey: os.Getenv("CAMPAIGNWATCH_EXCHANGE_RATES_API_KEY"),
		FixerAPIKey:         os.Getenv("CAMPAIGNWATCH_FIXER_API_KEY"),
		EnableCampaigns:     enableCampaigns,
		PollInterval:        pollInterval,
		ListenAddr:          listenAddr,
		DBPath:              dbPath,
		Debug:               debug,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}
