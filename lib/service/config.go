package service

import "time"

type Config struct {
	// Relay endpoints the pool dials; the daemon stays functional as long
	// as at least one of them is reachable.
	RelayUris []string `envconfig:"RELAY_URIS" default:"wss://relay.damus.io,wss://nos.lol,wss://relay.snort.social"`
	// Hex or nsec secret key. When empty an identity is generated on first
	// start and kept in the local store.
	SecretKey string `envconfig:"NOSTR_SECRET_KEY"`

	Vertical            string `envconfig:"VERTICAL" default:"helpouts"`
	RequestTTLSecs      int    `envconfig:"REQUEST_TTL_SECS" default:"60"`
	RefreshIntervalSecs int    `envconfig:"REFRESH_INTERVAL_SECS" default:"15"`
	ListingTTLDays      int    `envconfig:"LISTING_TTL_DAYS" default:"7"`
	CacheTTLMinutes     int    `envconfig:"CACHE_TTL_MINUTES" default:"30"`
	RecoveryTimeoutSecs int    `envconfig:"RECOVERY_TIMEOUT_SECS" default:"5"`

	DataDir     string `envconfig:"DATA_DIR" default:".cloudatlas"`
	LogFilePath string `envconfig:"LOG_FILE_PATH"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	Host             string `envconfig:"HOST" default:"localhost:3000"`
	Port             int    `envconfig:"PORT" default:"3000"`
	DefaultRateLimit int    `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	BurstRateLimit   int    `envconfig:"BURST_RATE_LIMIT" default:"5"`
	EnablePrometheus bool   `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort   int    `envconfig:"PROMETHEUS_PORT" default:"9092"`
}

func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLSecs) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSecs) * time.Second
}

func (c *Config) ListingTTL() time.Duration {
	return time.Duration(c.ListingTTLDays) * 24 * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c *Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSecs) * time.Second
}
