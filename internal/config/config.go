package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/tarif/internal/cache"
	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/pkg/tariff/zrexpress"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Quoting
	OriginProvince               int           `envconfig:"ORIGIN_PROVINCE" default:"16"`
	ReprobeAfter                 time.Duration `envconfig:"REPROBE_AFTER" default:"0s"`
	RetryHomeOnOfficeUnavailable bool          `envconfig:"RETRY_HOME_ON_OFFICE_UNAVAILABLE" default:"false"`
	PricingPolicyFile            string        `envconfig:"PRICING_POLICY_FILE"`

	// Yalidine
	YalidineAPIID         string `envconfig:"YALIDINE_API_ID"`
	YalidineAPIToken      string `envconfig:"YALIDINE_API_TOKEN"`
	YalidineBaseURL       string `envconfig:"YALIDINE_BASE_URL" default:"https://api.yalidine.app/v1"`
	YalidineEnabled       bool   `envconfig:"YALIDINE_ENABLED" default:"true"`
	YalidineUseMock       bool   `envconfig:"YALIDINE_USE_MOCK" default:"false"`
	YalidineRatePerSecond int    `envconfig:"YALIDINE_RATE_PER_SECOND" default:"5"`
	YalidineRatePerMinute int    `envconfig:"YALIDINE_RATE_PER_MINUTE" default:"50"`

	// ZR Express
	ZRExpressToken         string `envconfig:"ZREXPRESS_TOKEN"`
	ZRExpressKey           string `envconfig:"ZREXPRESS_KEY"`
	ZRExpressBaseURL       string `envconfig:"ZREXPRESS_BASE_URL" default:"https://procolis.com/api_v1"`
	ZRExpressEnabled       bool   `envconfig:"ZREXPRESS_ENABLED" default:"true"`
	ZRExpressUseMock       bool   `envconfig:"ZREXPRESS_USE_MOCK" default:"false"`
	ZRExpressRatePerSecond int    `envconfig:"ZREXPRESS_RATE_PER_SECOND" default:"2"`
	ZRExpressRatePerMinute int    `envconfig:"ZREXPRESS_RATE_PER_MINUTE" default:"60"`

	// ZR Express publishes base prices only.
	ZRExpressOverweightThresholdKg float64 `envconfig:"ZREXPRESS_OVERWEIGHT_THRESHOLD_KG" default:"5"`
	ZRExpressOverweightRatePerKg   float64 `envconfig:"ZREXPRESS_OVERWEIGHT_RATE_PER_KG" default:"0"`
	ZRExpressCODPercentage         float64 `envconfig:"ZREXPRESS_COD_PERCENTAGE" default:"1"`
	ZRExpressCODFixed              float64 `envconfig:"ZREXPRESS_COD_FIXED" default:"0"`

	// Record store
	DatabaseURL              string `envconfig:"DATABASE_URL"`
	RecordStoreRatePerSecond int    `envconfig:"RECORDSTORE_RATE_PER_SECOND" default:"50"`
	RecordStoreRatePerMinute int    `envconfig:"RECORDSTORE_RATE_PER_MINUTE" default:"0"`

	// Caching
	CacheReferenceTTL time.Duration `envconfig:"CACHE_REFERENCE_TTL" default:"30m"`
	CacheFeesTTL      time.Duration `envconfig:"CACHE_FEES_TTL" default:"60m"`
	CacheSearchTTL    time.Duration `envconfig:"CACHE_SEARCH_TTL" default:"5m"`
	CacheSweepEvery   time.Duration `envconfig:"CACHE_SWEEP_EVERY" default:"10m"`
	CacheMaxAge       time.Duration `envconfig:"CACHE_MAX_AGE" default:"24h"`

	// Snapshot
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SnapshotTTL   time.Duration `envconfig:"SNAPSHOT_TTL" default:"168h"`

	// Inbound API throttling
	APIRatePerSecond float64 `envconfig:"API_RATE_PER_SECOND" default:"20"`
	APIBurst         int     `envconfig:"API_BURST" default:"40"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"tarif"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// TTLs returns the per-category cache lifetimes.
func (c *Config) TTLs() cache.TTLs {
	return cache.TTLs{
		Reference: c.CacheReferenceTTL,
		Fees:      c.CacheFeesTTL,
		Search:    c.CacheSearchTTL,
	}
}

// YalidineLimits returns the rate limits for Yalidine calls.
func (c *Config) YalidineLimits() ratelimit.Limits {
	return ratelimit.Limits{PerSecond: c.YalidineRatePerSecond, PerMinute: c.YalidineRatePerMinute}
}

// ZRExpressLimits returns the rate limits for ZR Express calls.
func (c *Config) ZRExpressLimits() ratelimit.Limits {
	return ratelimit.Limits{PerSecond: c.ZRExpressRatePerSecond, PerMinute: c.ZRExpressRatePerMinute}
}

// ZRExpressSurcharges returns the surcharges applied to ZR Express base prices.
func (c *Config) ZRExpressSurcharges() zrexpress.Surcharges {
	return zrexpress.Surcharges{
		OverweightThresholdKg: c.ZRExpressOverweightThresholdKg,
		OverweightRatePerKg:   c.ZRExpressOverweightRatePerKg,
		CODFeePercentage:      c.ZRExpressCODPercentage,
		CODFeeFixed:           c.ZRExpressCODFixed,
	}
}

// RecordStoreLimits returns the rate limits for record store reads.
func (c *Config) RecordStoreLimits() ratelimit.Limits {
	return ratelimit.Limits{PerSecond: c.RecordStoreRatePerSecond, PerMinute: c.RecordStoreRatePerMinute}
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Int("tarif.origin_province", c.OriginProvince),
		attribute.Bool("yalidine.enabled", c.YalidineEnabled),
		attribute.Bool("zrexpress.enabled", c.ZRExpressEnabled),
		attribute.Bool("recordstore.enabled", c.DatabaseURL != ""),
		attribute.Bool("snapshot.enabled", c.RedisAddr != ""),
	}
}
