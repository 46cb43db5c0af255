// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	Provider  ProviderConfig  `koanf:"provider"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Billing   BillingConfig   `koanf:"billing"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// JWTConfig describes how session tokens minted by the identity service are
// verified. This service never issues tokens.
type JWTConfig struct {
	PublicKeyPath string `koanf:"public_key_path"`
	Issuer        string `koanf:"issuer"`
	Audience      string `koanf:"audience"`
}

type ProviderConfig struct {
	APIKey   string        `koanf:"api_key"`
	StoreID  string        `koanf:"store_id"`
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
	TestMode bool          `koanf:"test_mode"`
}

// WebhookConfig controls the provider callback. AcceptTestEvents defaults to
// true outside production; when false, test-mode notifications are
// acknowledged without touching entitlements.
type WebhookConfig struct {
	Secret           string        `koanf:"secret"`
	MaxBodyBytes     int64         `koanf:"max_body_bytes"`
	DedupTTL         time.Duration `koanf:"dedup_ttl"`
	AcceptTestEvents bool          `koanf:"accept_test_events"`
}

type BillingConfig struct {
	StoreRetryAttempts   int           `koanf:"store_retry_attempts"`
	StoreRetryInitial    time.Duration `koanf:"store_retry_initial"`
	StoreRetryMaxElapsed time.Duration `koanf:"store_retry_max_elapsed"`
	StoreTimeout         time.Duration `koanf:"store_timeout"`
	SweepInterval        time.Duration `koanf:"sweep_interval"`
}

type KafkaConfig struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type RateLimitConfig struct {
	Requests         int           `koanf:"requests"`
	Window           time.Duration `koanf:"window"`
	Burst            int           `koanf:"burst"`
	CheckoutRequests int           `koanf:"checkout_requests"`
	CheckoutBurst    int           `koanf:"checkout_burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if !k.Exists("webhook.accept_test_events") {
		c.Webhook.AcceptTestEvents = !c.IsProduction()
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Billing Entitlements",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "15s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       false,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.issuer":          "identity",
		"jwt.audience":        "billing-entitlements",
		"jwt.public_key_path": "keys/public.pem",

		"provider.base_url":  "https://api.lemonsqueezy.com",
		"provider.timeout":   "10s",
		"provider.test_mode": false,

		"webhook.max_body_bytes": 1 << 20,
		"webhook.dedup_ttl":      "72h",

		"billing.store_retry_attempts":    4,
		"billing.store_retry_initial":     "100ms",
		"billing.store_retry_max_elapsed": "5s",
		"billing.store_timeout":           "3s",
		"billing.sweep_interval":          "0s",

		"kafka.topic":     "entitlement.changed",
		"kafka.client_id": "billing-entitlements",

		"rate_limit.requests":          100,
		"rate_limit.window":            "1m",
		"rate_limit.burst":             20,
		"rate_limit.checkout_requests": 10,
		"rate_limit.checkout_burst":    3,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "billing-entitlements",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"LEMONSQUEEZY_API_KEY":        "provider.api_key",
	"LEMONSQUEEZY_STORE_ID":       "provider.store_id",
	"LEMONSQUEEZY_API_URL":        "provider.base_url",
	"LEMONSQUEEZY_TEST_MODE":      "provider.test_mode",
	"LEMONSQUEEZY_WEBHOOK_SECRET": "webhook.secret",
	"WEBHOOK_DEDUP_TTL":           "webhook.dedup_ttl",
	"WEBHOOK_ACCEPT_TEST_EVENTS":  "webhook.accept_test_events",
	"BILLING_SWEEP_INTERVAL":      "billing.sweep_interval",
	"KAFKA_BROKERS":               "kafka.brokers",
	"KAFKA_TOPIC":                 "kafka.topic",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	if c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}

	if c.JWT.PublicKeyPath == "" {
		errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH is required"))
	}

	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("LEMONSQUEEZY_API_KEY is required"))
	}

	if c.Provider.StoreID == "" {
		errs = append(errs, errors.New("LEMONSQUEEZY_STORE_ID is required"))
	}

	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("LEMONSQUEEZY_WEBHOOK_SECRET is required"))
	}

	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}

	if c.Billing.StoreRetryAttempts < 1 {
		errs = append(errs, errors.New("billing.store_retry_attempts must be at least 1"))
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, errors.New(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				))
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			errs = append(errs, errors.New("OTEL_INSECURE must be false in production"))
		}
		if c.Provider.TestMode {
			errs = append(errs, errors.New("LEMONSQUEEZY_TEST_MODE must be false in production"))
		}
		if c.Webhook.AcceptTestEvents {
			errs = append(errs, errors.New("WEBHOOK_ACCEPT_TEST_EVENTS must be false in production"))
		}
	}

	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}

	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
