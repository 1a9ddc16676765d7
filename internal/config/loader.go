package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tenantdesk.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("TENANTDESK_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TENANTDESK_PORT")
	setString(&cfg.Server.CORSOrigin, "TENANTDESK_CORS_ORIGIN")
	setInt64(&cfg.Server.BodyLimit, "TENANTDESK_BODY_LIMIT")

	setString(&cfg.TenantAPI.BaseURL, "TENANTDESK_TENANT_API_URL")
	setString(&cfg.TenantAPI.CookieName, "TENANTDESK_COOKIE_NAME")
	setDuration(&cfg.TenantAPI.Timeout, "TENANTDESK_TENANT_API_TIMEOUT")

	setDuration(&cfg.Session.SwitchTimeout, "TENANTDESK_SWITCH_TIMEOUT")
	setDuration(&cfg.Session.SnapshotTTL, "TENANTDESK_SNAPSHOT_TTL")
	setInt(&cfg.Session.SubscriberBuffer, "TENANTDESK_SUBSCRIBER_BUFFER")
	setInt(&cfg.Session.AuditLimit, "TENANTDESK_AUDIT_LIMIT")

	setString(&cfg.Logging.Level, "TENANTDESK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TENANTDESK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TENANTDESK_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "TENANTDESK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TENANTDESK_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TENANTDESK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "TENANTDESK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TENANTDESK_CACHE_L2_TTL")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TENANTDESK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TENANTDESK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TENANTDESK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TENANTDESK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TENANTDESK_PG_HEALTH_CHECK")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "TENANTDESK_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.TenantAPI.BaseURL == "" {
		return errors.New("tenant_api.base_url is required")
	}
	if u, err := url.Parse(cfg.TenantAPI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("tenant_api.base_url %q must be an absolute URL", cfg.TenantAPI.BaseURL)
	}
	if cfg.TenantAPI.CookieName == "" {
		return errors.New("tenant_api.cookie_name is required")
	}
	if cfg.Session.SwitchTimeout <= 0 {
		return errors.New("session.switch_timeout must be > 0")
	}
	if cfg.Server.BodyLimit < 1 {
		return errors.New("server.body_limit must be >= 1")
	}
	if cfg.Session.AuditLimit < 1 {
		return errors.New("session.audit_limit must be >= 1")
	}
	if cfg.Session.SubscriberBuffer < 1 {
		return errors.New("session.subscriber_buffer must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
