// Package config provides hierarchical configuration loading for tenantdesk.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the tenantdesk service.
type Config struct {
	Server    Server    `yaml:"server"`
	TenantAPI TenantAPI `yaml:"tenant_api"`
	Session   Session   `yaml:"session"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	NATS      NATS      `yaml:"nats"`
	Postgres  Postgres  `yaml:"postgres"`
	OTEL      OTEL      `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	BodyLimit  int64  `yaml:"body_limit"` // Max request body in bytes (default: 1 MiB)
}

// TenantAPI holds the upstream Tenant API client configuration.
type TenantAPI struct {
	BaseURL    string        `yaml:"base_url"`
	CookieName string        `yaml:"cookie_name"` // Cookie carrying the principal's session, forwarded upstream
	Timeout    time.Duration `yaml:"timeout"`     // Per-request HTTP timeout
}

// Session holds tenant session manager configuration.
type Session struct {
	SwitchTimeout    time.Duration `yaml:"switch_timeout"`    // Client-side bound on one switch request
	SnapshotTTL      time.Duration `yaml:"snapshot_ttl"`      // Lifetime of persisted snapshots
	SubscriberBuffer int           `yaml:"subscriber_buffer"` // Channel size per snapshot subscriber
	AuditLimit       int           `yaml:"audit_limit"`       // Max switch audit rows returned per query
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds snapshot cache configuration (L1 ristretto, L2 NATS KV).
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// NATS holds NATS JetStream configuration. An empty URL disables event
// publishing and the L2 cache.
type NATS struct {
	URL string `yaml:"url"`
}

// Postgres holds PostgreSQL configuration for the switch audit log.
// An empty DSN disables auditing.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// OTEL holds OpenTelemetry exporter configuration. An empty endpoint keeps
// the global no-op providers.
type OTEL struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
			BodyLimit:  1 << 20,
		},
		TenantAPI: TenantAPI{
			BaseURL:    "http://localhost:9000/api",
			CookieName: "session",
			Timeout:    10 * time.Second,
		},
		Session: Session{
			SwitchTimeout:    15 * time.Second,
			SnapshotTTL:      12 * time.Hour,
			SubscriberBuffer: 8,
			AuditLimit:       50,
		},
		Logging: Logging{
			Level:   "info",
			Service: "tenantdesk",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			L1MaxSizeMB: 32,
			L2Bucket:    "TENANTDESK_SESSIONS",
			L2TTL:       12 * time.Hour,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		OTEL: OTEL{
			ServiceName: "tenantdesk",
			Insecure:    true,
		},
	}
}
