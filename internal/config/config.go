package config

import (
	"fmt"
	"time"

	"github.com/nemisolv/englearn-auth/internal/auth"
	"github.com/nemisolv/englearn-auth/internal/service"
	pkgconfig "github.com/nemisolv/englearn-auth/pkg/config"
	"github.com/nemisolv/englearn-auth/pkg/database"
	"github.com/nemisolv/englearn-auth/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"englearn-auth"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"AUTH_HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"englearn"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"englearn_secret"`
	PostgresDB         string        `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns   int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis (access-token denylist); empty address keeps the denylist in memory
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka (security events); no brokers disables publishing
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Tokens
	JWTSecret             string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	AccessTokenTTL        time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenTTL       time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	TokenHashSecret       string        `env:"TOKEN_HASH_SECRET"`
	MaxActiveSessions     int           `env:"MAX_ACTIVE_SESSIONS" envDefault:"5"`
	ReuseRevokeScope      string        `env:"REUSE_REVOKE_SCOPE" envDefault:"user"`
	RefreshTokenRetention time.Duration `env:"REFRESH_TOKEN_RETENTION" envDefault:"720h"`
	PurgeInterval         time.Duration `env:"REFRESH_TOKEN_PURGE_INTERVAL" envDefault:"1h"`

	// Login throttling, per client IP. Forwarding headers are only honoured
	// from peers in TRUSTED_PROXY_CIDRS.
	LoginRateLimit    float64  `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
	LoginRateBurst    int      `env:"LOGIN_RATE_BURST" envDefault:"10"`
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// HTTP surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	InternalCIDRs      []string `env:"INTERNAL_CIDRS" envDefault:"127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
	EnablePprof        bool     `env:"ENABLE_PPROF" envDefault:"false"`

	// Tracing
	TracingEnabled bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate     float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Bootstrap account for STORE_DRIVER=memory
	DevAdminEmail    string `env:"DEV_ADMIN_EMAIL"`
	DevAdminPassword string `env:"DEV_ADMIN_PASSWORD"`
}

// Load reads configuration from environment variables and validates it.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	switch service.ReuseScope(c.ReuseRevokeScope) {
	case service.ReuseScopeUser, service.ReuseScopeFamily:
	default:
		return fmt.Errorf("REUSE_REVOKE_SCOPE must be %q or %q, got %q", service.ReuseScopeUser, service.ReuseScopeFamily, c.ReuseRevokeScope)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY (%s) must be shorter than JWT_REFRESH_TOKEN_EXPIRY (%s)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	if c.MaxActiveSessions < 0 {
		return fmt.Errorf("MAX_ACTIVE_SESSIONS must not be negative, got %d", c.MaxActiveSessions)
	}
	if c.RefreshTokenRetention < 0 {
		return fmt.Errorf("REFRESH_TOKEN_RETENTION must not be negative")
	}
	if c.RefreshTokenRetention > 0 && c.PurgeInterval <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_PURGE_INTERVAL must be positive when purging is enabled")
	}
	if c.LoginRateLimit < 0 || c.LoginRateBurst < 0 {
		return fmt.Errorf("login rate limit settings must not be negative")
	}
	if _, err := auth.ParseTrustedProxies(c.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.SampleRate)
	}

	// In non-development environments, require explicitly set, strong secrets.
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
		if len(c.TokenHashSecret) < 32 {
			return fmt.Errorf("TOKEN_HASH_SECRET must be at least 32 characters long in %q mode", c.Environment)
		}
		if c.StoreDriver == StoreDriverMemory {
			return fmt.Errorf("STORE_DRIVER=memory is only allowed in development")
		}
	}

	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Postgres returns the connection settings for the pgx pool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the connection settings for the denylist client.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRate:     c.SampleRate,
		Enabled:        c.TracingEnabled,
	}
}

// Session returns the refresh-token lifecycle settings.
func (c *Config) Session() service.SessionConfig {
	return service.SessionConfig{
		RefreshTTL:        c.RefreshTokenTTL,
		MaxActiveSessions: c.MaxActiveSessions,
		ReuseRevokeScope:  service.ReuseScope(c.ReuseRevokeScope),
	}
}
