package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemisolv/englearn-auth/internal/service"
	pkgconfig "github.com/nemisolv/englearn-auth/pkg/config"
)

var strongSecret = strings.Repeat("s", 32)

func load(vars map[string]string) (*Config, error) {
	return Load(pkgconfig.WithEnvironment(vars))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.MaxActiveSessions)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenRetention)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.TrustedProxyCIDRs)

	session := cfg.Session()
	assert.Equal(t, service.ReuseScopeUser, session.ReuseRevokeScope)
	assert.Equal(t, 7*24*time.Hour, session.RefreshTTL)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(map[string]string{
		"AUTH_HTTP_PORT":          "9090",
		"STORE_DRIVER":            "memory",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
		"JWT_ACCESS_TOKEN_EXPIRY": "5m",
		"REUSE_REVOKE_SCOPE":      "family",
		"POSTGRES_HOST":           "db",
		"AUTH_DB_NAME":            "auth",
	})

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, service.ReuseScopeFamily, cfg.Session().ReuseRevokeScope)
	assert.Equal(t, "postgres://englearn:englearn_secret@db:5432/auth?sslmode=disable", cfg.Postgres().DSN())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"port", map[string]string{"AUTH_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"driver", map[string]string{"STORE_DRIVER": "mysql"}, "STORE_DRIVER"},
		{"scope", map[string]string{"REUSE_REVOKE_SCOPE": "everything"}, "REUSE_REVOKE_SCOPE"},
		{"ttl order", map[string]string{"JWT_ACCESS_TOKEN_EXPIRY": "200h"}, "must be shorter"},
		{"sessions", map[string]string{"MAX_ACTIVE_SESSIONS": "-1"}, "MAX_ACTIVE_SESSIONS"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "2"}, "OTEL_SAMPLE_RATE"},
		{"trusted proxies", map[string]string{"TRUSTED_PROXY_CIDRS": "10.0.0.0/8,not-a-cidr"}, "TRUSTED_PROXY_CIDRS"},
		{"unparseable", map[string]string{"JWT_REFRESH_TOKEN_EXPIRY": "a week"}, "load auth config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(tt.vars)
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	cfg, err := load(map[string]string{"ENVIRONMENT": "production"})

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecrets(t *testing.T) {
	_, err := load(map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	_, err = load(map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": strongSecret})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_HASH_SECRET")
}

func TestLoad_Production_RejectsMemoryStore(t *testing.T) {
	_, err := load(map[string]string{
		"ENVIRONMENT":       "production",
		"JWT_SECRET":        strongSecret,
		"TOKEN_HASH_SECRET": strongSecret,
		"STORE_DRIVER":      "memory",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "only allowed in development")
}

func TestLoad_Production_Valid(t *testing.T) {
	cfg, err := load(map[string]string{
		"ENVIRONMENT":       "production",
		"JWT_SECRET":        strongSecret,
		"TOKEN_HASH_SECRET": strongSecret,
	})

	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}
