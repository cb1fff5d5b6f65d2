package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port       int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	AccessTTL  time.Duration `env:"TEST_CFG_ACCESS_TTL" envDefault:"15m"`
	Brokers    []string      `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Production bool          `env:"TEST_CFG_PRODUCTION" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.False(t, cfg.Production)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_ACCESS_TTL", "5m")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CFG_PRODUCTION", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.True(t, cfg.Production)
}

func TestLoad_WithPrefix(t *testing.T) {
	t.Setenv("AUTH_TEST_CFG_PORT", "7000")

	var cfg testConfig
	require.NoError(t, Load(&cfg, WithPrefix("AUTH_")))

	assert.Equal(t, 7000, cfg.Port)
}

func TestLoad_WithEnvironment(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{
		"TEST_CFG_PORT": "6000",
	})))

	assert.Equal(t, 6000, cfg.Port)
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg, WithEnvironment(map[string]string{}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidDuration(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, WithEnvironment(map[string]string{"TEST_CFG_ACCESS_TTL": "soon"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
