package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
)

func loadYAML(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(doc)))
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, gateway.DefaultTimeout, c.Gateway.Timeout)
	assert.Equal(t, gateway.DefaultMaxBodySize, c.Gateway.MaxBodySize)
	assert.Equal(t, CacheTypeMemory, c.Cache.Type)
	assert.False(t, c.Cache.Enable)
	assert.Equal(t, ":8080", c.Server.Address)
	assert.Equal(t, 8, c.Server.FanOutLimit)
	assert.Equal(t, gateway.PrimaryOrder(), c.GatewayOrder())
}

func TestLoadYAML(t *testing.T) {
	c, err := loadYAML(t, `
log:
  level: debug
gateway:
  timeout: 3s
  extended: true
cache:
  enable: true
  type: Redis
  redis_addr: 10.0.0.1:6379
  ttl: 1h
storage:
  enable: true
  endpoint: /ip4/127.0.0.1/tcp/5001
`)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 3*time.Second, c.Gateway.Timeout)
	assert.Equal(t, gateway.ExtendedOrder(), c.GatewayOrder())
	assert.Equal(t, CacheTypeRedis, c.Cache.Type)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.Equal(t, "10.0.0.1:6379", c.Cache.RedisAddr)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/5001", c.Storage.Endpoint)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	_, err := loadYAML(t, "cache:\n  type: memcached\n")
	assert.Error(t, err)

	_, err = loadYAML(t, "gateway:\n  timeout: soon\n")
	assert.Error(t, err)

	_, err = loadYAML(t, "metrics:\n  path: metrics\n")
	assert.Error(t, err)
}

func TestLoadEmptyMetricsPath(t *testing.T) {
	c, err := loadYAML(t, "metrics:\n  enable: true\n  path: \"\"\n")
	require.NoError(t, err)
	assert.Equal(t, "/metrics", c.Metrics.Path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESOLVER_SERVER_ADDRESS", ":9999")
	c, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Server.Address)
}
