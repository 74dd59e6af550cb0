/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
)

var (
	ErrConfigNotInit       = errors.New("config not init")
	ErrDuplicateInitConfig = errors.New("duplicate init config")
)

const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"

	EnvPrefix = "RESOLVER"
)

// Do not read the global configuration on hot paths; pass the values in.
var _config *Config

type Config struct {
	Log        LogS        `mapstructure:"log"`
	Gateway    GatewayS    `mapstructure:"gateway"`
	Cache      CacheS      `mapstructure:"cache"`
	Storage    StorageS    `mapstructure:"storage"`
	Server     ServerS     `mapstructure:"server"`
	Metrics    MetricsS    `mapstructure:"metrics"`
	PprofDebug PprofDebugS `mapstructure:"pprof_debug"`
}

type LogS struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type GatewayS struct {
	// Deadline for a single gateway attempt, body included. Negative disables it.
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int64         `mapstructure:"max_body_size"`
	// Resolve content over the extended gateway order instead of the primary one
	Extended bool `mapstructure:"extended"`
}

type CacheS struct {
	Enable bool   `mapstructure:"enable"`
	Type   string `mapstructure:"type"`
	// memory cache capacity in bytes
	MaxCost int64 `mapstructure:"max_cost"`
	// 0 keeps entries until evicted, content behind a CID never changes
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

type StorageS struct {
	Enable bool `mapstructure:"enable"`
	// IPFS HTTP API, either a URL or a multiaddr
	Endpoint     string        `mapstructure:"endpoint"`
	MaxRetries   uint64        `mapstructure:"max_retries"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
	HealthCheck  bool          `mapstructure:"health_check"`
}

type ServerS struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// bound on concurrent resolutions when assembling product lists
	FanOutLimit int `mapstructure:"fan_out_limit"`
}

type MetricsS struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

type PprofDebugS struct {
	Enable bool   `mapstructure:"enable"`
	Port   uint16 `mapstructure:"port"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("gateway.timeout", gateway.DefaultTimeout)
	v.SetDefault("gateway.max_body_size", gateway.DefaultMaxBodySize)
	v.SetDefault("gateway.extended", false)

	v.SetDefault("cache.enable", false)
	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.max_cost", 64*1024*1024)
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.key_prefix", "resolver:")

	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.endpoint", "http://localhost:5001")
	v.SetDefault("storage.max_retries", 3)
	v.SetDefault("storage.retry_max_wait", 5*time.Second)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.fan_out_limit", 8)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("pprof_debug.port", 26063)
}

// Load maps v onto a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	c.Cache.Type = strings.ToLower(c.Cache.Type)
	switch c.Cache.Type {
	case CacheTypeMemory, CacheTypeRedis:
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Server.FanOutLimit <= 0 {
		c.Server.FanOutLimit = 1
	}
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.Metrics.Path)
	}
	return nil
}

// GatewayOrder is the gateway order used for content resolution.
func (c *Config) GatewayOrder() []gateway.Name {
	if c.Gateway.Extended {
		return gateway.ExtendedOrder()
	}
	return gateway.PrimaryOrder()
}

// InitConfig loads the global configuration from the global viper instance.
func InitConfig() error {
	if _config != nil {
		return ErrDuplicateInitConfig
	}
	c, err := Load(viper.GetViper())
	if err != nil {
		return err
	}
	_config = c
	return nil
}

func Get() *Config {
	return _config
}
