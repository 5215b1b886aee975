package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	OAuth     OAuthConfig     `yaml:"-"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	BaseURL        string `yaml:"base_url"`
	Environment    string `yaml:"environment"`
	HomePath       string `yaml:"home_path"`
	CookieDomain   string `yaml:"cookie_domain"`
	CookieSecure   bool   `yaml:"cookie_secure"`
	CookieSameSite string `yaml:"cookie_same_site"`
}

func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (c ServerConfig) SecureCookies() bool {
	return c.CookieSecure || c.IsProduction()
}

type BackendConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	Enable            *bool         `yaml:"enable"`
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

func (c RateLimitConfig) Enabled() bool {
	return c.Enable == nil || *c.Enable
}

// Load reads the optional YAML file at path, applies defaults and then
// reads the OAuth settings from the environment. A missing file is not an
// error; missing OAuth environment is.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.setDefaults()
	cfg.loadOverridesFromEnv()

	oauthCfg, err := LoadOAuth()
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth config: %w", err)
	}
	cfg.OAuth = *oauthCfg

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.HomePath == "" {
		c.Server.HomePath = "/"
	}
	if c.Server.CookieSameSite == "" {
		c.Server.CookieSameSite = "lax"
	}

	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 30
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = 5 * time.Minute
	}
}

func (c *Config) loadOverridesFromEnv() {
	if envName := os.Getenv("APP_ENV"); envName != "" {
		c.Server.Environment = envName
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if envPassword := os.Getenv("REDIS_PASSWORD"); envPassword != "" {
			c.Cache.Redis.Password = envPassword
		}
	}
}
