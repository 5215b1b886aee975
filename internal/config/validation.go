package config

import (
	"fmt"
	"net/url"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateBackend(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.validateRateLimit(); err != nil {
		return fmt.Errorf("rate_limit config: %w", err)
	}

	if err := c.OAuth.validate(); err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL != "" {
		if _, err := url.Parse(c.Server.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}

	if !strings.HasPrefix(c.Server.HomePath, "/") {
		return fmt.Errorf("home_path must start with /: %s", c.Server.HomePath)
	}

	sameSite := strings.ToLower(c.Server.CookieSameSite)
	if sameSite != "lax" && sameSite != "strict" && sameSite != "none" {
		return fmt.Errorf("invalid cookie_same_site: %s (must be lax, strict, or none)", c.Server.CookieSameSite)
	}

	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be positive")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("burst must be positive")
	}
	if c.RateLimit.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	return nil
}

func (c OAuthConfig) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("QF_CLIENT_ID is required")
	}

	if c.CookieSecret == "" {
		return fmt.Errorf("QF_OAUTH_COOKIE_SECRET is required (e.g. openssl rand -hex 32)")
	}

	if err := validateAbsoluteURL(c.RedirectURI); err != nil {
		return fmt.Errorf("invalid QF_OAUTH_REDIRECT_URI: %w", err)
	}

	if err := validateAbsoluteURL(c.AuthBaseURL); err != nil {
		return fmt.Errorf("invalid auth base url: %w", err)
	}

	if err := validateAbsoluteURL(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api base url: %w", err)
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}

	if c.TokenTimeout <= 0 {
		return fmt.Errorf("QF_TOKEN_TIMEOUT must be positive")
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("value is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}

	return nil
}
