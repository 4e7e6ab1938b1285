package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}

	switch c.Server.Transport {
	case "http", "fasthttp":
	default:
		errs = append(errs, fmt.Errorf("server.transport must be \"http\" or \"fasthttp\", got %q", c.Server.Transport))
	}

	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls.cert_file and server.tls.key_file must be set together"))
	}

	if c.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be >= 0, got %d", c.Server.MaxBodySize))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Proxy.Upstream != "" {
		u, err := url.Parse(c.Proxy.Upstream)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("proxy.upstream must be an absolute http(s) URL, got %q", c.Proxy.Upstream))
		}
	}

	if c.Compression.Level < -2 || c.Compression.Level > 9 {
		errs = append(errs, fmt.Errorf("compression.level must be between -2 and 9, got %d", c.Compression.Level))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimit.Enabled {
		if c.Auth.RateLimit.Default.RPS < 0 || c.Auth.RateLimit.Default.Burst < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.default must not be negative"))
		}
		for name, tier := range c.Auth.RateLimit.Tiers {
			if tier.RPS < 0 || tier.Burst < 0 {
				errs = append(errs, fmt.Errorf("auth.rate_limit.tiers.%s must not be negative", name))
			}
		}
	}

	if c.AccessLog.Enabled {
		switch c.AccessLog.Store {
		case "memory":
		case "pebble":
			if c.AccessLog.Pebble.Path == "" {
				errs = append(errs, fmt.Errorf("access_log.pebble.path is required when access_log.store is \"pebble\""))
			}
		case "postgres":
			if c.AccessLog.Postgres.DSN == "" && c.AccessLog.Postgres.DSNFile == "" {
				errs = append(errs, fmt.Errorf("access_log.postgres.dsn or access_log.postgres.dsn_file is required when access_log.store is \"postgres\""))
			}
		default:
			errs = append(errs, fmt.Errorf("access_log.store must be \"memory\", \"pebble\", or \"postgres\", got %q", c.AccessLog.Store))
		}

		if r := c.AccessLog.Retention; r.Enabled {
			if !gronx.IsValid(r.Schedule) {
				errs = append(errs, fmt.Errorf("access_log.retention.schedule is not a valid cron expression: %q", r.Schedule))
			}
			if r.MaxAge <= 0 {
				errs = append(errs, fmt.Errorf("access_log.retention.max_age must be > 0, got %s", r.MaxAge))
			}
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
