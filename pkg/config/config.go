// Package config provides unified configuration for the kette server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (KETTE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the kette server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Compression   CompressionConfig   `yaml:"compression"`
	Auth          AuthConfig          `yaml:"auth"`
	AccessLog     AccessLogConfig     `yaml:"access_log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds listener and transport settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: all interfaces
	Port            int           `yaml:"port"`             // default: 8080, 0 picks a free port
	Transport       string        `yaml:"transport"`        // "http" or "fasthttp", default: "http"
	TLS             TLSConfig     `yaml:"tls"`              // optional
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	IdleTimeout     time.Duration `yaml:"idle_timeout"`     // default: 120s
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`  // 0 disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
}

// TLSConfig enables TLS when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// ProxyConfig configures the upstream the terminal unit forwards to.
// Without an upstream, unmatched requests get 404.
type ProxyConfig struct {
	Upstream string        `yaml:"upstream"`
	Timeout  time.Duration `yaml:"timeout"` // per upstream exchange, 0 disables
}

// CompressionConfig holds gzip response compression settings.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`  // default: false
	Level   int  `yaml:"level"`    // -2..9, 0 means default level
	MinSize int  `yaml:"min_size"` // default: 1024 bytes
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bypass    []string        `yaml:"bypass"` // paths that skip authentication
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings for type=jwt.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-tier token bucket settings.
type RateLimitConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Default TierLimit            `yaml:"default"`
	Tiers   map[string]TierLimit `yaml:"tiers"`
}

// TierLimit is a token bucket: RPS tokens per second, up to Burst at once.
type TierLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AccessLogConfig holds request record persistence settings.
type AccessLogConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Store     string          `yaml:"store"`    // "memory", "pebble" or "postgres", default: "memory"
	MaxSize   int             `yaml:"max_size"` // for memory store, default: 10000
	Pebble    PebbleConfig    `yaml:"pebble"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Retention RetentionConfig `yaml:"retention"`
}

// PebbleConfig holds the on-disk store location.
type PebbleConfig struct {
	Path string `yaml:"path"` // default: "data/accesslog"
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// RetentionConfig schedules pruning of old access log records.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"` // cron expression, default: "0 2 * * *"
	MaxAge   time.Duration `yaml:"max_age"`  // default: 168h
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Transport:       "http",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Compression: CompressionConfig{
			MinSize: 1024,
		},
		Auth: AuthConfig{
			Type:   "none",
			Bypass: []string{"/healthz", "/readyz", "/metrics"},
			RateLimit: RateLimitConfig{
				Default: TierLimit{RPS: 10, Burst: 20},
			},
		},
		AccessLog: AccessLogConfig{
			Store:   "memory",
			MaxSize: 10000,
			Pebble: PebbleConfig{
				Path: "data/accesslog",
			},
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			Retention: RetentionConfig{
				Schedule: "0 2 * * *",
				MaxAge:   7 * 24 * time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Redacted returns a copy of c with secrets masked, for display.
func (c Config) Redacted() Config {
	const mask = "********"
	out := c
	out.Auth.APIKeys = make([]APIKeyConfig, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if k.Key != "" {
			k.Key = mask
		}
		out.Auth.APIKeys[i] = k
	}
	if out.AccessLog.Postgres.DSN != "" {
		out.AccessLog.Postgres.DSN = mask
	}
	return out
}
