package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no explicit path is given.
const EnvConfigPath = "KETTE_CONFIG"

// searchPaths are tried in order when neither an explicit path nor
// KETTE_CONFIG is set.
var searchPaths = []string{"config.yaml", "/etc/kette/config.yaml"}

// Load builds the configuration from, in increasing precedence: Defaults,
// the YAML file, KETTE_* environment variables. Secrets given as *_file
// paths are then read and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path = locate(path); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(&cfg, v); err != nil {
			return nil, fmt.Errorf("environment %s: %w", b.name, err)
		}
	}
	if err := cfg.readSecretFiles(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func locate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// decodeFile overlays the YAML document at path on cfg. An empty file
// leaves cfg untouched.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"KETTE_HOST", setString(func(c *Config) *string { return &c.Server.Host })},
	{"KETTE_PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Server.Port = port
		return nil
	}},
	{"KETTE_TRANSPORT", func(c *Config, v string) error {
		c.Server.Transport = strings.ToLower(v)
		return nil
	}},
	{"KETTE_TLS_CERT_FILE", setString(func(c *Config) *string { return &c.Server.TLS.CertFile })},
	{"KETTE_TLS_KEY_FILE", setString(func(c *Config) *string { return &c.Server.TLS.KeyFile })},
	{"KETTE_UPSTREAM", setString(func(c *Config) *string { return &c.Proxy.Upstream })},
	{"KETTE_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
	{"KETTE_LOG_FORMAT", setString(func(c *Config) *string { return &c.Logging.Format })},
	{"KETTE_AUTH_TYPE", setString(func(c *Config) *string { return &c.Auth.Type })},
	{"KETTE_API_KEYS", func(c *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("expected a JSON array of keys: %w", err)
		}
		if len(keys) > 0 {
			c.Auth.APIKeys = keys
		}
		return nil
	}},
	{"KETTE_ACCESS_LOG_STORE", func(c *Config, v string) error {
		c.AccessLog.Enabled = true
		c.AccessLog.Store = v
		return nil
	}},
	{"KETTE_POSTGRES_DSN", setString(func(c *Config) *string { return &c.AccessLog.Postgres.DSN })},
}

// readSecretFiles fills empty secrets from their *_file companions.
func (c *Config) readSecretFiles() error {
	type secret struct {
		field string
		path  string
		dst   *string
	}
	secrets := []secret{{"access_log.postgres.dsn_file", c.AccessLog.Postgres.DSNFile, &c.AccessLog.Postgres.DSN}}
	for i := range c.Auth.APIKeys {
		k := &c.Auth.APIKeys[i]
		secrets = append(secrets, secret{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, s := range secrets {
		if s.path == "" || *s.dst != "" {
			continue
		}
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("%s: %w", s.field, err)
		}
		*s.dst = strings.TrimSpace(string(data))
	}
	return nil
}
