// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package config loads server configuration from flag defaults, an optional
// YAML file, and explicitly set command-line flags, in that order of
// increasing precedence.
package config

import (
	"net/url"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/logging"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full server configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Invite   InviteConfig   `koanf:"invite"`
	Log      LogConfig      `koanf:"log"`
	Store    string         `koanf:"store"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr        string   `koanf:"addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// SessionConfig configures login sessions and their cookie.
type SessionConfig struct {
	TTL          time.Duration `koanf:"ttl"`
	CookieName   string        `koanf:"cookie_name"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// InviteConfig configures invite URLs.
type InviteConfig struct {
	BaseURL string `koanf:"base_url"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":          "http.addr",
	"cors-origin":        "http.cors_origins",
	"metrics-addr":       "metrics.addr",
	"database-url":       "database.url",
	"db-connect-retries": "database.connect_retries",
	"session-ttl":        "session.ttl",
	"cookie-name":        "session.cookie_name",
	"cookie-secure":      "session.cookie_secure",
	"invite-base-url":    "invite.base_url",
	"log-format":         "log.format",
	"log-level":          "log.level",
	"store":              "store",
}

// RegisterFlags adds the configuration flags and their defaults to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":8080", "API listen address")
	fs.StringSlice("cors-origin", nil, "allowed CORS origin (repeatable; empty disables CORS)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics and health check listen address")
	fs.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.Uint64("db-connect-retries", 5, "database ping retries at startup")
	fs.Duration("session-ttl", auth.DefaultSessionTTL, "login session lifetime")
	fs.String("cookie-name", "session_id", "session cookie name")
	fs.Bool("cookie-secure", false, "set the Secure attribute on the session cookie")
	fs.String("invite-base-url", "", "absolute origin prefixed to invite URLs (required for the postgres store)")
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("store", StorePostgres, "storage backend (postgres or memory)")
}

// Load builds a Config. path names an optional YAML file; getenv supplies
// DATABASE_URL when no database URL is configured. The result is validated.
func Load(fs *pflag.FlagSet, path string, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	// Unchanged flags only fill keys the file did not set.
	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.Database.URL == "" && getenv != nil {
		cfg.Database.URL = getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch {
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http.addr is required")
	case c.Metrics.Addr == "":
		return invalid("metrics.addr", "metrics.addr is required")
	case c.Session.TTL <= 0:
		return invalid("session.ttl", "session.ttl must be positive, got %s", c.Session.TTL)
	case c.Session.CookieName == "":
		return invalid("session.cookie_name", "session.cookie_name is required")
	case !logging.ValidFormat(c.Log.Format):
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}

	if c.Invite.BaseURL != "" {
		u, err := url.Parse(c.Invite.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("invite.base_url", "invite.base_url must be an absolute http(s) URL, got %q", c.Invite.BaseURL)
		}
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url or DATABASE_URL is required for the postgres store")
		}
		// Invite links leave the server by email, so they must be absolute.
		if c.Invite.BaseURL == "" {
			return invalid("invite.base_url", "invite.base_url is required for the postgres store")
		}
	default:
		return invalid("store", "store must be 'postgres' or 'memory', got %q", c.Store)
	}
	return nil
}
