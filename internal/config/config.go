// Package config loads surfdeck configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level surfdeck configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AuthTokenHash is a bcrypt hash of the bearer token. Empty disables
	// authentication.
	AuthTokenHash string `yaml:"auth_token_hash"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headless         bool     `yaml:"headless"`
	Stealth          bool     `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// SessionConfig tunes per-session behavior.
type SessionConfig struct {
	DownloadDir string        `yaml:"download_dir"`
	VizBuffer   int           `yaml:"viz_buffer"`
	Settle      time.Duration `yaml:"settle"`
}

// StorageConfig locates the operation log database.
type StorageConfig struct {
	OplogDB        string        `yaml:"oplog_db"`
	OplogRetention time.Duration `yaml:"oplog_retention"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads a YAML configuration file, then applies environment overrides
// and defaults. An empty path skips the file and uses env + defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SURFDECK_ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("AUTH_TOKEN_HASH"); v != "" {
		c.Server.AuthTokenHash = v
	}
	if v := os.Getenv("CHROME_REMOTE"); v != "" {
		c.Browser.Remote = v
	}
	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		c.Session.DownloadDir = v
	}
	if v := os.Getenv("OPLOG_DB"); v != "" {
		c.Storage.OplogDB = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8086"
	}
	if c.Session.DownloadDir == "" {
		c.Session.DownloadDir = "downloads"
	}
	if c.Session.VizBuffer <= 0 {
		c.Session.VizBuffer = 16
	}
	if c.Storage.OplogDB == "" {
		c.Storage.OplogDB = "db/oplog.db"
	}
	if c.Storage.OplogRetention <= 0 {
		c.Storage.OplogRetention = 30 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Level maps the configured log level to slog.
func (c *Config) Level() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
