// Package config loads shelfsync configuration from the config file and
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Book service
	ServerURL string

	// Library store (SurrealDB)
	StoreURL       string
	StoreNamespace string
	StoreDatabase  string
	StoreUser      string
	StorePass      string
	StoreAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors the optional YAML config file. Environment
// variables override file values.
type fileConfig struct {
	ServerURL string `yaml:"server_url"`
	Store     struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"store"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration: defaults, then the config file at
// ~/.config/shelfsync/config.yaml (or SHELFSYNC_CONFIG), then
// environment variables.
func Load() (Config, error) {
	fc, err := loadFile()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL: pick("SHELFSYNC_SERVER_URL", fc.ServerURL, "http://localhost:8480"),

		StoreURL:       pick("SHELFSYNC_STORE_URL", fc.Store.URL, "ws://localhost:8000/rpc"),
		StoreNamespace: pick("SHELFSYNC_STORE_NAMESPACE", fc.Store.Namespace, "shelfsync"),
		StoreDatabase:  pick("SHELFSYNC_STORE_DATABASE", fc.Store.Database, "library"),
		StoreUser:      pick("SHELFSYNC_STORE_USER", fc.Store.User, "root"),
		StorePass:      pick("SHELFSYNC_STORE_PASS", fc.Store.Pass, "root"),
		StoreAuthLevel: pick("SHELFSYNC_STORE_AUTH_LEVEL", fc.Store.AuthLevel, "root"),

		LogFile:  pick("SHELFSYNC_LOG_FILE", fc.LogFile, defaultLogFile()),
		LogLevel: parseLogLevel(pick("SHELFSYNC_LOG_LEVEL", fc.LogLevel, "INFO")),
	}
	return cfg, nil
}

// loadFile reads the YAML config file if present. A missing file is not
// an error; a malformed one is.
func loadFile() (fileConfig, error) {
	var fc fileConfig

	path := os.Getenv("SHELFSYNC_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fc, nil
		}
		path = filepath.Join(home, ".config", "shelfsync", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// pick returns the env value when set, then the file value, then the
// default.
func pick(envKey, fileVal, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

func defaultLogFile() string {
	return filepath.Join(os.TempDir(), "shelfsync.log")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
