// Package config loads mavproxyd settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

const (
	defaultHTTPListen  = "0.0.0.0:6040"
	defaultStateDir    = "~/.mavproxy"
	defaultMaster      = "udp_server:0.0.0.0:14550"
	defaultStopTimeout = 10 * time.Second
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config captures runtime settings for the proxy daemon.
type Config struct {
	HTTPListen string
	StateDir   string
	// LogDir is passed to routers that record telemetry logs.
	LogDir string
	// OutputDir receives the router process stdout/stderr.
	OutputDir   string
	Store       string
	StorePath   string
	Master      endpoint.Endpoint
	Router      string
	BinaryPaths map[string]string
	SearchPaths []string
	Autostart   bool
	LogLevel    string
	StopTimeout time.Duration
}

// LoadEnvFile merges KEY=value pairs into the process environment. The file
// named by MAVPROXY_ENV_FILE must exist; otherwise ./.env is read when present.
// Variables already set in the environment win.
func LoadEnvFile() error {
	if path := os.Getenv("MAVPROXY_ENV_FILE"); path != "" {
		if err := godotenv.Load(expandPath(path)); err != nil {
			return fmt.Errorf("config: load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// FromEnv loads configuration using environment variables with defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPListen: getenv("MAVPROXY_HTTP_LISTEN", defaultHTTPListen),
		StateDir:   expandPath(getenv("MAVPROXY_STATE_DIR", defaultStateDir)),
		LogDir:     expandPath(getenv("MAVPROXY_LOG_DIR", "")),
		OutputDir:  expandPath(getenv("MAVPROXY_OUTPUT_DIR", "")),
		Store:      strings.ToLower(getenv("MAVPROXY_STORE", StoreFile)),
		StorePath:  expandPath(getenv("MAVPROXY_STORE_PATH", "")),
		Router:     getenv("MAVPROXY_ROUTER", ""),
		LogLevel:   strings.ToLower(getenv("MAVPROXY_LOG_LEVEL", "info")),
		BinaryPaths: map[string]string{
			"MAVLinkRouter": expandPath(getenv("MAVPROXY_MAVLINK_ROUTER_BIN", "")),
			"MAVP2P":        expandPath(getenv("MAVPROXY_MAVP2P_BIN", "")),
		},
	}

	if cfg.StateDir == "" {
		return Config{}, fmt.Errorf("state directory required")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.StateDir, "logs")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.StateDir, "output")
	}
	for name, path := range cfg.BinaryPaths {
		if path == "" {
			delete(cfg.BinaryPaths, name)
		}
	}
	for _, dir := range filepath.SplitList(getenv("MAVPROXY_SEARCH_PATH", "")) {
		if dir = expandPath(dir); dir != "" {
			cfg.SearchPaths = append(cfg.SearchPaths, dir)
		}
	}

	switch cfg.Store {
	case StoreFile:
		if cfg.StorePath == "" {
			cfg.StorePath = filepath.Join(cfg.StateDir, "endpoints.json")
		}
	case StoreSQLite:
		if cfg.StorePath == "" {
			cfg.StorePath = filepath.Join(cfg.StateDir, "endpoints.db")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("store %q not supported", cfg.Store)
	}

	master, err := endpoint.Parse("master", getenv("MAVPROXY_MASTER", defaultMaster))
	if err != nil {
		return Config{}, fmt.Errorf("master endpoint: %w", err)
	}
	master.Protected = true
	cfg.Master = master

	autostart, err := strconv.ParseBool(getenv("MAVPROXY_AUTOSTART", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("autostart: %w", err)
	}
	cfg.Autostart = autostart

	cfg.StopTimeout = defaultStopTimeout
	if raw := getenv("MAVPROXY_STOP_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("stop timeout %q invalid", raw)
		}
		cfg.StopTimeout = d
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log level %q not supported", cfg.LogLevel)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
