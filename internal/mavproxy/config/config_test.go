package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

func TestFromEnvDefaults(t *testing.T) {
	state := t.TempDir()
	t.Setenv("MAVPROXY_STATE_DIR", state)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.HTTPListen != defaultHTTPListen {
		t.Fatalf("unexpected listen address %s", cfg.HTTPListen)
	}
	if cfg.LogDir != filepath.Join(state, "logs") || cfg.OutputDir != filepath.Join(state, "output") {
		t.Fatalf("unexpected derived dirs: %s %s", cfg.LogDir, cfg.OutputDir)
	}
	if cfg.Store != StoreFile || cfg.StorePath != filepath.Join(state, "endpoints.json") {
		t.Fatalf("unexpected store %s at %s", cfg.Store, cfg.StorePath)
	}
	if cfg.Master.ConnectionType != endpoint.UDPServer || cfg.Master.Argument != 14550 || !cfg.Master.Protected {
		t.Fatalf("unexpected master %+v", cfg.Master)
	}
	if !cfg.Autostart || cfg.StopTimeout != defaultStopTimeout || len(cfg.BinaryPaths) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	state := t.TempDir()
	t.Setenv("MAVPROXY_STATE_DIR", state)
	t.Setenv("MAVPROXY_STORE", "SQLite")
	t.Setenv("MAVPROXY_MASTER", "serial:/dev/ttyACM0:115200")
	t.Setenv("MAVPROXY_ROUTER", "MAVP2P")
	t.Setenv("MAVPROXY_MAVP2P_BIN", "/opt/mavp2p")
	t.Setenv("MAVPROXY_AUTOSTART", "false")
	t.Setenv("MAVPROXY_STOP_TIMEOUT", "3s")
	t.Setenv("MAVPROXY_SEARCH_PATH", "/opt/bin"+string(filepath.ListSeparator)+"/usr/local/bin")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.StorePath != filepath.Join(state, "endpoints.db") {
		t.Fatalf("unexpected store %s at %s", cfg.Store, cfg.StorePath)
	}
	if cfg.Master.String() != "serial:/dev/ttyACM0:115200" {
		t.Fatalf("unexpected master %s", cfg.Master)
	}
	if cfg.Router != "MAVP2P" || cfg.BinaryPaths["MAVP2P"] != "/opt/mavp2p" {
		t.Fatalf("unexpected router overrides: %+v", cfg)
	}
	if cfg.Autostart || cfg.StopTimeout != 3*time.Second || len(cfg.SearchPaths) != 2 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"MAVPROXY_STORE":        "etcd",
		"MAVPROXY_MASTER":       "udp_server:0.0.0.0",
		"MAVPROXY_AUTOSTART":    "maybe",
		"MAVPROXY_STOP_TIMEOUT": "-1s",
		"MAVPROXY_LOG_LEVEL":    "loud",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("MAVPROXY_STATE_DIR", t.TempDir())
			t.Setenv(key, value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mavproxy.env")
	data := "MAVPROXY_HTTP_LISTEN=127.0.0.1:7000\nMAVPROXY_ROUTER=MAVP2P\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("MAVPROXY_ENV_FILE", path)
	t.Setenv("MAVPROXY_ROUTER", "MAVLinkRouter")
	// Registers cleanup, then removes the variable so the file can supply it.
	t.Setenv("MAVPROXY_HTTP_LISTEN", "")
	os.Unsetenv("MAVPROXY_HTTP_LISTEN")

	if err := LoadEnvFile(); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.HTTPListen != "127.0.0.1:7000" {
		t.Fatalf("expected listen from file, got %q", cfg.HTTPListen)
	}
	if cfg.Router != "MAVLinkRouter" {
		t.Fatalf("environment should win over file, got %q", cfg.Router)
	}
}

func TestLoadEnvFileMissingExplicitPath(t *testing.T) {
	t.Setenv("MAVPROXY_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	if err := LoadEnvFile(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}
