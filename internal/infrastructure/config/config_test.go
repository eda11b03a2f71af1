package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
registry:
  url: "ws://homeassistant.local:8123/api/websocket"
  token: "llat-token"
  call_timeout: 15
housekeeper:
  data_dir: "/tmp/housekeeper"
  fallback_area_name: "Limbo"
database:
  path: "/tmp/housekeeper.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9000
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.URL != "ws://homeassistant.local:8123/api/websocket" {
		t.Errorf("Registry.URL = %q", cfg.Registry.URL)
	}
	if cfg.Registry.Token != "llat-token" {
		t.Errorf("Registry.Token = %q", cfg.Registry.Token)
	}
	if cfg.Housekeeper.FallbackAreaName != "Limbo" {
		t.Errorf("Housekeeper.FallbackAreaName = %q", cfg.Housekeeper.FallbackAreaName)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal file keeps every default.
	cfg, err := Load(writeConfig(t, "registry:\n  url: \"ws://supervisor/core/websocket\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.CallTimeout != 30 {
		t.Errorf("Registry.CallTimeout = %d, want 30", cfg.Registry.CallTimeout)
	}
	if cfg.Housekeeper.DataDir != "./data/housekeeper" {
		t.Errorf("Housekeeper.DataDir = %q", cfg.Housekeeper.DataDir)
	}
	if cfg.Housekeeper.FallbackAreaName != "Unassigned" {
		t.Errorf("Housekeeper.FallbackAreaName = %q", cfg.Housekeeper.FallbackAreaName)
	}
	if cfg.API.Port != 8099 {
		t.Errorf("API.Port = %d, want 8099", cfg.API.Port)
	}
	if !cfg.Database.WALMode {
		t.Error("Database.WALMode = false, want true")
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = true, want disabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "non websocket url",
			content: "registry:\n  url: \"http://homeassistant.local\"\n",
			wantErr: "registry.url must be a ws:// or wss:// URL",
		},
		{
			name:    "bad api port",
			content: "registry:\n  url: \"ws://supervisor/core/websocket\"\napi:\n  port: 99999\n",
			wantErr: "api.port must be between 1 and 65535",
		},
		{
			name:    "mqtt qos out of range",
			content: "registry:\n  url: \"ws://supervisor/core/websocket\"\nmqtt:\n  enabled: true\n  qos: 7\n",
			wantErr: "mqtt.qos must be 0, 1, or 2",
		},
		{
			name:    "influxdb enabled without url",
			content: "registry:\n  url: \"ws://supervisor/core/websocket\"\ninfluxdb:\n  enabled: true\n",
			wantErr: "influxdb.url is required when influxdb is enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOUSEKEEPER_REGISTRY_URL", "ws://override:8123/api/websocket")
	t.Setenv("HOUSEKEEPER_REGISTRY_TOKEN", "env-token")
	t.Setenv("HOUSEKEEPER_DATABASE_PATH", "/env/housekeeper.db")
	t.Setenv("HOUSEKEEPER_MQTT_HOST", "broker.env")

	cfg, err := Load(writeConfig(t, "registry:\n  url: \"ws://file/websocket\"\n  token: \"file-token\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.URL != "ws://override:8123/api/websocket" {
		t.Errorf("Registry.URL = %q, want env override", cfg.Registry.URL)
	}
	if cfg.Registry.Token != "env-token" {
		t.Errorf("Registry.Token = %q, want env override", cfg.Registry.Token)
	}
	if cfg.Database.Path != "/env/housekeeper.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.env" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

func TestLoad_SupervisorTokenFallback(t *testing.T) {
	t.Setenv("HOUSEKEEPER_REGISTRY_TOKEN", "")
	t.Setenv("SUPERVISOR_TOKEN", "supervisor-token")

	cfg, err := Load(writeConfig(t, "registry:\n  url: \"ws://supervisor/core/websocket\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Registry.Token != "supervisor-token" {
		t.Errorf("Registry.Token = %q, want supervisor fallback", cfg.Registry.Token)
	}
}

func TestRegistryTimeoutHelpers(t *testing.T) {
	cfg := RegistryConfig{CallTimeout: 15, DialTimeout: 7}
	if cfg.GetCallTimeout() != 15*time.Second {
		t.Errorf("GetCallTimeout() = %v", cfg.GetCallTimeout())
	}
	if cfg.GetDialTimeout() != 7*time.Second {
		t.Errorf("GetDialTimeout() = %v", cfg.GetDialTimeout())
	}
}
