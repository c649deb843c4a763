package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override string
		def      time.Duration
		want     time.Duration
	}{
		{"empty", "", time.Second, time.Second},
		{"whitespace", " \n", time.Second, time.Second},
		{"valid", "250ms\n", time.Second, 250 * time.Millisecond},
		{"invalid", "soon", time.Second, time.Second},
		{"negative", "-1s", time.Second, time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := durationOr(tc.override, tc.def); got != tc.want {
				t.Errorf("durationOr(%q) = %v, want %v", tc.override, got, tc.want)
			}
		})
	}

	ports := []struct {
		override string
		want     uint16
	}{
		{"", 80},
		{"8080\n", 8080},
		{"0", 80},
		{"70000", 80},
		{"http", 80},
	}
	for _, tc := range ports {
		if got := portOr(tc.override, 80); got != tc.want {
			t.Errorf("portOr(%q) = %d, want %d", tc.override, got, tc.want)
		}
	}

	if got := stringOr("  kitchen \n", "x"); got != "kitchen" {
		t.Errorf("stringOr = %q", got)
	}
}

func TestDeviceDefaults(t *testing.T) {
	// The checked-in .text files are empty.
	if got := HTTPPort(); got != DefaultHTTPPort {
		t.Errorf("HTTPPort() = %d", got)
	}
	if got := MQTTPrefix(); got != DefaultMQTTPrefix {
		t.Errorf("MQTTPrefix() = %q", got)
	}
	if got := RestartDelay(); got != DefaultRestartDelay {
		t.Errorf("RestartDelay() = %v", got)
	}
	if MQTTEnabled() {
		t.Error("MQTTEnabled() with empty broker.text")
	}
}

const sampleConfig = `
listen: "127.0.0.1:8080"
device_name: bench-rig
log_level: debug
metrics: true
storage:
  backend: file
  dir: /tmp/webota
  limit: 2097152
restart:
  mode: exit
  delay: 250ms
mqtt:
  broker: "192.168.1.10:1883"
  interval: 10s
mdns:
  enabled: true
console:
  listen: ":2323"
  password: hunter2
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webotad.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)

	want := &Host{
		Listen:     "127.0.0.1:8080",
		DeviceName: "bench-rig",
		LogLevel:   "debug",
		Metrics:    true,
		Storage:    StorageConfig{Backend: BackendFile, Dir: "/tmp/webota", Limit: 2 << 20},
		Restart:    RestartConfig{Mode: RestartExit, Delay: 250 * time.Millisecond},
		MQTT: MQTTConfig{
			Broker:   "192.168.1.10:1883",
			ClientID: "bench-rig",
			Prefix:   DefaultMQTTPrefix,
			Interval: 10 * time.Second,
		},
		MDNS:    MDNSConfig{Enabled: true, Instance: "bench-rig"},
		Console: ConsoleConfig{Listen: ":2323", Password: "hunter2"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v", cfg.SlogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("listen: [")); err == nil {
		t.Error("expected error for bad yaml")
	}
	if _, err := Parse([]byte("lisen: :80")); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestNormalizeEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)

	if cfg.Listen != DefaultListen || cfg.Storage.Backend != BackendFile ||
		cfg.Storage.Dir != DefaultStorageDir || cfg.Restart.Mode != RestartExec ||
		cfg.Restart.Delay != DefaultRestartDelay || cfg.MQTT.Interval != DefaultMQTTInterval {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v", cfg.SlogLevel())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Host
		wantErr string
	}{
		{"empty ok", Host{}, ""},
		{"bad listen", Host{Listen: "8080"}, "listen"},
		{"bad level", Host{LogLevel: "loud"}, "log_level"},
		{"bad backend", Host{Storage: StorageConfig{Backend: "s3"}}, "unknown backend"},
		{"memory needs limit", Host{Storage: StorageConfig{Backend: BackendMemory}}, "needs a limit"},
		{"memory ok", Host{Storage: StorageConfig{Backend: BackendMemory, Limit: 1 << 20}}, ""},
		{"bad restart", Host{Restart: RestartConfig{Mode: "reboot"}}, "unknown mode"},
		{"negative delay", Host{Restart: RestartConfig{Delay: -time.Second}}, "negative delay"},
		{"broker hostname", Host{MQTT: MQTTConfig{Broker: "broker.local:1883"}}, "ip:port"},
		{"console without password", Host{Console: ConsoleConfig{Listen: ":23"}}, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
