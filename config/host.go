// Package config holds device settings baked in at build time and the
// host daemon's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Host is the webotad configuration file.
type Host struct {
	Listen     string        `yaml:"listen"`
	DeviceName string        `yaml:"device_name"`
	LogLevel   string        `yaml:"log_level"`
	Metrics    bool          `yaml:"metrics"`
	Storage    StorageConfig `yaml:"storage"`
	Restart    RestartConfig `yaml:"restart"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
	MDNS       MDNSConfig    `yaml:"mdns"`
	Console    ConsoleConfig `yaml:"console"`
}

// ---- STORAGE ----

// Storage backends
const (
	BackendFile   = "file"
	BackendMemory = "memory"
)

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// Limit caps the space offered to an upload, 0 for the filesystem's
	// free space. For the memory backend it is the slot size.
	Limit uint32 `yaml:"limit"`
}

// ---- RESTART ----

// Restart modes
const (
	RestartExec = "exec"
	RestartExit = "exit"
	RestartNone = "none"
)

type RestartConfig struct {
	Mode  string        `yaml:"mode"`
	Delay time.Duration `yaml:"delay"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Prefix   string        `yaml:"prefix"`
	Interval time.Duration `yaml:"interval"`
}

// ---- MDNS ----

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// ---- CONSOLE ----

type ConsoleConfig struct {
	Listen   string `yaml:"listen"`
	Password string `yaml:"password"`
}

// Load reads and decodes the YAML file at path. Unknown keys are errors.
// Call Validate and then Normalize on the result.
func Load(path string) (*Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Host, error) {
	cfg := &Host{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// SlogLevel returns the configured log level, INFO if unset.
func (h *Host) SlogLevel() slog.Level {
	var level slog.Level
	if h.LogLevel == "" || level.UnmarshalText([]byte(h.LogLevel)) != nil {
		return slog.LevelInfo
	}
	return level
}
