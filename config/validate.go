package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
)

// Validate checks the configuration without changing it. Empty fields are
// accepted; Normalize fills them.
func Validate(cfg *Host) error {
	if cfg.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
			return fmt.Errorf("listen %q: %w", cfg.Listen, err)
		}
	}
	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("log_level %q: %w", cfg.LogLevel, err)
		}
	}

	switch cfg.Storage.Backend {
	case "", BackendFile:
	case BackendMemory:
		if cfg.Storage.Limit == 0 {
			return fmt.Errorf("storage: memory backend needs a limit")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}

	switch cfg.Restart.Mode {
	case "", RestartExec, RestartExit, RestartNone:
	default:
		return fmt.Errorf("restart: unknown mode %q", cfg.Restart.Mode)
	}
	if cfg.Restart.Delay < 0 {
		return fmt.Errorf("restart: negative delay %s", cfg.Restart.Delay)
	}

	if cfg.MQTT.Broker != "" {
		if _, err := netip.ParseAddrPort(cfg.MQTT.Broker); err != nil {
			return fmt.Errorf("mqtt: broker %q must be ip:port: %w", cfg.MQTT.Broker, err)
		}
	}
	if cfg.MQTT.Interval < 0 {
		return fmt.Errorf("mqtt: negative interval %s", cfg.MQTT.Interval)
	}

	if cfg.Console.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Console.Listen); err != nil {
			return fmt.Errorf("console: listen %q: %w", cfg.Console.Listen, err)
		}
		if cfg.Console.Password == "" {
			return fmt.Errorf("console: password required when listening")
		}
	}
	return nil
}
