package config

import (
	_ "embed"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Device defaults, overridden by a non-empty value in the matching .text
// file.
const (
	DefaultHTTPPort     = 80
	DefaultMQTTPrefix   = "webota"
	DefaultMQTTInterval = 30 * time.Second
	DefaultRestartDelay = 100 * time.Millisecond
)

// Environment-specific settings. An empty broker.text disables MQTT.
var (
	//go:embed broker.text
	brokerAddr string

	//go:embed clientid.text
	clientID string
)

// Optional overrides (empty file = use default).
var (
	//go:embed device_name.text
	deviceNameOverride string

	//go:embed http_port.text
	httpPortOverride string

	//go:embed mqtt_prefix.text
	mqttPrefixOverride string

	//go:embed mqtt_interval.text
	mqttIntervalOverride string

	//go:embed restart_delay.text
	restartDelayOverride string
)

// DeviceName returns the page title from device_name.text, empty for the
// platform default.
func DeviceName() string {
	return strings.TrimSpace(deviceNameOverride)
}

// HTTPPort returns the panel port.
func HTTPPort() uint16 {
	return portOr(httpPortOverride, DefaultHTTPPort)
}

// BrokerAddr returns the MQTT broker from broker.text, "host:port".
func BrokerAddr() (netip.AddrPort, error) {
	return netip.ParseAddrPort(strings.TrimSpace(brokerAddr))
}

// MQTTEnabled reports whether a broker is configured.
func MQTTEnabled() bool {
	return strings.TrimSpace(brokerAddr) != ""
}

// ClientID returns the MQTT client ID from clientid.text.
func ClientID() string {
	return strings.TrimSpace(clientID)
}

// MQTTPrefix returns the topic prefix.
func MQTTPrefix() string {
	return stringOr(mqttPrefixOverride, DefaultMQTTPrefix)
}

// MQTTInterval returns how often readouts are published.
func MQTTInterval() time.Duration {
	return durationOr(mqttIntervalOverride, DefaultMQTTInterval)
}

// RestartDelay returns the grace period between a committed update and
// the reboot.
func RestartDelay() time.Duration {
	return durationOr(restartDelayOverride, DefaultRestartDelay)
}

func stringOr(override, def string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return def
}

func durationOr(override string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(override); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func portOr(override string, def uint16) uint16 {
	if v := strings.TrimSpace(override); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil && p != 0 {
			return uint16(p)
		}
	}
	return def
}
