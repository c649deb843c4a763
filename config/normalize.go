package config

// Host defaults
const (
	DefaultListen     = ":8080"
	DefaultStorageDir = "/var/lib/webota"
)

// Normalize fills defaults. Call it only after Validate.
func Normalize(cfg *Host) {
	if cfg == nil {
		return
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendFile
	}
	if cfg.Storage.Backend == BackendFile && cfg.Storage.Dir == "" {
		cfg.Storage.Dir = DefaultStorageDir
	}
	if cfg.Restart.Mode == "" {
		cfg.Restart.Mode = RestartExec
	}
	if cfg.Restart.Delay == 0 {
		cfg.Restart.Delay = DefaultRestartDelay
	}
	if cfg.MQTT.Prefix == "" {
		cfg.MQTT.Prefix = DefaultMQTTPrefix
	}
	if cfg.MQTT.Interval == 0 {
		cfg.MQTT.Interval = DefaultMQTTInterval
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.DeviceName
	}
	if cfg.MDNS.Instance == "" {
		cfg.MDNS.Instance = cfg.DeviceName
	}
}
