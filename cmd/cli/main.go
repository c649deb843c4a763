// Command webota-cli talks to a webota panel: it pushes firmware, reads
// readouts, presses buttons and drives the telnet debug console.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultTimeout = 10 * time.Second
	passwordEnv    = "WEBOTA_PASSWORD"
)

var (
	rootCmd = &cobra.Command{
		Use:           "webota-cli",
		Short:         "Push firmware to and inspect webota devices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent CLI Flags.
	timeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "network timeout for connecting and short requests")
}

func main() {
	// Load .env file before parsing flags
	loadEnvFile(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// baseURL turns "host", "host:port" or a full URL into the panel's base URL
// without a trailing slash.
func baseURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return "http://" + strings.TrimSuffix(host, "/")
}

// consoleAddr returns host with the telnet port added unless it has one.
func consoleAddr(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}

func httpClient(t time.Duration) *http.Client {
	return &http.Client{Timeout: t}
}

// loadEnvFile loads environment variables from a dotenv file. Variables
// already set are left alone.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist or can't be read, that's fine
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
