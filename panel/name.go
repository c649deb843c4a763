//go:build !tinygo

package panel

import "os"

// DefaultDeviceName is the page title used when none is configured: the
// host name, or "webota" if it cannot be read.
func DefaultDeviceName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "webota"
	}
	return name
}
