//go:build tinygo

package panel

// DefaultDeviceName is the page title used when none is configured.
func DefaultDeviceName() string {
	return "RP2350"
}
