// Package credentials holds secrets compiled into the device image. Create
// ssid.text, password.text and console_password.text in this directory
// before building; keep them out of version control.
package credentials

import (
	_ "embed"
	"strings"
)

var (
	//go:embed ssid.text
	ssid string
	//go:embed password.text
	pass string
	//go:embed console_password.text
	consolePass string
)

// SSID returns the Wi-Fi network name.
func SSID() string {
	return strings.TrimSpace(ssid)
}

// Password returns the Wi-Fi passphrase.
func Password() string {
	return strings.TrimSpace(pass)
}

// ConsolePassword returns the debug console password. An empty password
// disables the console.
func ConsolePassword() string {
	return strings.TrimSpace(consolePass)
}
