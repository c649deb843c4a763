package main

import (
	"net/netip"
	"time"

	"openenterprise/webota/panel"
	"openenterprise/webota/version"
)

// deviceState holds what the main loop measures. The panel reads it through
// pointers, so it lives for the whole program.
type deviceState struct {
	LED         bool
	Temperature float32
	Partition   string
	Address     string
	Booted      time.Time
}

func (st *deviceState) uptime() string {
	if st.Booted.IsZero() {
		return "0s"
	}
	return time.Since(st.Booted).Truncate(time.Second).String()
}

// newDevicePanel builds the board's web panel. setLED drives the LED pin
// and is called with the new state after every LED button press.
func newDevicePanel(name string, st *deviceState, setLED func(bool)) (*panel.Panel, error) {
	p := panel.New(name)
	p.AddReadout("Temperature", panel.Float(&st.Temperature, "C"))
	p.AddReadout("LED", panel.Bool(&st.LED, "on", "off"))
	p.AddReadout("Partition", panel.Text(&st.Partition))
	p.AddReadout("Address", panel.Text(&st.Address))
	p.AddReadout("Uptime", panel.Func(st.uptime))
	p.AddReadout("Version", panel.Func(version.String))

	led := func(on bool) func() {
		return func() {
			st.LED = on
			setLED(on)
		}
	}
	buttons := []struct {
		id, label string
		action    func()
	}{
		{"led-on", "LED on", led(true)},
		{"led-off", "LED off", led(false)},
		{"led-toggle", "Toggle LED", func() { led(!st.LED)() }},
	}
	for _, b := range buttons {
		if err := p.AddButton(b.id, b.label, b.action); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// remoteIP formats a peer address as reported by the TCP stack.
func remoteIP(addr []byte) string {
	ip, ok := netip.AddrFromSlice(addr)
	if !ok {
		return "unknown"
	}
	return ip.Unmap().String()
}

// localPort picks an ephemeral port from a random number.
func localPort(r uint32) uint16 {
	return uint16(r>>17) + 1024
}
