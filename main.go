//go:build tinygo

package main

// WARNING: default -scheduler=cores unsupported, compile with -scheduler=tasks set!

import (
	"context"
	"fmt"
	"log/slog"
	"machine"
	"net/netip"
	"time"

	"openenterprise/webota/config"
	"openenterprise/webota/console"
	"openenterprise/webota/credentials"
	"openenterprise/webota/diag"
	"openenterprise/webota/httpwire"
	"openenterprise/webota/mqttlink"
	"openenterprise/webota/ota"
	"openenterprise/webota/update"
	"openenterprise/webota/version"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
)

const (
	pollTime        = 5 * time.Millisecond
	measureInterval = 5 * time.Second // keeps the 8s watchdog fed
	pinLED          = machine.GP2
)

var requestedIP = [4]byte{192, 168, 1, 99}

// systemHealthy stops the watchdog feed when false, resetting the board.
var systemHealthy = true

// fatalError handles unrecoverable errors by waiting for watchdog reset
// with a software reset fallback. This ensures the device always recovers.
func fatalError(msg string) {
	println(msg)
	systemHealthy = false
	// Wait for watchdog timeout (8s timeout + margin)
	for i := 0; i < 15; i++ {
		time.Sleep(time.Second)
	}
	println("Watchdog timeout - forcing software reset...")
	ota.Reboot()
	for {
		time.Sleep(time.Second)
	}
}

func main() {
	// CRITICAL: confirm the partition before any delay. After an update
	// the bootrom reverts unless this runs within 16.7s of boot.
	confirmErr := ota.ConfirmPartition()

	time.Sleep(2 * time.Second) // Give time to connect to USB and monitor output.
	println("========================================")
	println("  webota")
	println("  Version:", version.String())
	println("  Git SHA:", version.GitSHA)
	println("  Built:  ", version.BuildDate)
	println("========================================")

	ring := &diag.Ring{}
	logger := slog.New(diag.NewHandler(machine.Serial, ring, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	// The cywnet library logs "packet dropped" at ERROR level which is
	// normal for WiFi, so the stack gets a logger above ERROR.
	netLogger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.Level(12),
	}))

	current := ota.CurrentPartition()
	if confirmErr != nil {
		logger.Error("ota:confirm-failed", slog.String("err", confirmErr.Error()))
	}
	logger.Info("ota:booted", slog.String("partition", ota.PartitionName(current)))

	pinLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	setLED := func(on bool) { pinLED.Set(on) }

	machine.Watchdog.Configure(machine.WatchdogConfig{
		TimeoutMillis: 8000,
	})
	machine.Watchdog.Start()
	logger.Info("init:watchdog-started")

	state := &deviceState{
		Partition: ota.PartitionName(current),
		Booted:    time.Now(),
	}
	p, err := newDevicePanel(config.DeviceName(), state, setLED)
	if err != nil {
		logger.Error("panel:setup-failed", slog.String("err", err.Error()))
		fatalError("Panel setup failed - waiting for reset...")
	}

	slot := ota.NewSlot(ota.ROMFlash{}, ota.TargetPartition(current))
	trigger := update.NewRebootTrigger(config.RestartDelay(), func() {
		if err := ota.RebootToPartition(slot.Partition()); err != nil {
			logger.Error("ota:reboot-failed", slog.String("err", err.Error()))
			ota.Reboot()
		}
	}, logger)
	session := update.NewSession(slot, trigger, logger)

	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = netLogger
	cystack, err := cywnet.NewConfiguredPicoWithStack(
		credentials.SSID(),
		credentials.Password(),
		devcfg,
		cywnet.StackConfig{
			Hostname:    p.DeviceName(),
			MaxTCPPorts: 3, // HTTP + debug console + MQTT
		},
	)
	if err != nil {
		logger.Error("wifi:setup-failed", slog.String("err", err.Error()))
		fatalError("WiFi setup failed - waiting for reset...")
	}

	// TinyGo's cyw43439 driver has no deinit; give pending packets time
	// to drain before the bootrom takes over.
	ota.SetBeforeReboot(func() {
		logger.Info("ota:wifi-shutdown")
		time.Sleep(100 * time.Millisecond)
	})

	go loopForeverStack(cystack)

	dhcpResults, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{
		RequestedAddr: netip.AddrFrom4(requestedIP),
	})
	if err != nil {
		logger.Error("dhcp:failed", slog.String("err", err.Error()))
		fatalError("DHCP failed - waiting for reset...")
	}
	state.Address = dhcpResults.AssignedAddr.String()
	logger.Info("dhcp:complete", slog.String("addr", state.Address))

	stack := cystack.LnetoStack()

	go panelServer(stack, config.HTTPPort(), httpwire.NewHandler(p, session, logger), logger)

	if pw := credentials.ConsolePassword(); pw != "" {
		c := console.New(p, session, logger)
		c.Ring = ring
		c.Password = pw
		c.Storage = func() string {
			return fmt.Sprintf("flash partition %s", ota.PartitionName(slot.Partition()))
		}
		c.Reboot = ota.Reboot
		go consoleServer(stack, c, logger)
	} else {
		logger.Warn("console:disabled", slog.String("reason", "no console password"))
	}

	if config.MQTTEnabled() {
		broker, err := config.BrokerAddr()
		if err != nil {
			logger.Error("config:broker-invalid", slog.String("err", err.Error()))
		} else {
			link := mqttlink.New(p, session, mqttlink.Config{
				ClientID: config.ClientID(),
				Prefix:   config.MQTTPrefix(),
				Interval: config.MQTTInterval(),
			}, logger)
			go link.Run(context.Background(), mqttDialer(stack, broker, logger))
		}
	}

	logger.Info("init:complete", slog.String("device", p.DeviceName()))

	for {
		feedWatchdogIfHealthy()
		state.Temperature = float32(machine.ReadTemperature()) / 1000
		time.Sleep(measureInterval)
	}
}

// feedWatchdogIfHealthy only feeds the watchdog if the system is healthy.
// When unhealthy, the watchdog will timeout and reset the device.
func feedWatchdogIfHealthy() {
	if systemHealthy {
		machine.Watchdog.Update()
	}
}

// loopForeverStack processes network packets in the background
func loopForeverStack(stack *cywnet.Stack) {
	var count int
	for {
		send, recv, _ := stack.RecvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
		// Update watchdog every ~100 iterations (~500ms)
		count++
		if count >= 100 {
			feedWatchdogIfHealthy()
			count = 0
		}
	}
}
