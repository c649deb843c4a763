package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/spf13/afero"

	"openenterprise/webota/config"
	"openenterprise/webota/console"
	"openenterprise/webota/diag"
	"openenterprise/webota/mqttlink"
	"openenterprise/webota/panel"
	"openenterprise/webota/server"
	"openenterprise/webota/storage/fileslot"
	"openenterprise/webota/storage/memslot"
	"openenterprise/webota/update"
	"openenterprise/webota/version"
)

const (
	shutdownTimeout = 5 * time.Second
	dialTimeout     = 10 * time.Second
)

// daemon owns everything webotad runs: the panel, the session, and the
// transports serving them.
type daemon struct {
	cfg     *config.Host
	logger  *slog.Logger
	started time.Time

	panel   *panel.Panel
	session *update.Session
	trigger *update.RebootTrigger
	server  *server.Server
	console *console.Console
	link    *mqttlink.Link

	// describe and digest report on the storage backend.
	describe func() string
	digest   func() []byte

	mu         sync.Mutex
	consoleLn  net.Listener
	activeConn net.Conn
}

func newDaemon(cfg *config.Host, ring *diag.Ring, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		started: time.Now(),
	}

	storage, err := d.openStorage()
	if err != nil {
		return nil, err
	}
	restart, err := restartFunc(cfg.Restart.Mode, logger)
	if err != nil {
		return nil, err
	}
	d.trigger = update.NewRebootTrigger(cfg.Restart.Delay, restart, logger)
	d.session = update.NewSession(storage, d.trigger, logger)

	d.panel = panel.New(cfg.DeviceName)
	if err := d.populatePanel(); err != nil {
		return nil, err
	}

	d.server = server.New(d.panel, d.session, server.Options{
		Addr:    cfg.Listen,
		Metrics: cfg.Metrics,
	}, logger)

	if cfg.Console.Listen != "" {
		c := console.New(d.panel, d.session, logger)
		c.Ring = ring
		c.Password = cfg.Console.Password
		c.Storage = d.describe
		c.Reboot = restart
		d.console = c
	}

	if cfg.MQTT.Broker != "" {
		d.link = mqttlink.New(d.panel, d.session, mqttlink.Config{
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
			Interval: cfg.MQTT.Interval,
		}, logger)
	}
	return d, nil
}

// openStorage builds the configured backend.
func (d *daemon) openStorage() (update.Storage, error) {
	st := d.cfg.Storage
	switch st.Backend {
	case config.BackendMemory:
		slot := memslot.New(st.Limit)
		d.describe = func() string {
			return fmt.Sprintf("memory (%d bytes)", st.Limit)
		}
		d.digest = func() []byte {
			if slot.Image() == nil {
				return nil
			}
			sum := slot.Digest()
			return sum[:]
		}
		return slot, nil
	case config.BackendFile:
		var opts []fileslot.Option
		if st.Limit > 0 {
			opts = append(opts, fileslot.WithLimit(st.Limit))
		}
		slot := fileslot.New(afero.NewOsFs(), st.Dir, opts...)
		d.describe = func() string {
			return "file " + slot.Path()
		}
		d.digest = slot.Digest
		return slot, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", st.Backend)
	}
}

// populatePanel adds the host's readouts and buttons.
func (d *daemon) populatePanel() error {
	d.panel.AddReadout("Version", panel.Func(version.String))
	d.panel.AddReadout("Uptime", panel.Func(func() string {
		return time.Since(d.started).Truncate(time.Second).String()
	}))
	d.panel.AddReadout("Update", panel.Func(func() string {
		return d.session.State().String()
	}))
	d.panel.AddReadout("Image", panel.Func(func() string {
		sum := d.digest()
		if sum == nil {
			return "none"
		}
		return fmt.Sprintf("%x", sum[:8])
	}))
	d.panel.AddReadout("Restart pending", panel.Func(func() string {
		if d.trigger.Scheduled() {
			return "yes"
		}
		return "no"
	}))
	return d.panel.AddButton("reset-update", "Reset update", d.session.Reset)
}

// run starts every transport and blocks until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	d.logger.Info("webotad:started",
		slog.String("device", d.panel.DeviceName()),
		slog.String("version", version.String()),
		slog.String("storage", d.describe()))

	var wg sync.WaitGroup
	var mdns *advertiser
	if d.cfg.MDNS.Enabled {
		var err error
		mdns, err = advertise(d.cfg.MDNS.Instance, d.panel.DeviceName(), d.server.Addr(), d.logger)
		if err != nil {
			d.logger.Warn("mdns:register-failed", slog.String("err", err.Error()))
		}
	}

	if d.console != nil {
		ln, err := net.Listen("tcp", d.cfg.Console.Listen)
		if err != nil {
			d.shutdown(mdns)
			return fmt.Errorf("console: %w", err)
		}
		d.mu.Lock()
		d.consoleLn = ln
		d.mu.Unlock()
		d.logger.Info("console:listening", slog.String("addr", ln.Addr().String()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveConsole(ln)
		}()
	}

	if d.link != nil {
		broker := d.cfg.MQTT.Broker
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.link.Run(ctx, func(ctx context.Context) (io.ReadWriteCloser, error) {
				dialer := net.Dialer{Timeout: dialTimeout}
				return dialer.DialContext(ctx, "tcp", broker)
			})
		}()
	}

	<-ctx.Done()
	err := d.shutdown(mdns)
	wg.Wait()
	d.logger.Info("webotad:stopped")
	return err
}

// serveConsole accepts one console session at a time until ln is closed.
func (d *daemon) serveConsole(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.logger.Error("console:accept-failed", slog.String("err", err.Error()))
			}
			return
		}
		d.mu.Lock()
		d.activeConn = conn
		d.mu.Unlock()

		d.logger.Info("console:connected", slog.String("remote", conn.RemoteAddr().String()))
		err = d.console.Serve(conn)
		switch {
		case err == nil, errors.Is(err, console.ErrQuit):
		case errors.Is(err, console.ErrAuthFailed), errors.Is(err, console.ErrLockedOut):
			d.logger.Warn("console:rejected", slog.String("err", err.Error()))
		default:
			d.logger.Debug("console:closed", slog.String("err", err.Error()))
		}
		conn.Close()

		d.mu.Lock()
		d.activeConn = nil
		d.mu.Unlock()
	}
}

// httpAddr returns the HTTP listener address once running.
func (d *daemon) httpAddr() net.Addr {
	return d.server.Addr()
}

// consoleAddr returns the console listener address once running.
func (d *daemon) consoleAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.consoleLn == nil {
		return nil
	}
	return d.consoleLn.Addr()
}

func (d *daemon) shutdown(mdns *advertiser) error {
	mdns.Close()

	d.mu.Lock()
	if d.consoleLn != nil {
		d.consoleLn.Close()
	}
	if d.activeConn != nil {
		d.activeConn.Close()
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.server.Shutdown(ctx)
}
