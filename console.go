//go:build tinygo

package main

import (
	"errors"
	"log/slog"
	"time"

	"openenterprise/webota/console"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	consolePort    = uint16(23) // Telnet port
	consoleBufSize = 1024
	// consoleIdleTimeout drops a session nobody is typing into.
	consoleIdleTimeout = 10 * time.Minute
)

var (
	consoleRxBuf [consoleBufSize]byte
	consoleTxBuf [consoleBufSize]byte
)

// consoleServer serves the debug console one session at a time. It never
// returns.
func consoleServer(stack *xnet.StackAsync, c *console.Console, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("console:panic-recovered")
		}
	}()

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             consoleRxBuf[:],
		TxBuf:             consoleTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		logger.Error("console:configure-failed", slog.String("err", err.Error()))
		return
	}
	logger.Info("console:listening", slog.Int("port", int(consolePort)))

	for {
		ok, err := acceptTCP(stack, &conn, consolePort)
		if err != nil {
			logger.Error("console:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}
		if !ok {
			continue
		}
		logger.Info("console:connected", slog.String("ip", remoteIP(conn.RemoteAddr())))

		sc := &streamConn{conn: &conn, idle: consoleIdleTimeout}
		err = c.Serve(sc)
		switch {
		case err == nil, errors.Is(err, console.ErrQuit):
			logger.Info("console:disconnected")
		case errors.Is(err, console.ErrAuthFailed):
			logger.Info("console:auth-failed", slog.Int("failures", c.Guard.Failures()))
		case errors.Is(err, console.ErrLockedOut):
			logger.Info("console:lockout", slog.Duration("remaining", c.Guard.Remaining()))
		default:
			logger.Warn("console:session-ended", slog.String("err", err.Error()))
		}
		sc.Close()
	}
}
