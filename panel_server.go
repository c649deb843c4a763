//go:build tinygo

package main

import (
	"io"
	"log/slog"
	"time"

	"openenterprise/webota/httpwire"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	// One full upload chunk plus request head room.
	httpRxBufSize = 4096 + 1024
	httpTxBufSize = 2048
	// httpIdleTimeout bounds the wait for each read, including the pauses
	// a client sees while a flash sector is erased.
	httpIdleTimeout = 30 * time.Second
)

var (
	httpRxBuf [httpRxBufSize]byte
	httpTxBuf [httpTxBufSize]byte
)

// panelServer accepts one HTTP connection at a time on port and serves it
// with h. It never returns.
func panelServer(stack *xnet.StackAsync, port uint16, h *httpwire.Handler, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("http:panic-recovered")
		}
	}()

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             httpRxBuf[:],
		TxBuf:             httpTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		logger.Error("http:configure-failed", slog.String("err", err.Error()))
		return
	}
	logger.Info("http:listening", slog.Int("port", int(port)))

	for {
		ok, err := acceptTCP(stack, &conn, port)
		if err != nil {
			logger.Error("http:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}
		if !ok {
			continue
		}
		logger.Debug("http:connected", slog.String("ip", remoteIP(conn.RemoteAddr())))

		sc := &streamConn{conn: &conn, idle: httpIdleTimeout}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("http:session-panic")
				}
			}()
			if err := h.Serve(sc); err != nil && err != io.EOF {
				logger.Debug("http:serve-failed", slog.String("err", err.Error()))
			}
		}()
		sc.Close()
	}
}
