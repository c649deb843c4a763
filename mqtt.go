//go:build tinygo

package main

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"openenterprise/webota/mqttlink"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	mqttDialTimeout = 10 * time.Second
	mqttDialRetries = 3
	tcpBufSize      = 2030 // MTU - ethhdr - iphdr - tcphdr
)

var (
	mqttRxBuf [tcpBufSize]byte
	mqttTxBuf [tcpBufSize]byte
)

// mqttDialer returns a dialer for the broker. The link holds at most one
// connection, so every dial reuses the same buffers.
func mqttDialer(stack *xnet.StackAsync, broker netip.AddrPort, logger *slog.Logger) mqttlink.Dialer {
	rstack := stack.StackRetrying(5 * time.Millisecond)
	var conn tcp.Conn
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn.Abort()
		err := conn.Configure(tcp.ConnConfig{
			RxBuf:             mqttRxBuf[:],
			TxBuf:             mqttTxBuf[:],
			TxPacketQueueSize: 3,
		})
		if err != nil {
			return nil, err
		}

		lport := localPort(stack.Prand32())
		logger.Info("mqtt:dialing",
			slog.String("broker", broker.String()),
			slog.Uint64("localport", uint64(lport)),
		)
		err = rstack.DoDialTCP(&conn, lport, broker, mqttDialTimeout, mqttDialRetries)
		if err != nil {
			closeBrokerConn(&conn, stack, broker)
			return nil, err
		}
		return &brokerConn{
			streamConn: streamConn{conn: &conn},
			stack:      stack,
			broker:     broker,
		}, nil
	}
}

// brokerConn also frees the broker's ARP slot when closed.
type brokerConn struct {
	streamConn
	stack  *xnet.StackAsync
	broker netip.AddrPort
}

func (c *brokerConn) Close() error {
	closeBrokerConn(c.conn, c.stack, c.broker)
	return nil
}

func closeBrokerConn(conn *tcp.Conn, stack *xnet.StackAsync, addr netip.AddrPort) {
	conn.Close()
	for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()

	// Discard ARP query to free slot for next connection
	stack.DiscardResolveHardwareAddress6(addr.Addr())
}
