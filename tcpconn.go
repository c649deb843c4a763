//go:build tinygo

package main

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const connPollTime = 10 * time.Millisecond

// streamConn makes a polled lneto connection look like a blocking stream
// so the console, HTTP and MQTT code can use it as an io.ReadWriter.
type streamConn struct {
	conn     *tcp.Conn
	deadline time.Time
	// idle bounds a single Read when no deadline is set.
	idle time.Duration
}

func (c *streamConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	limit := c.deadline
	if c.idle > 0 {
		if idle := time.Now().Add(c.idle); limit.IsZero() || idle.Before(limit) {
			limit = idle
		}
	}
	for {
		n, err := c.conn.Read(p)
		if n > 0 {
			return n, nil
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		// RxDataOpen goes false in CLOSE_WAIT, once the peer has hung up.
		st := c.conn.State()
		if st.IsClosed() || st.IsClosing() || !st.RxDataOpen() {
			return 0, io.EOF
		}
		if !limit.IsZero() && time.Now().After(limit) {
			return 0, os.ErrDeadlineExceeded
		}
		time.Sleep(connPollTime)
	}
}

func (c *streamConn) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	if err != nil {
		return n, err
	}
	c.conn.Flush()
	return n, nil
}

// SetDeadline bounds every following Read. The zero time removes the bound.
func (c *streamConn) SetDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.SetDeadline(t)
}

// Close starts a graceful close and aborts if the peer does not finish it.
func (c *streamConn) Close() error {
	c.conn.Close()
	for i := 0; i < 30 && !c.conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	c.conn.Abort()
	return nil
}

// acceptTCP listens on port and waits for a peer. It returns false if the
// handshake did not complete, leaving conn aborted.
func acceptTCP(stack *xnet.StackAsync, conn *tcp.Conn, port uint16) (bool, error) {
	conn.Abort()
	time.Sleep(100 * time.Millisecond)
	if err := stack.ListenTCP(conn, port); err != nil {
		return false, err
	}
	for i := 0; i < 6000 && conn.State().IsPreestablished(); i++ {
		time.Sleep(connPollTime)
	}
	if !conn.State().IsSynchronized() {
		conn.Abort()
		return false, nil
	}
	return true, nil
}
