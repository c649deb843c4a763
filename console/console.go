// Package console implements the password protected debug console served
// over telnet. It shows the panel's readouts, presses its buttons and
// reports on the firmware update session.
package console

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"openenterprise/webota/diag"
	"openenterprise/webota/panel"
	"openenterprise/webota/update"
	"openenterprise/webota/version"
)

// AuthTimeout bounds the password prompt.
const AuthTimeout = 10 * time.Second

const maxPasswordLen = 64

var (
	ErrLockedOut  = errors.New("console: locked out")
	ErrAuthFailed = errors.New("console: authentication failed")
	ErrQuit       = errors.New("console: quit")
)

// Console commands
const (
	cmdHelp     = "help"
	cmdVersion  = "version"
	cmdStatus   = "status"
	cmdOTA      = "ota"
	cmdOTAReset = "ota-reset"
	cmdReadouts = "readouts"
	cmdPress    = "press"
	cmdLog      = "log"
	cmdReboot   = "reboot"
	cmdQuit     = "quit"
	cmdExit     = "exit"
)

// Console serves one session at a time. Fields left nil disable the commands
// that need them.
type Console struct {
	Panel   *panel.Panel
	Session *update.Session
	Ring    *diag.Ring
	Guard   *Guard
	Logger  *slog.Logger

	// Password protects the console; empty disables the prompt.
	Password string
	// Storage describes where uploads are written, shown by "ota".
	Storage func() string
	// Reboot restarts the device.
	Reboot func()

	started time.Time
	now     func() time.Time
}

// New returns a console for p and s. The uptime clock starts now.
func New(p *panel.Panel, s *update.Session, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		Panel:   p,
		Session: s,
		Guard:   NewGuard(),
		Logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// Serve runs a session over rw until the peer disconnects or quits.
func (c *Console) Serve(rw io.ReadWriter) error {
	w := bufio.NewWriterSize(rw, 512)
	lr := &lineReader{r: rw}

	if c.Guard != nil {
		if left := c.Guard.Remaining(); left > 0 {
			c.log().Info("console:lockout",
				slog.Int("failures", c.Guard.Failures()),
				slog.Duration("remaining", left),
			)
			fmt.Fprintf(w, "Locked out, retry in %ds\r\n", int(left.Seconds())+1)
			w.Flush()
			return ErrLockedOut
		}
	}

	if c.Password != "" {
		if err := c.authenticate(rw, w, lr); err != nil {
			return err
		}
		c.log().Info("console:authenticated")
	}

	fmt.Fprintf(w, "%s debug console\r\nType 'help' for commands\r\n> ", c.deviceName())
	if err := w.Flush(); err != nil {
		return err
	}

	for {
		line, err := lr.next()
		if errors.Is(err, ErrLineTooLong) {
			w.WriteString("\r\nLine too long\r\n> ")
			w.Flush()
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := c.Exec(w, line); errors.Is(err, ErrQuit) {
			w.WriteString("Bye\r\n")
			w.Flush()
			return nil
		}
		w.WriteString("> ")
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

func (c *Console) authenticate(rw io.ReadWriter, w *bufio.Writer, lr *lineReader) error {
	w.Write(telnetWillEcho)
	w.WriteString("Password: ")
	w.Flush()

	if d, ok := rw.(readDeadliner); ok {
		d.SetReadDeadline(c.clock().Add(AuthTimeout))
		defer d.SetReadDeadline(time.Time{})
	}
	password, err := lr.next()

	w.Write(telnetWontEcho)
	w.WriteString("\r\n")
	w.Flush()

	if err == nil && len(password) <= maxPasswordLen &&
		subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1 {
		if c.Guard != nil {
			c.Guard.Succeed()
		}
		return nil
	}

	failures := 0
	if c.Guard != nil {
		c.Guard.Fail()
		failures = c.Guard.Failures()
	}
	c.log().Info("console:auth-failed", slog.Int("failures", failures))
	if err != nil && !errors.Is(err, ErrLineTooLong) {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return ErrAuthFailed
}

// Exec runs one command line, writing its output to w. It returns ErrQuit
// when the session should end.
func (c *Console) Exec(w io.Writer, line string) error {
	defer func() {
		if r := recover(); r != nil {
			c.log().Error("console:command-panic", slog.String("cmd", line))
		}
	}()

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
	case cmdHelp:
		io.WriteString(w, "Commands: help version status ota readouts log\r\n")
		io.WriteString(w, "  press <id>, ota-reset, reboot, quit\r\n")

	case cmdVersion:
		fmt.Fprintf(w, "%s\r\n  Version: %s\r\n", c.deviceName(), version.String())

	case cmdStatus:
		fmt.Fprintf(w, "Device:  %s\r\n", c.deviceName())
		fmt.Fprintf(w, "Uptime:  %s\r\n", formatUptime(c.clock().Sub(c.started)))
		if c.Session != nil {
			st := c.Session.Snapshot()
			fmt.Fprintf(w, "Upload:  %s (%d bytes)\r\n", st.State, st.BytesWritten)
		}
		if c.Panel != nil {
			fmt.Fprintf(w, "Readouts: %d, buttons: %d\r\n", len(c.Panel.Values()), len(c.Panel.Buttons()))
		}

	case cmdOTA:
		c.writeOTA(w)

	case cmdOTAReset:
		if c.Session == nil {
			io.WriteString(w, "No update session\r\n")
			return nil
		}
		c.Session.Reset()
		io.WriteString(w, "Update session reset\r\n")

	case cmdReadouts:
		if c.Panel == nil {
			io.WriteString(w, "No panel\r\n")
			return nil
		}
		values := c.Panel.Values()
		if len(values) == 0 {
			io.WriteString(w, "No readouts\r\n")
		}
		for _, v := range values {
			fmt.Fprintf(w, "  %s: %s\r\n", v.Label, v.Value)
		}

	case cmdPress:
		switch {
		case arg == "":
			c.writeButtons(w)
		case c.Panel != nil && c.Panel.Press(arg):
			c.log().Info("console:press", slog.String("id", arg))
			fmt.Fprintf(w, "%s pressed\r\n", arg)
		default:
			fmt.Fprintf(w, "Unknown button: %s\r\n", arg)
		}

	case cmdLog:
		c.writeLog(w)

	case cmdReboot:
		if c.Reboot == nil {
			io.WriteString(w, "Reboot not supported\r\n")
			return nil
		}
		io.WriteString(w, "Rebooting device...\r\n")
		if f, ok := w.(interface{ Flush() error }); ok {
			f.Flush()
		}
		c.log().Info("console:reboot")
		c.Reboot()

	case cmdQuit, cmdExit:
		return ErrQuit

	default:
		fmt.Fprintf(w, "Unknown command: %s\r\nType 'help' for commands\r\n", cmd)
	}
	return nil
}

func (c *Console) writeOTA(w io.Writer) {
	io.WriteString(w, "OTA Status:\r\n")
	if c.Storage != nil {
		fmt.Fprintf(w, "  Storage:  %s\r\n", c.Storage())
	}
	if c.Session == nil {
		io.WriteString(w, "  Session:  none\r\n")
		return
	}
	st := c.Session.Snapshot()
	fmt.Fprintf(w, "  State:    %s\r\n", st.State)
	if st.ID == "" {
		return
	}
	fmt.Fprintf(w, "  Session:  %s\r\n", st.ID)
	if st.Filename != "" {
		fmt.Fprintf(w, "  File:     %s\r\n", st.Filename)
	}
	fmt.Fprintf(w, "  Written:  %d / %d bytes\r\n", st.BytesWritten, st.Capacity)
	if st.LastError != update.ErrNone {
		fmt.Fprintf(w, "  Error:    %s\r\n", st.LastError)
		if st.Err != nil {
			fmt.Fprintf(w, "  Cause:    %s\r\n", st.Err)
		}
	}
	if !st.Started.IsZero() {
		fmt.Fprintf(w, "  Started:  %s\r\n", st.Started.Format("15:04:05"))
	}
	if !st.Finished.IsZero() {
		fmt.Fprintf(w, "  Finished: %s (%s)\r\n", st.Finished.Format("15:04:05"),
			st.Finished.Sub(st.Started).Round(time.Millisecond))
	}
}

func (c *Console) writeButtons(w io.Writer) {
	if c.Panel == nil || len(c.Panel.Buttons()) == 0 {
		io.WriteString(w, "No buttons\r\n")
		return
	}
	io.WriteString(w, "Usage: press <id>\r\n")
	for _, b := range c.Panel.Buttons() {
		fmt.Fprintf(w, "  %s: %s\r\n", b.ID, b.Label)
	}
}

func (c *Console) writeLog(w io.Writer) {
	if c.Ring == nil || c.Ring.Len() == 0 {
		io.WriteString(w, "No log entries\r\n")
		return
	}
	for _, e := range c.Ring.Recent() {
		fmt.Fprintf(w, "%s %-5s %s\r\n", e.Time.Format("15:04:05"), e.Level, e.Message)
	}
}

func (c *Console) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Console) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Console) deviceName() string {
	if c.Panel == nil {
		return panel.DefaultDeviceName()
	}
	return c.Panel.DeviceName()
}

// formatUptime renders d as "1h 2m 3s".
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return strconv.Itoa(hours) + "h " + strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
