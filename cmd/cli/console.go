package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	defaultConsolePort = "23"
	readTimeout        = 5 * time.Second
	devicePrompt       = "> "
)

var (
	consoleCmd = &cobra.Command{
		Use:   "console <host> [command...]",
		Short: "Run a debug console command, or an interactive session without one",
		Long: `Connects to the telnet debug console. The password is taken from
--password, the WEBOTA_PASSWORD environment variable (also read from .env),
or an interactive prompt when the device asks for one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := consoleAddr(args[0], consolePort)
			out := cmd.OutOrStdout()
			if len(args) > 1 {
				return runCommand(out, addr, strings.Join(args[1:], " "), getPassword)
			}
			return interactive(out, os.Stdin, addr, getPassword)
		},
	}

	consolePort     string
	consolePassword string
)

func init() {
	consoleCmd.Flags().StringVar(&consolePort, "port", defaultConsolePort, "console port when the host has none")
	consoleCmd.Flags().StringVar(&consolePassword, "password", "", "console password (or use "+passwordEnv+")")
	rootCmd.AddCommand(consoleCmd)
}

// getPassword resolves the password from various sources.
// Priority: flag > env > .env (already loaded) > interactive prompt
func getPassword() string {
	if consolePassword != "" {
		return consolePassword
	}
	if envPass := os.Getenv(passwordEnv); envPass != "" {
		return envPass
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return string(password)
		}
	}
	return ""
}

// dialConsole connects and logs in, leaving the session at its first prompt.
func dialConsole(addr string, password func() string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	if err := login(conn, password); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// login answers the password prompt if the device shows one and consumes
// the welcome banner.
func login(conn net.Conn, password func() string) error {
	banner, err := readUntil(conn, "Password: ", devicePrompt)
	if err != nil {
		return fmt.Errorf("read banner failed: %w", err)
	}
	if strings.Contains(banner, "Locked out") {
		return errors.New(strings.TrimSpace(banner))
	}
	if !strings.HasSuffix(banner, "Password: ") {
		return nil
	}

	if _, err := conn.Write([]byte(password() + "\r\n")); err != nil {
		return fmt.Errorf("send password failed: %w", err)
	}
	if _, err := readUntil(conn, devicePrompt); err != nil {
		return errors.New("authentication failed")
	}
	return nil
}

// runCommand executes a single command and prints the response.
func runCommand(w io.Writer, addr, cmd string, password func() string) error {
	conn, err := dialConsole(addr, password)
	if err != nil {
		return err
	}
	defer conn.Close()

	output, err := exchange(conn, cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, output)
	return nil
}

// interactive relays lines from in to the console until EOF or quit.
func interactive(w io.Writer, in io.Reader, addr string, password func() string) error {
	fmt.Fprintf(w, "Connecting to %s...\n", addr)
	conn, err := dialConsole(addr, password)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintln(w, "Connected! Type 'quit' or Ctrl+D to exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, devicePrompt)
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			conn.Write([]byte("quit\r\n"))
			fmt.Fprintln(w, "Goodbye!")
			return nil
		}

		output, err := exchange(conn, input)
		if err != nil {
			return err
		}
		if output != "" {
			fmt.Fprintln(w, output)
		}
	}
}

// exchange sends one command and returns its output without the prompt.
func exchange(conn net.Conn, cmd string) (string, error) {
	if _, err := conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}
	output, err := readUntil(conn, devicePrompt)
	if err != nil && output == "" {
		return "", fmt.Errorf("no response: %w", err)
	}
	output = strings.TrimSuffix(output, devicePrompt)
	output = strings.ReplaceAll(output, "\r\n", "\n")
	return strings.TrimSpace(output), nil
}

// readUntil reads until the accumulated text ends with one of the suffixes,
// the peer closes, or the read timeout passes.
func readUntil(conn net.Conn, suffixes ...string) (string, error) {
	buf := make([]byte, 512)
	var acc strings.Builder
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc.Write(stripTelnetIAC(buf[:n]))
			s := acc.String()
			for _, suffix := range suffixes {
				if strings.HasSuffix(s, suffix) {
					return s, nil
				}
			}
		}
		if err != nil {
			return acc.String(), err
		}
	}
}

// stripTelnetIAC removes telnet IAC (Interpret As Command) sequences from data.
// IAC = 0xFF, followed by command byte and possibly option byte.
func stripTelnetIAC(data []byte) []byte {
	result := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] == 0xFF && i+1 < len(data) {
			// WILL/WONT/DO/DONT (0xFB-0xFE) have an option byte
			cmd := data[i+1]
			if cmd >= 0xFB && cmd <= 0xFE && i+2 < len(data) {
				i += 3
			} else {
				i += 2
			}
		} else {
			result = append(result, data[i])
			i++
		}
	}
	return result
}
