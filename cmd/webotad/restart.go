package main

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"openenterprise/webota/config"
)

// restartFunc returns what the reboot trigger and the console's reboot
// command run for the configured mode. exec replaces the process with a
// fresh copy of the same binary, exit leaves the restart to a supervisor.
func restartFunc(mode string, logger *slog.Logger) (func(), error) {
	switch mode {
	case config.RestartExec:
		return func() {
			exe, err := os.Executable()
			if err == nil {
				err = unix.Exec(exe, os.Args, os.Environ())
			}
			// Exec only returns on failure.
			logger.Error("restart:exec-failed", slog.String("err", err.Error()))
			os.Exit(1)
		}, nil
	case config.RestartExit:
		return func() {
			logger.Info("restart:exit")
			os.Exit(0)
		}, nil
	case config.RestartNone:
		return func() {
			logger.Info("restart:skipped")
		}, nil
	default:
		return nil, fmt.Errorf("restart: unknown mode %q", mode)
	}
}
