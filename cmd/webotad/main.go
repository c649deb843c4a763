// Command webotad serves the web panel and firmware upload endpoint on a
// Linux host, writing uploaded images to a file or an in-memory slot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"openenterprise/webota/config"
	"openenterprise/webota/diag"
	"openenterprise/webota/version"
)

const defaultConfigPath = "/etc/webota/webota.yaml"

var (
	rootCmd = &cobra.Command{
		Use:           "webotad",
		Short:         "Web panel and firmware upload daemon",
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			ring := &diag.Ring{}
			logger := slog.New(diag.NewHandler(os.Stderr, ring, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := newDaemon(cfg, ring, logger)
			if err != nil {
				return err
			}
			return d.run(ctx)
		},
	}

	configPath string
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "YAML configuration file")
}

// loadConfig reads, validates and normalizes the configuration. A missing
// file at the default path yields the defaults.
func loadConfig(path string, explicit bool) (*config.Host, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &config.Host{}
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "webotad:", err)
		os.Exit(1)
	}
}
