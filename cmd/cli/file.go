package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"openenterprise/webota/version"
)

var (
	fileCmd = &cobra.Command{
		Use:   "file <firmware.uf2>",
		Short: "Inspect a UF2 file (no device needed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return readFirmwareInfo(cmd.OutOrStdout(), args[0])
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webota-cli %s\n", version.String())
		},
	}
)

func init() {
	rootCmd.AddCommand(fileCmd, versionCmd)
}
