package main

import (
	"fmt"
	"io"
	"os"

	"codeberg.org/mutker/nvidiautil/internal/device"
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List detected GPUs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := initLogging(cfg, os.Stderr); err != nil {
				return err
			}

			enum, err := newEnumerator(cfg)
			if err != nil {
				return err
			}
			devices, err := enum.Enumerate(cmd.Context())
			if err != nil {
				return err
			}

			return writeDevices(cmd.OutOrStdout(), devices, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print devices as YAML")

	return cmd
}

func writeDevices(w io.Writer, devices []device.Device, asYAML bool) error {
	if asYAML {
		return writeYAML(w, devices)
	}

	for _, d := range devices {
		if _, err := fmt.Fprintf(w, "%d: %s\n", d.Index, d.Name); err != nil {
			return err
		}
	}
	return nil
}
