package main

import (
	"io"

	"codeberg.org/mutker/nvidiautil/internal/config"
	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nvidiautil",
		Short:         "Poll NVIDIA GPU telemetry from nvidia-smi and nvidia-settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll selected metrics until interrupted (default)",
			Args:  cobra.NoArgs,
			RunE:  runMonitor,
		},
		newDevicesCmd(),
		newQueryCmd(),
	)

	return root
}

// loadConfig reads configuration using the root's persistent flags so
// every subcommand sees the same keys.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Root().PersistentFlags())
}

func initLogging(cfg *config.Config, out io.Writer) error {
	return logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		IsService: logger.IsService(),
		Out:       out,
	})
}

func newEnumerator(cfg *config.Config) (device.Enumerator, error) {
	return device.NewEnumerator(cfg.Enumerator, cfg.SMIPath, cfg.GetTimeout())
}

func pipelineOptions(cfg *config.Config, enum device.Enumerator, log logger.Logger) pipeline.Options {
	return pipeline.Options{
		Metrics:    cfg.GetMetrics(),
		Enumerator: enum,
		Sources:    pipeline.DefaultSources(cfg.Enumerator, cfg.SMIPath, cfg.SettingsPath, cfg.GetTimeout()),
		Logger:     log,
	}
}
