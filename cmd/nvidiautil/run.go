package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/config"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/exporter"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/panel"
	"codeberg.org/mutker/nvidiautil/internal/pid"
	"codeberg.org/mutker/nvidiautil/internal/pipeline"
	"codeberg.org/mutker/nvidiautil/internal/snapshot"
	"github.com/spf13/cobra"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, os.Stdout); err != nil {
		return err
	}

	if err := monitor(cmd, cfg); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("Monitor failed")
		}
		return err
	}

	return nil
}

func monitor(cmd *cobra.Command, cfg *config.Config) error {
	interactive := !logger.IsService()
	if interactive {
		printBanner(cmd.OutOrStdout(), "nvidiautil")
	}
	logger.Debug().Str("config", cfg.ConfigFile()).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enum, err := newEnumerator(cfg)
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, pipelineOptions(cfg, enum, logger.With("pipeline")))
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down cleanly")
		}
		logger.Info().Msg("Exiting...")
	}()

	if err := attachObservers(p, cfg, cmd, interactive); err != nil {
		return err
	}

	if err := p.Start(ctx, cfg.GetPeriod()); err != nil {
		return err
	}

	watchConfig(ctx, cfg, p)

	<-ctx.Done()
	logger.Info().Msg("Received termination signal.")

	return nil
}

// attachObservers wires every enabled consumer of dispatched values.
func attachObservers(p *pipeline.Pipeline, cfg *config.Config, cmd *cobra.Command, interactive bool) error {
	valueLog := logger.With("values")
	if err := p.ObserveAll(func(spec metric.Spec) (collector.Observer, error) {
		return logObserver(valueLog, spec), nil
	}); err != nil {
		return err
	}

	if cfg.Panel && interactive {
		pnl := panel.New(cmd.OutOrStdout(), p.Specs(), p.Devices())
		if err := p.ObserveAll(func(spec metric.Spec) (collector.Observer, error) {
			return pnl.Observer(spec.Key), nil
		}); err != nil {
			return err
		}
		p.AddProcessor(pnl)
	}

	if cfg.ExporterAddr != "" {
		exp, err := exporter.New(p.Specs(), p.Devices())
		if err != nil {
			return err
		}
		if err := p.ObserveAll(exp.Observer); err != nil {
			return err
		}

		srv := exporter.NewServer(cfg.ExporterAddr, exp.Registry(), logger.With("exporter"))
		if err := srv.Start(); err != nil {
			return err
		}
		p.OnClose(func() error {
			return srv.Shutdown(context.Background())
		})
	}

	if cfg.Snapshot {
		scfg := snapshot.DefaultConfig()
		scfg.DBPath = cfg.SnapshotDB

		store, err := snapshot.Open(scfg, logger.With("snapshot"))
		if err != nil {
			return err
		}
		p.OnClose(store.Close)

		if err := p.ObserveAll(func(spec metric.Spec) (collector.Observer, error) {
			return store.Observer(spec.Key), nil
		}); err != nil {
			return err
		}
	}

	return nil
}

func logObserver(log logger.Logger, spec metric.Spec) collector.Observer {
	return collector.ObserverFunc(func(dev int, value metric.Value) {
		log.Debug().
			Str("metric", spec.Key).
			Int("device", dev).
			Str("value", value.String()).
			Msg("Value updated")
	})
}

// watchConfig applies period and log level changes from the config file
// without restarting.
func watchConfig(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) {
	current := cfg.GetPeriod()

	err := cfg.Watch(ctx, func(next *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring invalid config change")
			return
		}

		if level, err := logger.ParseLevel(next.GetLogLevel()); err == nil {
			logger.SetLogLevel(level)
		}

		period := next.GetPeriod()
		if period == current {
			return
		}
		if err := p.Start(ctx, period); err != nil {
			logger.Warn().Err(err).Msg("Failed to apply new interval")
			return
		}
		current = period
	})
	if errors.HasCode(err, config.ErrNoConfigFile) {
		logger.Debug().Msg("No config file, live reload disabled")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to watch config file")
	}
}
