package main

import (
	"io"
	"os"
	"sync"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/pipeline"
	"codeberg.org/mutker/nvidiautil/internal/snapshot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type reading struct {
	Metric string `yaml:"metric"`
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
}

type deviceReport struct {
	Index    int       `yaml:"index"`
	Name     string    `yaml:"name"`
	Readings []reading `yaml:"readings"`
}

// readings collects one cycle of values per (metric, device).
type readings struct {
	mu     sync.Mutex
	values map[string]map[int]metric.Value
}

func newReadings() *readings {
	return &readings{values: make(map[string]map[int]metric.Value)}
}

func (r *readings) observer(key string) collector.Observer {
	return collector.ObserverFunc(func(dev int, value metric.Value) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.values[key] == nil {
			r.values[key] = make(map[int]metric.Value)
		}
		r.values[key][dev] = value
	})
}

// report orders readings by device, then by spec. Metrics that failed
// this cycle are left out.
func (r *readings) report(devices []device.Device, specs []metric.Spec) []deviceReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]deviceReport, 0, len(devices))
	for _, d := range devices {
		rep := deviceReport{Index: d.Index, Name: d.Name, Readings: []reading{}}
		for _, spec := range specs {
			v, ok := r.values[spec.Key][d.Index]
			if !ok {
				continue
			}
			rep.Readings = append(rep.Readings, reading{
				Metric: spec.Key,
				Name:   spec.DisplayName,
				Value:  v.String(),
			})
		}
		out = append(out, rep)
	}
	return out
}

func newQueryCmd() *cobra.Command {
	var fromSnapshot bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Poll once and print the values as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := initLogging(cfg, os.Stderr); err != nil {
				return err
			}

			if fromSnapshot {
				scfg := snapshot.DefaultConfig()
				scfg.DBPath = cfg.SnapshotDB
				scfg.FlushInterval = 0

				store, err := snapshot.Open(scfg, logger.With("snapshot"))
				if err != nil {
					return err
				}
				defer store.Close()

				entries, err := store.Latest(cmd.Context())
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), entries)
			}

			enum, err := newEnumerator(cfg)
			if err != nil {
				return err
			}
			p, err := pipeline.New(cmd.Context(), pipelineOptions(cfg, enum, logger.With("pipeline")))
			if err != nil {
				return err
			}
			defer p.Close()

			r := newReadings()
			if err := p.ObserveAll(func(spec metric.Spec) (collector.Observer, error) {
				return r.observer(spec.Key), nil
			}); err != nil {
				return err
			}

			p.Tick(cmd.Context())

			return writeYAML(cmd.OutOrStdout(), r.report(p.Devices(), p.Specs()))
		},
	}

	cmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "Print the values stored in the snapshot database")

	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
