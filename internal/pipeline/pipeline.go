package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/scheduler"
	"codeberg.org/mutker/nvidiautil/internal/source"
)

type Options struct {
	// Metrics are the selected metric keys in display order.
	Metrics    []string
	Enumerator device.Enumerator
	Sources    map[metric.SourceID]source.Source
	Logger     logger.Logger
}

// DefaultSources returns the sources for both tools. With the nvml
// enumerator the nvidia-smi fields are read through NVML instead of
// running the nvidia-smi binary.
func DefaultSources(enumerator, smiPath, settingsPath string, timeout time.Duration) map[metric.SourceID]source.Source {
	var smi source.Source = source.NewSMI(smiPath, timeout)
	if enumerator == device.EnumeratorNVML {
		smi = device.NewNVMLSource(string(metric.SourceSMI))
	}

	return map[metric.SourceID]source.Source{
		metric.SourceSMI:      smi,
		metric.SourceSettings: source.NewSettings(settingsPath, timeout),
	}
}

// Pipeline owns the devices, collectors and scheduler of one polling
// session. Observers must be attached before Start.
type Pipeline struct {
	devices    []device.Device
	specs      []metric.Spec
	registry   *collector.Registry
	collectors []*collector.Collector
	scheduler  *scheduler.Scheduler
	logger     logger.Logger

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// New enumerates devices once and builds one collector per source, so each
// tool runs once per tick regardless of how many metrics it serves.
func New(ctx context.Context, opts Options) (*Pipeline, error) {
	errFactory := errors.New()

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Enumerator == nil {
		return nil, errFactory.New(ErrNoEnumerator)
	}

	specs, err := metric.Select(opts.Metrics)
	if err != nil {
		return nil, err
	}

	devices, err := opts.Enumerator.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errFactory.New(device.ErrNoDevices)
	}

	log.Info().Int("devices", len(devices)).Strs("metrics", opts.Metrics).Msg("Devices enumerated")

	p := &Pipeline{
		devices:  devices,
		specs:    specs,
		registry: collector.NewRegistry(),
		logger:   log,
	}

	bySource := make(map[metric.SourceID]*collector.Collector)
	for _, spec := range specs {
		c, ok := bySource[spec.Source]
		if !ok {
			src, found := opts.Sources[spec.Source]
			if !found || src == nil {
				return nil, errFactory.WithData(ErrNoSource, struct {
					Metric string
					Source string
				}{
					Metric: spec.Key,
					Source: string(spec.Source),
				})
			}

			c, err = collector.New(src, p.registry, len(devices), log)
			if err != nil {
				return nil, err
			}
			if closer, ok := src.(io.Closer); ok {
				p.OnClose(closer.Close)
			}
			bySource[spec.Source] = c
			p.collectors = append(p.collectors, c)
		}

		if err := c.Add(spec); err != nil {
			return nil, err
		}
	}

	processors := make([]collector.Processor, 0, len(p.collectors))
	for _, c := range p.collectors {
		processors = append(processors, c)
	}
	p.scheduler = scheduler.New(log, processors...)

	return p, nil
}

func (p *Pipeline) Devices() []device.Device {
	return p.devices
}

func (p *Pipeline) Specs() []metric.Spec {
	return p.specs
}

func (p *Pipeline) Collectors() []*collector.Collector {
	return p.collectors
}

func (p *Pipeline) Scheduler() *scheduler.Scheduler {
	return p.scheduler
}

// Observe registers obs for key on every device.
func (p *Pipeline) Observe(key string, obs collector.Observer) error {
	for _, d := range p.devices {
		if err := p.registry.Register(key, d.Index, obs); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAll registers the observer returned by fn for every selected
// metric on every device. fn may return nil to skip a metric.
func (p *Pipeline) ObserveAll(fn func(metric.Spec) (collector.Observer, error)) error {
	for _, spec := range p.specs {
		obs, err := fn(spec)
		if err != nil {
			return err
		}
		if obs == nil {
			continue
		}
		if err := p.Observe(spec.Key, obs); err != nil {
			return err
		}
	}
	return nil
}

// AddProcessor appends a processor that runs after the collectors on
// every tick.
func (p *Pipeline) AddProcessor(proc collector.Processor) {
	p.scheduler.Add(proc)
}

// OnClose registers fn to run on Close, in reverse registration order.
func (p *Pipeline) OnClose(fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, fn)
}

func (p *Pipeline) Start(ctx context.Context, period time.Duration) error {
	if err := p.scheduler.Start(ctx, period); err != nil {
		return err
	}

	p.logger.Info().Dur("period", period).Msg("Polling started")

	return nil
}

// Tick runs a single cycle synchronously.
func (p *Pipeline) Tick(ctx context.Context) {
	p.scheduler.Tick(ctx)
}

func (p *Pipeline) Stop() {
	p.scheduler.Stop()
}

// Close stops polling and runs the registered closers.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	closers := p.closers
	p.closers = nil
	p.mu.Unlock()

	p.scheduler.Stop()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New().Wrap(ErrPipelineClose, errors.Join(errs...))
	}

	return nil
}
