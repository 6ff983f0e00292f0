package collector

import (
	"context"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/source"
)

// Collector binds metric specs to one source. Each Process call invokes
// the source once and dispatches every spec's values.
type Collector struct {
	source   source.Source
	registry *Registry
	devices  int
	specs    []metric.Spec
	logger   logger.Logger
}

func New(src source.Source, registry *Registry, deviceCount int, log logger.Logger) (*Collector, error) {
	errFactory := errors.New()

	if src == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "collector requires a source")
	}
	if registry == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "collector requires a registry")
	}
	if deviceCount <= 0 {
		return nil, errFactory.WithData(metric.ErrInvalidDeviceNum, deviceCount)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Collector{
		source:   src,
		registry: registry,
		devices:  deviceCount,
		logger:   log,
	}, nil
}

// Add binds a spec to the collector. The spec must name this collector's
// source and its key must not already be bound.
func (c *Collector) Add(spec metric.Spec) error {
	errFactory := errors.New()

	if err := spec.Validate(); err != nil {
		return err
	}
	if string(spec.Source) != c.source.Name() {
		return errFactory.WithData(ErrSourceMismatch, struct {
			Metric    string
			Source    string
			Collector string
		}{
			Metric:    spec.Key,
			Source:    string(spec.Source),
			Collector: c.source.Name(),
		})
	}
	for _, s := range c.specs {
		if s.Key == spec.Key {
			return errFactory.WithData(ErrDuplicateMetric, spec.Key)
		}
	}

	c.specs = append(c.specs, spec)

	return nil
}

func (c *Collector) Name() string {
	return c.source.Name()
}

// Specs returns the bound specs in the order they were added.
func (c *Collector) Specs() []metric.Spec {
	specs := make([]metric.Spec, len(c.specs))
	copy(specs, c.specs)

	return specs
}

// Process invokes the source once and dispatches the parsed values. A
// source failure skips every spec. A parse failure skips only that spec.
// The returned error joins every failure of this cycle.
func (c *Collector) Process(ctx context.Context) error {
	if len(c.specs) == 0 {
		return nil
	}

	queries := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		queries = append(queries, spec.Query)
	}

	raw, err := c.source.Invoke(ctx, queries)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("source", c.source.Name()).
			Msg("Source invocation failed, keeping last values")
		return err
	}

	var errs []error
	for _, spec := range c.specs {
		values, err := spec.Values(raw, c.devices)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("source", c.source.Name()).
				Str("metric", spec.Key).
				Msg("Failed to parse metric, keeping last values")
			errs = append(errs, err)
			continue
		}

		delivered := 0
		for device, value := range values {
			delivered += c.registry.Dispatch(spec.Key, device, value)
		}

		c.logger.Debug().
			Str("metric", spec.Key).
			Int("observers", delivered).
			Msg("Dispatched metric")
	}

	return errors.Join(errs...)
}
